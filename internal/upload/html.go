package upload

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 按块级元素分行，嵌套时只取最内层
const blockSelector = "p, div, li, tr, pre, blockquote, h1, h2, h3, h4, h5, h6"

// HTMLText 从网页版导出（或浏览器另存的聊天页面）中提取纯文本，每个块级元素一行
func HTMLText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")

	var lines []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		lines = appendLines(lines, s.Text())
	})

	// 没有块级元素时退回整页文本
	if len(lines) == 0 {
		lines = appendLines(lines, doc.Find("body").Text())
	}
	return strings.Join(lines, "\n"), nil
}

func appendLines(lines []string, text string) []string {
	for _, l := range strings.Split(text, "\n") {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
