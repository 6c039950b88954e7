package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/liao/chat-analyst/internal/analysis"
	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/parser"
)

var (
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorSecondary = lipgloss.Color("10")  // bright green
	colorDim       = lipgloss.Color("240") // gray
	colorHighlight = lipgloss.Color("11")  // bright yellow
	colorBorder    = lipgloss.Color("238") // dark gray

	styleUser = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleAssistant = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	styleDim = lipgloss.NewStyle().
			Foreground(colorDim)

	styleSender = lipgloss.NewStyle().
			Foreground(colorHighlight)

	styleNotice = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	styleTitle = lipgloss.NewStyle().
			Foreground(colorDim).
			Bold(true)
)

// Terminal 把 View 渲染成终端文本
func Terminal(v View) string {
	var b strings.Builder
	if v.Notice != "" {
		b.WriteString(styleNotice.Render(v.Notice))
		b.WriteString("\n")
	}
	for _, e := range v.Elements {
		label := styleAssistant.Render("assistant")
		if e.Role == chat.RoleUser {
			label = styleUser.Render("you")
		}
		fmt.Fprintf(&b, "%s %s\n", label, e.Text)
	}
	if v.Pending {
		b.WriteString(styleDim.Render("assistant is typing..."))
		b.WriteString("\n")
	}
	return b.String()
}

// Records 终端里的消息列表，每条一行
func Records(records []parser.Record) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(fmt.Sprintf("%d messages", len(records))))
	b.WriteString("\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%s %s %s\n",
			styleDim.Render(r.Date+" "+r.Time),
			styleSender.Render(r.Sender+":"),
			r.Message,
		)
	}
	return b.String()
}

// TopWords 终端里的高频词表，附简单的条形图
func TopWords(words []analysis.WordCount) string {
	if len(words) == 0 {
		return styleDim.Render(analysis.FormatTopWords(nil)) + "\n"
	}

	width := 0
	for _, w := range words {
		width = max(width, lipgloss.Width(w.Word))
	}
	top := words[0].Count

	var b strings.Builder
	b.WriteString(styleTitle.Render("top words"))
	b.WriteString("\n")
	for i, w := range words {
		bar := strings.Repeat("█", max(1, w.Count*20/top))
		// 按显示宽度补齐，非 ASCII 词也能对齐
		pad := strings.Repeat(" ", width-lipgloss.Width(w.Word))
		fmt.Fprintf(&b, "%2d. %s%s %s %s\n",
			i+1, w.Word, pad,
			lipgloss.NewStyle().Foreground(colorPrimary).Render(bar),
			styleDim.Render(fmt.Sprint(w.Count)),
		)
	}
	return b.String()
}
