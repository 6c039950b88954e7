package ai

import (
	"fmt"
	"strings"
)

const contextHeader = "The following WhatsApp chat has been uploaded. Use it as context for answering any user question, and only answer about this chat. Context:\n"

// BuildContextPrompt 组装携带聊天原文的 system 消息
// 只保留前 limit 个字符，直接截断；truncated 表示是否有内容被丢弃
func BuildContextPrompt(raw string, limit int) (prompt string, truncated bool) {
	text, truncated := truncateRunes(raw, limit)
	return contextHeader + text, truncated
}

// BuildExcerptPrompt 组装检索到的补充片段
func BuildExcerptPrompt(excerpts []string) string {
	if len(excerpts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant excerpts beyond the context window:\n")
	for i, ex := range excerpts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ex)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 {
		return "", s != ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}
