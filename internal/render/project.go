package render

import (
	"time"

	"github.com/liao/chat-analyst/internal/chat"
)

// Element 一条可见消息
type Element struct {
	Role      chat.Role `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// View 某一时刻会话的完整展示
// Pending 为 true 时客户端在最后显示"正在回答"，不需要单独的渲染分支
type View struct {
	Elements []Element `json:"messages"`
	Pending  bool      `json:"pending"`
	Notice   string    `json:"notice,omitempty"`
}

// Project 隐藏 system 消息，其余按原顺序展示
func Project(history []chat.Message, pending bool) View {
	elems := make([]Element, 0, len(history))
	for _, m := range history {
		if m.Role == chat.RoleSystem {
			continue
		}
		elems = append(elems, Element{Role: m.Role, Text: m.Content, Timestamp: m.Timestamp})
	}
	return View{Elements: elems, Pending: pending}
}

// ProjectSession 取会话当前快照再投影
func ProjectSession(s *chat.Session) View {
	v := Project(s.History(), s.Pending())
	v.Notice = s.Notice()
	return v
}
