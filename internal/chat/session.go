package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/liao/chat-analyst/internal/parser"
)

// ErrAnswerPending 上一个问题还没回答完
var ErrAnswerPending = errors.New("an answer is already pending for this session")

const (
	// SystemPrompt 新会话/重置后的第一条 system 消息
	SystemPrompt = "You are a helpful assistant for WhatsApp chat analysis."

	NoticeUploaded = "WhatsApp chat uploaded! You can now analyze it."
	NoticeMismatch = "File does not look like a WhatsApp chat export."
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UploadResult 上传后给用户看的结果
type UploadResult struct {
	OK      bool   `json:"ok"`
	Notice  string `json:"notice"`
	Records int    `json:"records"`
}

// Turn 表示一次进行中的问答；会话重置后旧的 Turn 作废
type Turn struct {
	Question   string
	Transcript *parser.Transcript
	History    []Message
	gen        uint64
}

// Session 单个会话的全部状态：上传的聊天记录、对话历史、是否在等待回答
type Session struct {
	ID string

	mu         sync.Mutex
	messages   []Message
	transcript *parser.Transcript
	notice     string
	awaiting   bool
	gen        uint64
	lastActive time.Time
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		messages:   []Message{{Role: RoleSystem, Content: SystemPrompt, Timestamp: now}},
		lastActive: now,
	}
}

// Upload 检测并解析上传文本，成功则整体替换之前的聊天记录
func (s *Session) Upload(raw string) UploadResult {
	t, err := parser.NewTranscript(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	if err != nil {
		s.transcript = nil
		s.notice = NoticeMismatch
		return UploadResult{Notice: NoticeMismatch}
	}
	s.transcript = t
	s.notice = NoticeUploaded
	return UploadResult{OK: true, Notice: NoticeUploaded, Records: len(t.Records)}
}

// Transcript 当前聊天记录，没有则为 nil
func (s *Session) Transcript() *parser.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Notice 最近一次上传的提示语
func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// BeginTurn 追加用户消息并进入等待回答状态
func (s *Session) BeginTurn(question string) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.awaiting {
		return nil, ErrAnswerPending
	}
	now := time.Now()
	s.messages = append(s.messages, Message{Role: RoleUser, Content: question, Timestamp: now})
	s.awaiting = true
	s.lastActive = now

	history := make([]Message, len(s.messages))
	copy(history, s.messages)
	return &Turn{
		Question:   question,
		Transcript: s.transcript,
		History:    history,
		gen:        s.gen,
	}, nil
}

// CompleteTurn 追加助手回答并回到空闲状态
// 如果会话在此期间被重置，回答直接丢弃
func (s *Session) CompleteTurn(t *Turn, answer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == nil || t.gen != s.gen {
		return false
	}
	now := time.Now()
	s.messages = append(s.messages, Message{Role: RoleAssistant, Content: answer, Timestamp: now})
	s.awaiting = false
	s.lastActive = now
	return true
}

// Pending 是否有问题正在等待回答
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// History 对话历史的副本
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset 清空聊天记录和对话历史
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.messages = []Message{{Role: RoleSystem, Content: SystemPrompt, Timestamp: now}}
	s.transcript = nil
	s.notice = ""
	s.awaiting = false
	s.gen++
	s.lastActive = now
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
