package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/liao/chat-analyst/internal/ai"
	"github.com/liao/chat-analyst/internal/analysis"
	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/parser"
)

const (
	UploadPrompt     = "Please upload a valid WhatsApp chat (.txt or .pdf) to start analysis."
	CredentialPrompt = "Please set an API key to start chatting."
	ErrorPrefix      = "Error: "
)

// Source 标记回答来自哪条路径
type Source string

const (
	SourceNoTranscript      Source = "no_transcript"
	SourceAnalysis          Source = "analysis"
	SourceMissingCredential Source = "missing_credential"
	SourceCompletion        Source = "completion"
	SourceError             Source = "error"
)

// Answer 一次问答的结果；Text 已经追加到会话历史
type Answer struct {
	Text      string               `json:"text"`
	Source    Source               `json:"source"`
	TopWords  []analysis.WordCount `json:"top_words,omitempty"`
	Truncated bool                 `json:"truncated,omitempty"`
}

// Retriever 可选的补充检索
type Retriever interface {
	Retrieve(ctx context.Context, sessionID string, t *parser.Transcript, question string) ([]string, error)
}

type Router struct {
	completer       ai.Completer
	retriever       Retriever
	contextChars    int
	timeout         time.Duration
	maxHistoryTurns int
	logger          *slog.Logger
}

type RouterOption func(*Router)

// WithRetriever 开启检索补充
func WithRetriever(r Retriever) RouterOption {
	return func(rt *Router) { rt.retriever = r }
}

// WithTimeout 单次回答的超时，包括检索和补全
func WithTimeout(d time.Duration) RouterOption {
	return func(rt *Router) { rt.timeout = d }
}

// WithMaxHistoryTurns 只转发最近 n 条 user/assistant 消息，0 表示全部
func WithMaxHistoryTurns(n int) RouterOption {
	return func(rt *Router) { rt.maxHistoryTurns = n }
}

func WithLogger(l *slog.Logger) RouterOption {
	return func(rt *Router) { rt.logger = l }
}

// NewRouter completer 为 nil 表示没有配置 API key
func NewRouter(completer ai.Completer, contextChars int, opts ...RouterOption) *Router {
	r := &Router{
		completer:    completer,
		contextChars: contextChars,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type answerOptions struct {
	onFragment func(string)
}

type AnswerOption func(*answerOptions)

// WithFragments 补全过程中每收到一个片段就回调一次
func WithFragments(fn func(string)) AnswerOption {
	return func(o *answerOptions) { o.onFragment = fn }
}

// Answer 处理一个用户问题
// 同一会话上一个问题还没回答完时返回 chat.ErrAnswerPending，历史不变
// 其余情况恰好追加一条 assistant 消息，补全失败也不例外
func (r *Router) Answer(ctx context.Context, s *chat.Session, question string, opts ...AnswerOption) (Answer, error) {
	var o answerOptions
	for _, opt := range opts {
		opt(&o)
	}

	turn, err := s.BeginTurn(question)
	if err != nil {
		return Answer{}, err
	}

	ans := r.route(ctx, s.ID, turn, o)
	if !s.CompleteTurn(turn, ans.Text) {
		r.logger.Info("session reset while answering, dropping answer", "session", s.ID)
	}
	return ans, nil
}

func (r *Router) route(ctx context.Context, sessionID string, turn *chat.Turn, o answerOptions) Answer {
	t := turn.Transcript
	switch {
	case t == nil:
		return Answer{Text: UploadPrompt, Source: SourceNoTranscript}

	case analysis.IsTopWordsQuery(turn.Question):
		words := analysis.TopWords(t.Records, analysis.DefaultTopN)
		return Answer{
			Text:     analysis.FormatTopWords(words),
			Source:   SourceAnalysis,
			TopWords: words,
		}

	case r.completer == nil:
		return Answer{Text: CredentialPrompt, Source: SourceMissingCredential}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	messages, truncated := r.buildMessages(ctx, sessionID, turn)
	if truncated {
		r.logger.Warn("chat exceeds context window, truncated",
			"session", sessionID, "limit", r.contextChars)
	}

	start := time.Now()
	text, err := ai.Collect(ctx, r.completer.Stream(ctx, messages), o.onFragment)
	if err != nil {
		r.logger.Error("completion failed", "session", sessionID, "error", err)
		return Answer{Text: ErrorPrefix + err.Error(), Source: SourceError, Truncated: truncated}
	}
	r.logger.Debug("completion done", "session", sessionID, "elapsed", time.Since(start), "chars", len(text))
	return Answer{Text: text, Source: SourceCompletion, Truncated: truncated}
}

// buildMessages 依次为：历史中的 system 消息、聊天上下文、检索片段、user/assistant 消息
func (r *Router) buildMessages(ctx context.Context, sessionID string, turn *chat.Turn) ([]ai.Message, bool) {
	var system, dialog []ai.Message
	for _, m := range turn.History {
		msg := ai.Message{Role: string(m.Role), Content: m.Content}
		if m.Role == chat.RoleSystem {
			system = append(system, msg)
		} else {
			dialog = append(dialog, msg)
		}
	}
	if r.maxHistoryTurns > 0 && len(dialog) > r.maxHistoryTurns {
		dialog = dialog[len(dialog)-r.maxHistoryTurns:]
	}

	prompt, truncated := ai.BuildContextPrompt(turn.Transcript.Raw, r.contextChars)
	system = append(system, ai.Message{Role: ai.RoleSystem, Content: prompt})

	if r.retriever != nil && truncated {
		excerpts, err := r.retriever.Retrieve(ctx, sessionID, turn.Transcript, turn.Question)
		if err != nil {
			r.logger.Warn("retrieval failed, continuing without excerpts", "session", sessionID, "error", err)
		} else if p := ai.BuildExcerptPrompt(excerpts); p != "" {
			system = append(system, ai.Message{Role: ai.RoleSystem, Content: p})
		}
	}

	return append(system, dialog...), truncated
}
