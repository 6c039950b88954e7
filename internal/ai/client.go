package ai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/liao/chat-analyst/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 发给补全服务的一条消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer 补全服务：返回按到达顺序排列的文本片段序列
// 序列只能消费一次；出错时最后一个元素携带 error
type Completer interface {
	Stream(ctx context.Context, messages []Message) iter.Seq2[string, error]
}

// New 按配置创建补全客户端；没有 API key 时返回 nil
func New(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}

	var c Completer
	switch cfg.Provider {
	case "gemini":
		models := append([]string{cfg.Model}, cfg.FallbackModels...)
		g, err := NewGeminiClient(ctx, cfg.APIKey, models, "", cfg.Temperature, cfg.MaxOutputTokens, cfg.RPMLimit)
		if err != nil {
			return nil, err
		}
		c = g
	case "groq", "openai":
		c = NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, int(cfg.MaxOutputTokens))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	if cfg.MaxRetries > 0 {
		c = WithRetry(c, cfg.MaxRetries, time.Second)
	}
	return c, nil
}

// Collect 按顺序拼接所有片段；出错或 ctx 取消时丢弃已收到的部分
func Collect(ctx context.Context, seq iter.Seq2[string, error], onFragment func(string)) (string, error) {
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return "", err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

type retrying struct {
	next       Completer
	maxRetries int
	backoff    time.Duration
}

// WithRetry 在收到第一个片段之前出错时重试，指数退避
// 已经开始输出后再出错不重试，避免重复内容
func WithRetry(c Completer, maxRetries int, backoff time.Duration) Completer {
	return &retrying{next: c, maxRetries: maxRetries, backoff: backoff}
}

func (r *retrying) Stream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for attempt := 0; ; attempt++ {
			started := false
			var failed error
			for frag, err := range r.next.Stream(ctx, messages) {
				if err != nil {
					failed = err
					break
				}
				started = true
				if !yield(frag, nil) {
					return
				}
			}
			if failed == nil {
				return
			}
			if started || attempt >= r.maxRetries || ctx.Err() != nil {
				yield("", failed)
				return
			}

			wait := r.backoff << attempt
			slog.Warn("completion failed, retrying", "attempt", attempt+1, "wait", wait, "error", failed)
			select {
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			case <-time.After(wait):
			}
		}
	}
}
