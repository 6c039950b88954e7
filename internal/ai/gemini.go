package ai

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/genai"
)

type GeminiClient struct {
	client     *genai.Client
	chatModels []string // 多模型轮换
	modelIdx   atomic.Int64
	embedModel string
	temp       float32
	maxTokens  int32

	// 限流
	rpmLimit int
	mu       sync.Mutex
	tokens   int
	lastTick time.Time
}

func NewGeminiClient(ctx context.Context, apiKey string, chatModels []string, embedModel string, temp float32, maxTokens int32, rpmLimit int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c := &GeminiClient{
		client:     client,
		chatModels: chatModels,
		embedModel: embedModel,
		temp:       temp,
		maxTokens:  maxTokens,
		rpmLimit:   rpmLimit,
		tokens:     rpmLimit,
		lastTick:   time.Now(),
	}
	return c, nil
}

// currentModel 获取当前模型
func (c *GeminiClient) currentModel() string {
	idx := c.modelIdx.Load() % int64(len(c.chatModels))
	return c.chatModels[idx]
}

// rotateModel 切换到下一个模型
func (c *GeminiClient) rotateModel() string {
	newIdx := c.modelIdx.Add(1) % int64(len(c.chatModels))
	model := c.chatModels[newIdx]
	slog.Info("rotating to next model", "model", model)
	return model
}

// Stream 流式生成回复；配额用尽时切换模型，下一次调用（或重试）使用新模型
func (c *GeminiClient) Stream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := c.waitForToken(ctx); err != nil {
			yield("", err)
			return
		}

		system, contents := toGenaiContents(messages)
		cfg := &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(c.temp),
			MaxOutputTokens: c.maxTokens,
		}
		if system != "" {
			cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}

		model := c.currentModel()
		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				if isQuotaError(err) {
					slog.Warn("model quota exceeded, switching", "model", model)
					c.rotateModel()
				}
				yield("", fmt.Errorf("gemini stream %s: %w", model, err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
		slog.Debug("generated reply", "model", model)
	}
}

// Embed 生成文本嵌入向量
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.waitForToken(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := c.client.Models.EmbedContent(ctx, c.embedModel,
			[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
		if err != nil {
			lastErr = err
			slog.Warn("embed failed, retrying", "attempt", attempt+1, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			}
			continue
		}
		if len(resp.Embeddings) == 0 {
			return nil, fmt.Errorf("empty embedding response")
		}
		return resp.Embeddings[0].Values, nil
	}
	return nil, fmt.Errorf("embed failed after 3 attempts: %w", lastErr)
}

// EmbedFunc 返回一个可用于 chromem-go 的 embedding 函数
func (c *GeminiClient) EmbedFunc() func(ctx context.Context, text string) ([]float32, error) {
	return c.Embed
}

// toGenaiContents system 消息合并为 SystemInstruction，assistant 对应 model 角色
func toGenaiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func isQuotaError(err error) bool {
	return strings.Contains(err.Error(), "429") || strings.Contains(err.Error(), "RESOURCE_EXHAUSTED")
}

// waitForToken 简单令牌桶限流
func (c *GeminiClient) waitForToken(ctx context.Context) error {
	if c.rpmLimit <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.lastTick)
	if elapsed >= time.Minute {
		c.tokens = c.rpmLimit
		c.lastTick = now
	}

	if c.tokens > 0 {
		c.tokens--
		return nil
	}

	wait := time.Minute - elapsed
	c.mu.Unlock()
	slog.Info("rate limit reached, waiting", "duration", wait)
	select {
	case <-ctx.Done():
		c.mu.Lock()
		return ctx.Err()
	case <-time.After(wait):
	}
	c.mu.Lock()
	c.tokens = c.rpmLimit - 1
	c.lastTick = time.Now()
	return nil
}
