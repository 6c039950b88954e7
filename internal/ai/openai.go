package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient 兼容 OpenAI Chat Completions 协议的服务（Groq、OpenAI 等）
type OpenAIClient struct {
	client    *openai.Client
	model     string
	temp      float32
	maxTokens int
}

func NewOpenAIClient(apiKey, baseURL, model string, temp float32, maxTokens int) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		temp:      temp,
		maxTokens: maxTokens,
	}
}

func (c *OpenAIClient) Stream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    toOpenAIMessages(messages),
			Temperature: c.temp,
			MaxTokens:   c.maxTokens,
			Stream:      true,
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", fmt.Errorf("create stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("receive stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if text := resp.Choices[0].Delta.Content; text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
