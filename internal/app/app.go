package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/liao/chat-analyst/internal/ai"
	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/config"
	"github.com/liao/chat-analyst/internal/query"
	"github.com/liao/chat-analyst/internal/rag"
)

type App struct {
	Config    *config.Config
	Sessions  *chat.Manager
	Router    *query.Router
	Retrieval *rag.Pipeline // 未开启时为 nil
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	completer, err := ai.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create completion client: %w", err)
	}
	if completer == nil {
		slog.Warn("no API key configured, questions will get the credential prompt", "provider", cfg.LLM.Provider)
	} else {
		slog.Info("completion client initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	opts := []query.RouterOption{
		query.WithTimeout(cfg.LLM.Timeout),
		query.WithMaxHistoryTurns(cfg.LLM.MaxHistoryTurns),
	}

	a := &App{
		Config:   cfg,
		Sessions: chat.NewManager(cfg.Session.IdleTimeout),
	}

	if cfg.RAG.Enabled {
		if cfg.RAG.APIKey == "" {
			slog.Warn("rag.enabled set but no embedding key, retrieval disabled")
		} else {
			// embedding 按文档逐条调用，不走聊天的 RPM 限流
			embedder, err := ai.NewGeminiClient(ctx, cfg.RAG.APIKey, nil, cfg.RAG.EmbeddingModel, 0, 0, 0)
			if err != nil {
				return nil, fmt.Errorf("create embedding client: %w", err)
			}
			store := rag.NewStore(rag.NormalizedEmbedFunc(embedder.EmbedFunc()))
			a.Retrieval = rag.NewPipeline(store, cfg.Session.ContextChars, cfg.RAG.TopK, cfg.RAG.MinSimilarity)
			opts = append(opts, query.WithRetriever(a.Retrieval))
			slog.Info("retrieval enabled", "model", cfg.RAG.EmbeddingModel, "top_k", cfg.RAG.TopK)
		}
	}

	a.Router = query.NewRouter(completer, cfg.Session.ContextChars, opts...)
	return a, nil
}

// Forget 丢弃会话的检索索引，未开启检索时什么也不做
func (a *App) Forget(sessionID string) {
	if a.Retrieval != nil {
		a.Retrieval.Forget(sessionID)
	}
}

// ReapLoop 定期清理空闲会话，直到 ctx 结束
func (a *App) ReapLoop(ctx context.Context, interval time.Duration) {
	if a.Config.Session.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range a.Sessions.Reap(now) {
				a.Forget(id)
			}
		}
	}
}

// SetupLogging 设置全局 slog；jsonOutput 用于服务端，终端下用文本格式
func SetupLogging(w io.Writer, level string, jsonOutput bool) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
