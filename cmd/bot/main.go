package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liao/chat-analyst/internal/app"
	"github.com/liao/chat-analyst/internal/bot"
	"github.com/liao/chat-analyst/internal/config"
)

func main() {
	configPath := flag.String("config", "", "config file path (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	app.SetupLogging(os.Stdout, cfg.Log.Level, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("init failed", "error", err)
		os.Exit(1)
	}
	go a.ReapLoop(ctx, time.Minute)

	b := bot.New(cfg, a.Sessions, a.Router, a.Forget)

	// 优雅关闭
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Info("shutting down...")
		b.Stop()
		cancel()
		os.Exit(0)
	}()

	b.Run(ctx)
}
