package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liao/chat-analyst/internal/api"
	"github.com/liao/chat-analyst/internal/app"
	"github.com/liao/chat-analyst/internal/upload"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			go a.ReapLoop(ctx, time.Minute)

			srv := api.NewServer(cfg.Server.Addr, api.Deps{
				Sessions: a.Sessions,
				Router:   a.Router,
				Upload: upload.Options{
					DecryptKey: cfg.Upload.DecryptKey,
					MaxBytes:   cfg.Upload.MaxBytes,
				},
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Forget:         a.Forget,
			})
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
