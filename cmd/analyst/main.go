package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/liao/chat-analyst/internal/app"
	"github.com/liao/chat-analyst/internal/config"
	"github.com/liao/chat-analyst/internal/parser"
	"github.com/liao/chat-analyst/internal/upload"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "analyst",
		Short:         "WhatsApp chat analyst - parse exports, count words, ask questions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml/toml/json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug/info/warn/error)")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(wordsCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 读取配置并按命令类型设置日志：serve 输出 JSON 到 stdout，其余文本输出到 stderr
func loadConfig(server bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if server {
		app.SetupLogging(os.Stdout, cfg.Log.Level, true)
	} else {
		app.SetupLogging(os.Stderr, cfg.Log.Level, false)
	}
	return cfg, nil
}

// loadRecords 读取并解析导出文件；纯文本按行流式解析，不受上传大小限制
func loadRecords(cfg *config.Config, path string) ([]parser.Record, error) {
	if !upload.IsText(path) {
		text, err := upload.DecodeFile(path, upload.Options{
			DecryptKey: cfg.Upload.DecryptKey,
			MaxBytes:   cfg.Upload.MaxBytes,
		})
		if err != nil {
			return nil, err
		}
		t, err := parser.NewTranscript(text)
		if err != nil {
			return nil, err
		}
		return t.Records, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	records, err := parser.ParseReader(upload.TextReader(f))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, parser.ErrFormatMismatch
	}
	return records, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
