package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liao/chat-analyst/internal/app"
	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/query"
	"github.com/liao/chat-analyst/internal/render"
	"github.com/liao/chat-analyst/internal/upload"
)

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <file> <question...>",
		Short: "Ask one question about a chat export",
		Example: `  analyst ask chat.txt "top words"
  GROQ_API_KEY=... analyst ask chat.txt what did Alice say about the trip?`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			text, err := upload.DecodeFile(args[0], upload.Options{
				DecryptKey: cfg.Upload.DecryptKey,
				MaxBytes:   cfg.Upload.MaxBytes,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}

			sess := chat.NewSession("cli")
			res := sess.Upload(text)
			if !res.OK {
				return errors.New(res.Notice)
			}
			fmt.Fprintf(os.Stderr, "%s (%d messages)\n", res.Notice, res.Records)

			question := strings.Join(args[1:], " ")
			streamed := false
			ans, err := a.Router.Answer(ctx, sess, question, query.WithFragments(func(f string) {
				streamed = true
				fmt.Print(f)
			}))
			if err != nil {
				return err
			}

			printAnswer(os.Stdout, sess, ans, streamed, isTerminal())
			if ans.Truncated {
				fmt.Fprintf(os.Stderr, "note: only the first %d characters of the chat were sent as context\n", cfg.Session.ContextChars)
			}
			if ans.Source == query.SourceError {
				return errors.New("completion failed")
			}
			return nil
		},
	}
}

// printAnswer 输出回答；流式补全已经打印过正文，只补换行
func printAnswer(w io.Writer, sess *chat.Session, ans query.Answer, streamed, tty bool) {
	switch {
	case ans.Source == query.SourceAnalysis && tty:
		fmt.Fprint(w, render.TopWords(ans.TopWords))
	case streamed && ans.Source == query.SourceCompletion:
		fmt.Fprintln(w)
	case tty:
		// 流式输出中途失败时，已打印的部分作废，重新渲染整个会话
		if streamed {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, render.Terminal(render.ProjectSession(sess)))
	case streamed:
		fmt.Fprintln(w)
		fmt.Fprintln(w, ans.Text)
	default:
		fmt.Fprintln(w, ans.Text)
	}
}
