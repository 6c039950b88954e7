package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liao/chat-analyst/internal/analysis"
	"github.com/liao/chat-analyst/internal/chat"
	"github.com/liao/chat-analyst/internal/parser"
	"github.com/liao/chat-analyst/internal/render"
)

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a chat export and print its messages",
		Long: `Parse a WhatsApp chat export (.txt, .pdf, .html or encrypted .enc)
and print one message per line.

Output is a styled list on a terminal and TSV (date, time, sender, message)
when piped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			records, err := loadRecords(cfg, args[0])
			if errors.Is(err, parser.ErrFormatMismatch) {
				return errors.New(chat.NoticeMismatch)
			}
			if err != nil {
				return err
			}

			if isTerminal() {
				fmt.Print(render.Records(records))
				return nil
			}
			for _, r := range records {
				fmt.Printf("%s\t%s\t%s\t%s\n", r.Date, r.Time, tsvField(r.Sender), tsvField(r.Message))
			}
			return nil
		},
	}
}

func wordsCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "words <file>",
		Short: "Show the most common words in a chat export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n <= 0 {
				return fmt.Errorf("-n must be positive")
			}
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			records, err := loadRecords(cfg, args[0])
			if errors.Is(err, parser.ErrFormatMismatch) {
				return errors.New(chat.NoticeMismatch)
			}
			if err != nil {
				return err
			}

			words := analysis.TopWords(records, n)
			if isTerminal() {
				fmt.Print(render.TopWords(words))
				return nil
			}
			if len(words) == 0 {
				fmt.Fprintln(os.Stderr, analysis.FormatTopWords(nil))
			}
			for _, w := range words {
				fmt.Printf("%s\t%d\n", w.Word, w.Count)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "n", "n", analysis.DefaultTopN, "number of words")
	return cmd
}

func tsvField(s string) string {
	return strings.ReplaceAll(s, "\t", " ")
}
