package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/philippgille/chromem-go"

	"github.com/liao/chat-analyst/internal/parser"
)

// Pipeline 为超出上下文窗口的消息建立检索，按问题取回最相关的几条
// 每个会话第一次检索时建索引，上传新记录后自动重建
type Pipeline struct {
	store         *Store
	contextChars  int
	topK          int
	minSimilarity float32

	mu      sync.Mutex
	indexed map[string]*parser.Transcript
}

func NewPipeline(store *Store, contextChars, topK int, minSimilarity float32) *Pipeline {
	return &Pipeline{
		store:         store,
		contextChars:  contextChars,
		topK:          topK,
		minSimilarity: minSimilarity,
		indexed:       make(map[string]*parser.Transcript),
	}
}

// Retrieve 根据问题检索相关的历史消息，返回导出格式的文本行
func (p *Pipeline) Retrieve(ctx context.Context, sessionID string, t *parser.Transcript, question string) ([]string, error) {
	if t == nil {
		return nil, nil
	}
	if err := p.ensureIndexed(ctx, sessionID, t); err != nil {
		return nil, err
	}
	if p.store.Count(sessionID) == 0 {
		slog.Debug("nothing beyond the context window, skipping RAG", "session", sessionID)
		return nil, nil
	}

	results, err := p.store.Query(ctx, sessionID, question, p.topK, p.minSimilarity)
	if err != nil {
		return nil, err
	}

	excerpts := make([]string, 0, len(results))
	for _, r := range results {
		excerpts = append(excerpts, r.Content)
	}

	slog.Debug("RAG retrieved excerpts", "session", sessionID, "count", len(excerpts))
	return excerpts, nil
}

// Forget 丢弃会话的索引
func (p *Pipeline) Forget(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.indexed, sessionID)
	if err := p.store.Drop(sessionID); err != nil {
		slog.Warn("drop collection failed", "session", sessionID, "error", err)
	}
}

func (p *Pipeline) ensureIndexed(ctx context.Context, sessionID string, t *parser.Transcript) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.indexed[sessionID] == t {
		return nil
	}

	overflow := Overflow(t.Raw, p.contextChars)
	docs := make([]chromem.Document, 0, len(overflow))
	for _, o := range overflow {
		docs = append(docs, chromem.Document{
			ID:      strconv.Itoa(o.Line),
			Content: o.Record.String(),
			Metadata: map[string]string{
				"sender": o.Record.Sender,
				"date":   o.Record.Date,
			},
		})
	}
	if err := p.store.Replace(ctx, sessionID, docs); err != nil {
		return fmt.Errorf("index transcript: %w", err)
	}
	p.indexed[sessionID] = t
	slog.Info("transcript indexed for retrieval", "session", sessionID, "records", len(docs))
	return nil
}

// OverflowRecord 超出上下文窗口的一条消息及其行号（从 0 开始）
type OverflowRecord struct {
	Line   int
	Record parser.Record
}

// Overflow 返回没有完整落在前 limit 个字符里的消息头行
func Overflow(raw string, limit int) []OverflowRecord {
	var out []OverflowRecord
	offset, line := 0, 0
	for l := range parser.Lines(raw) {
		text := parser.TrimEOL(l)
		end := offset + utf8.RuneCountInString(text)
		if end > limit {
			if r, ok := parser.ClassifyLine(text); ok {
				out = append(out, OverflowRecord{Line: line, Record: r})
			}
		}
		offset += utf8.RuneCountInString(l)
		line++
	}
	return out
}

// NormalizedEmbedFunc 把 embedding 归一化为单位向量，chromem 按点积计算相似度
func NormalizedEmbedFunc(embed chromem.EmbeddingFunc) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum == 0 {
			return v, nil
		}
		norm := float32(math.Sqrt(sum))
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = x / norm
		}
		return out, nil
	}
}
