package rag

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"
)

// Store 内存向量库，每个会话一个 collection，会话结束即丢弃
type Store struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
}

func NewStore(embedFunc chromem.EmbeddingFunc) *Store {
	return &Store{db: chromem.NewDB(), embed: embedFunc}
}

// Replace 用新文档整体替换 collection 的内容
func (s *Store) Replace(ctx context.Context, name string, docs []chromem.Document) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return fmt.Errorf("get/create collection: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	slog.Debug("collection indexed", "collection", name, "count", col.Count())
	return nil
}

// Query 检索相似文档，低于 minSimilarity 的丢弃
func (s *Store) Query(ctx context.Context, name, text string, topK int, minSimilarity float32) ([]Result, error) {
	col := s.db.GetCollection(name, s.embed)
	if col == nil || col.Count() == 0 || text == "" || topK <= 0 {
		return nil, nil
	}

	k := min(topK, col.Count())
	docs, err := col.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	var results []Result
	for _, d := range docs {
		if d.Similarity < minSimilarity {
			continue
		}
		results = append(results, Result{
			ID:         d.ID,
			Content:    d.Content,
			Similarity: d.Similarity,
			Metadata:   d.Metadata,
		})
	}
	return results, nil
}

// Drop 删除 collection，不存在时什么也不做
func (s *Store) Drop(name string) error {
	return s.db.DeleteCollection(name)
}

// Count 返回 collection 中的文档数量
func (s *Store) Count(name string) int {
	col := s.db.GetCollection(name, s.embed)
	if col == nil {
		return 0
	}
	return col.Count()
}

type Result struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}
