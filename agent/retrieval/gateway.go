// Package retrieval answers "what do we know about this question" with a
// bounded, ranked, confidence-filtered list of corpus entries.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

const (
	BackendLexical   = "lexical"
	BackendEmbedding = "embedding"

	defaultTopK = 3
)

type Config struct {
	Backend        string  `envconfig:"BACKEND" default:"lexical"`
	FAQFile        string  `envconfig:"FAQ_FILE" split_words:"true"`
	TopK           int     `envconfig:"TOP_K" split_words:"true" default:"3"`
	MinScore       float64 `envconfig:"MIN_SCORE" split_words:"true" default:"0.2"`
	EmbeddingModel string  `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
}

// Match is one scored corpus entry. Position is its index in the corpus and
// breaks score ties.
type Match struct {
	Position int
	Text     string
	Score    float64
}

type Index interface {
	Search(ctx context.Context, question string, limit int) ([]Match, error)
}

type Gateway struct {
	index    Index
	topK     int
	minScore float64
}

var _ contractx.Retriever = (*Gateway)(nil)

func NewGateway(index Index, cfg Config) (*Gateway, error) {
	if index == nil {
		return nil, errors.New("retrieval index is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Gateway{index: index, topK: topK, minScore: cfg.MinScore}, nil
}

// BuildIndex loads the corpus and builds the configured index. The embedding
// backend needs an embedder; the lexical one ignores it.
func BuildIndex(ctx context.Context, cfg Config, embedder Embedder) (Index, error) {
	entries, err := LoadCorpus(cfg.FAQFile)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLexical:
		return NewLexicalIndex(entries), nil
	case BackendEmbedding:
		idx, err := NewEmbeddingIndex(ctx, embedder, entries)
		if err != nil {
			return nil, fmt.Errorf("%w: build embedding index: %v", contractx.ErrUnreachableService, err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("%w: unknown retrieval backend %q", contractx.ErrValidation, cfg.Backend)
	}
}

func (g *Gateway) DefaultK() int {
	return g.topK
}

func (g *Gateway) DefaultMinScore() float64 {
	return g.minScore
}

// Retrieve never reports "nothing relevant" as an error: an empty slice is
// the signal. Index failures come back as ErrUnreachableService.
func (g *Gateway) Retrieve(ctx context.Context, question string, k int, minScore float64) ([]contractx.RetrievedChunk, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", contractx.ErrValidation)
	}
	if k <= 0 {
		k = g.topK
	}

	matches, err := g.index.Search(ctx, question, k*2)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: retrieval index: %v", contractx.ErrUnreachableService, err)
	}

	kept := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= minScore && strings.TrimSpace(m.Text) != "" {
			kept = append(kept, m)
		}
	}
	kept = topMatches(kept, k)

	out := make([]contractx.RetrievedChunk, 0, len(kept))
	for _, m := range kept {
		out = append(out, contractx.RetrievedChunk{Text: m.Text, Score: m.Score})
	}
	return out, nil
}
