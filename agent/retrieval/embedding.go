package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openaisdk.Client
	model  string
}

func NewOpenAIEmbedder(client *openaisdk.Client, model string) (*OpenAIEmbedder, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("embedding model is required")
	}
	return &OpenAIEmbedder{client: client, model: strings.TrimSpace(model)}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// EmbeddingIndex embeds the corpus once and ranks entries by cosine similarity.
type EmbeddingIndex struct {
	embedder Embedder
	entries  []string
	vectors  [][]float64
}

func NewEmbeddingIndex(ctx context.Context, embedder Embedder, entries []string) (*EmbeddingIndex, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	idx := &EmbeddingIndex{embedder: embedder, entries: entries}
	if len(entries) == 0 {
		return idx, nil
	}
	vectors, err := embedder.Embed(ctx, entries)
	if err != nil {
		return nil, err
	}
	idx.vectors = vectors
	log.Debug().Int("entries", len(entries)).Msg("faq corpus embedded")
	return idx, nil
}

func (e *EmbeddingIndex) Search(ctx context.Context, question string, limit int) ([]Match, error) {
	if len(e.entries) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embeddings: got %d vectors for the question", len(vecs))
	}

	out := make([]Match, 0, len(e.entries))
	for i, v := range e.vectors {
		out = append(out, Match{Position: i, Text: e.entries[i], Score: cosine(vecs[0], v)})
	}
	return topMatches(out, limit), nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func topMatches(matches []Match, limit int) []Match {
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Position - b.Position
		}
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
