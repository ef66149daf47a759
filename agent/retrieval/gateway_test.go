package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

type fixedIndex struct {
	matches []Match
	err     error
	limits  []int
}

func (f *fixedIndex) Search(ctx context.Context, question string, limit int) ([]Match, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	return append([]Match(nil), f.matches...), nil
}

func TestRetrieveFiltersSortsAndBounds(t *testing.T) {
	t.Parallel()

	idx := &fixedIndex{matches: []Match{
		{Position: 0, Text: "a", Score: 0.5},
		{Position: 1, Text: "b", Score: 0.9},
		{Position: 2, Text: "c", Score: 0.1},
		{Position: 3, Text: "d", Score: 0.5},
		{Position: 4, Text: "e", Score: 0.7},
	}}
	g, err := NewGateway(idx, Config{TopK: 3})
	require.NoError(t, err)

	got, err := g.Retrieve(context.Background(), "question", 3, 0.3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "e", "a"}, []string{got[0].Text, got[1].Text, got[2].Text})
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Score, 0.3)
	}
	assert.Equal(t, []int{6}, idx.limits)
}

func TestRetrieveTiesKeepCorpusOrder(t *testing.T) {
	t.Parallel()

	idx := &fixedIndex{matches: []Match{
		{Position: 7, Text: "later", Score: 0.5},
		{Position: 2, Text: "earlier", Score: 0.5},
	}}
	g, err := NewGateway(idx, Config{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := g.Retrieve(context.Background(), "q", 2, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "earlier", got[0].Text)
	}
}

func TestRetrieveBelowThresholdIsEmptyNotError(t *testing.T) {
	t.Parallel()

	idx := &fixedIndex{matches: []Match{{Position: 0, Text: "a", Score: 0.1}}}
	g, err := NewGateway(idx, Config{})
	require.NoError(t, err)

	got, err := g.Retrieve(context.Background(), "q", 3, 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveDefaultsK(t *testing.T) {
	t.Parallel()

	idx := &fixedIndex{}
	g, err := NewGateway(idx, Config{TopK: 4})
	require.NoError(t, err)
	_, err = g.Retrieve(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, idx.limits)
}

func TestRetrieveIndexFailureIsUnreachable(t *testing.T) {
	t.Parallel()

	g, err := NewGateway(&fixedIndex{err: errors.New("connection refused")}, Config{})
	require.NoError(t, err)
	_, err = g.Retrieve(context.Background(), "q", 3, 0)
	require.ErrorIs(t, err, contractx.ErrUnreachableService)
}

func TestRetrieveEmptyQuestion(t *testing.T) {
	t.Parallel()

	g, err := NewGateway(&fixedIndex{}, Config{})
	require.NoError(t, err)
	_, err = g.Retrieve(context.Background(), "   ", 3, 0)
	require.ErrorIs(t, err, contractx.ErrValidation)
}

func TestLexicalGatewayOverDefaultCorpus(t *testing.T) {
	t.Parallel()

	idx, err := BuildIndex(context.Background(), Config{Backend: BackendLexical}, nil)
	require.NoError(t, err)
	g, err := NewGateway(idx, Config{TopK: 3, MinScore: 0.2})
	require.NoError(t, err)

	got, err := g.Retrieve(context.Background(), "What time is check-out?", 3, 0.2)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0].Text, "check-out time is 11:00 AM")

	got, err = g.Retrieve(context.Background(), "Do you allow pets?", 3, 0.2)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, got[0].Text, "Pets are welcome")

	got, err = g.Retrieve(context.Background(), "quantum chromodynamics lecture", 3, 0.2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildIndexUnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := BuildIndex(context.Background(), Config{Backend: "chroma"}, nil)
	require.ErrorIs(t, err, contractx.ErrValidation)
}

func TestSplitCorpusSkipsBlankLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"one", "two"}, SplitCorpus("one\n\n   \n two \n"))
}
