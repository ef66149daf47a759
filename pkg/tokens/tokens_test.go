package tokens

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateLeavesShortText(t *testing.T) {
	t.Parallel()

	b, err := NewBudget(50)
	require.NoError(t, err)

	out, cut := b.Truncate("Room 101 is available.")
	assert.False(t, cut)
	assert.Equal(t, "Room 101 is available.", out)
}

func TestTruncateCutsLongText(t *testing.T) {
	t.Parallel()

	b, err := NewBudget(20)
	require.NoError(t, err)

	long := strings.Repeat("the suite has a minibar and a view ", 50)
	out, cut := b.Truncate(long)
	require.True(t, cut)
	assert.True(t, strings.HasSuffix(out, truncatedSuffix))
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(out, truncatedSuffix)))
	assert.LessOrEqual(t, b.Count(strings.TrimSuffix(out, truncatedSuffix)), 20)
}

func TestNewBudgetRejectsZero(t *testing.T) {
	t.Parallel()

	_, err := NewBudget(0)
	require.Error(t, err)
}

func TestNilBudgetIsNoop(t *testing.T) {
	t.Parallel()

	var b *Budget
	out, cut := b.Truncate("anything")
	assert.False(t, cut)
	assert.Equal(t, "anything", out)
}

func TestCutBytesKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	text := "สวัสดี café"
	for n := 0; n <= len(text)+2; n++ {
		out := cutBytes(text, n)
		assert.True(t, utf8.ValidString(out), "n=%d gave %q", n, out)
		assert.LessOrEqual(t, len(out), n)
		assert.True(t, strings.HasPrefix(text, out))
	}
	assert.Equal(t, "caf", cutBytes("café", 4))
	assert.Equal(t, "café", cutBytes("café", 5))
}

func TestTruncateMultibyteTextStaysValid(t *testing.T) {
	t.Parallel()

	b, err := NewBudget(7)
	require.NoError(t, err)

	long := strings.Repeat("ห้องพักวิวทะเล 🌊 ", 40)
	out, cut := b.Truncate(long)
	require.True(t, cut)
	assert.True(t, utf8.ValidString(out), "truncated text is not valid UTF-8: %q", out)
	assert.True(t, strings.HasSuffix(out, truncatedSuffix))
}
