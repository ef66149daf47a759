// Package tokens caps text at a token budget using the cl100k encoding.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

const truncatedSuffix = " ...[truncated]"

type Budget struct {
	codec tokenizer.Codec
	limit int
}

func NewBudget(limit int) (*Budget, error) {
	if limit <= 0 {
		return nil, errors.New("token budget must be positive")
	}
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer codec: %w", err)
	}
	return &Budget{codec: codec, limit: limit}, nil
}

func (b *Budget) Limit() int {
	return b.limit
}

// Count falls back to a 4-chars-per-token estimate if encoding fails.
func (b *Budget) Count(text string) int {
	n, err := b.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Truncate returns text cut to the budget and whether it was cut.
func (b *Budget) Truncate(text string) (string, bool) {
	if b == nil {
		return text, false
	}
	ids, _, err := b.codec.Encode(text)
	if err != nil {
		if len(text) <= b.limit*4 {
			return text, false
		}
		return cutBytes(text, b.limit*4) + truncatedSuffix, true
	}
	if len(ids) <= b.limit {
		return text, false
	}
	head, err := b.codec.Decode(ids[:b.limit])
	if err != nil {
		return cutBytes(text, b.limit*4) + truncatedSuffix, true
	}
	// A token boundary can fall inside a multibyte character.
	return strings.ToValidUTF8(head, "") + truncatedSuffix, true
}

// cutBytes returns at most n bytes of text without splitting a rune.
func cutBytes(text string, n int) string {
	if n >= len(text) {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
