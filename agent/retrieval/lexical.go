package retrieval

import (
	"context"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "can": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "there": {}, "to": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "with": {}, "you": {}, "your": {}, "we": {}, "our": {}, "any": {},
}

// LexicalIndex scores an entry by the share of question terms it contains.
type LexicalIndex struct {
	entries []string
	terms   []map[string]struct{}
}

func NewLexicalIndex(entries []string) *LexicalIndex {
	idx := &LexicalIndex{
		entries: entries,
		terms:   make([]map[string]struct{}, len(entries)),
	}
	for i, e := range entries {
		idx.terms[i] = termSet(e)
	}
	return idx
}

func (l *LexicalIndex) Search(ctx context.Context, question string, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := termSet(question)
	if len(query) == 0 {
		return nil, nil
	}

	out := make([]Match, 0, len(l.entries))
	for i, terms := range l.terms {
		hits := 0
		for t := range query {
			if _, ok := terms[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		out = append(out, Match{
			Position: i,
			Text:     l.entries[i],
			Score:    float64(hits) / float64(len(query)),
		})
	}
	return topMatches(out, limit), nil
}

func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		out[stem(f)] = struct{}{}
	}
	return out
}

// stem folds the plural forms the FAQ mixes freely ("pets", "pet").
func stem(term string) string {
	if len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") {
		return term[:len(term)-1]
	}
	return term
}
