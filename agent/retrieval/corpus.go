package retrieval

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed faqs.txt
var defaultFAQ string

// LoadCorpus reads one entry per non-empty line. An empty path yields the
// built-in hotel FAQ.
func LoadCorpus(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return SplitCorpus(defaultFAQ), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read faq corpus %s: %w", path, err)
	}
	return SplitCorpus(string(data)), nil
}

func SplitCorpus(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
