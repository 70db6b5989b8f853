package lexicon

import (
	"bufio"
	"os"
	"strings"
)

// defaultStopwords ships baked into the package, mirroring
// load_default_stopwords in the original tokenizer.
var defaultStopwords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by", "from",
	"as", "is", "was", "are", "were", "be", "have", "has", "had", "do", "does", "did", "will", "would",
	"should", "could", "may", "might", "must", "can", "this", "that", "these", "those", "i", "you",
	"he", "she", "it", "we", "they", "what", "which", "who", "when", "where", "why", "how", "all",
	"each", "every", "both", "few", "more", "most", "other", "some", "such", "no", "not", "only",
	"own", "same", "so", "than", "too", "very", "now", "then", "there", "their", "them", "through",
	"under", "until", "up", "use", "using", "via", "year", "years", "your", "yours",
}

// stopwordSet is a lookup set of lowercased stopwords.
type stopwordSet map[string]struct{}

func newDefaultStopwordSet() stopwordSet {
	s := make(stopwordSet, len(defaultStopwords))
	for _, w := range defaultStopwords {
		s[w] = struct{}{}
	}
	return s
}

// loadStopwordsFromFile reads one stopword per line, matching
// load_stopwords_from_file's whitespace-trim-and-lowercase behavior.
func loadStopwordsFromFile(path string) (stopwordSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set := make(stopwordSet)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

func (s stopwordSet) contains(word string) bool {
	_, ok := s[word]
	return ok
}
