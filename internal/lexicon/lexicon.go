// Package lexicon implements the bijection between normalized tokens and
// dense integer word-ids: the leaf component every other index structure
// is built on top of.
package lexicon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/paperindex/docsearch/internal/tokenizer"
)

// Lexicon is a thread-safe word <-> word-id bijection. Ids are permanent
// once assigned; UpdateFromTokens only ever appends.
type Lexicon struct {
	mu          sync.RWMutex
	wordToIndex map[string]int
	indexToWord []string
	stopwords   stopwordSet

	minFrequency           int
	maxFrequencyPercentile int

	logger *slog.Logger
}

// New returns an empty Lexicon seeded with the default stopword list.
func New() *Lexicon {
	return &Lexicon{
		wordToIndex:            make(map[string]int),
		indexToWord:            nil,
		stopwords:              newDefaultStopwordSet(),
		minFrequency:           1,
		maxFrequencyPercentile: 100,
		logger:                 slog.Default().With("component", "lexicon"),
	}
}

// SetMinFrequency sets the minimum document frequency a candidate token
// must reach to survive BuildFromCorpus.
func (l *Lexicon) SetMinFrequency(n int) {
	if n < 1 {
		n = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minFrequency = n
}

// SetMaxFrequencyPercentile clamps p to [1,100] and sets the upper-frequency
// cutoff used to keep only the bottom P% of frequencies.
func (l *Lexicon) SetMaxFrequencyPercentile(p int) {
	if p < 1 {
		p = 1
	}
	if p > 100 {
		p = 100
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxFrequencyPercentile = p
}

// SetStopwordsPath replaces the default stopword set with one loaded from a
// file, one stopword per line. On failure the previous set is kept and the
// error is returned for the caller to log as a warning.
func (l *Lexicon) SetStopwordsPath(path string) error {
	set, err := loadStopwordsFromFile(path)
	if err != nil {
		return fmt.Errorf("loading stopwords from %s: %w", path, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopwords = set
	return nil
}

// isCandidate reports whether word (already lowercased) passes the
// structural significance filters: minimum length, not all-digit, not a
// stopword. It does not check frequency thresholds.
func (l *Lexicon) isCandidate(word string) bool {
	if len(word) < 3 {
		return false
	}
	if tokenizer.IsAllDigits(word) {
		return false
	}
	return !l.stopwords.contains(word)
}

// BuildFromCorpus builds the lexicon from scratch given one token list per
// document. Each unique token in a document counts once toward that
// token's document frequency. Tokens are filtered by significance, minimum
// document frequency, and the max-frequency percentile cutoff, then sorted
// lexicographically and assigned dense ids in order.
func (l *Lexicon) BuildFromCorpus(docTokenLists [][]string) {
	docFreq := make(map[string]int)
	for _, tokens := range docTokenLists {
		seen := make(map[string]struct{}, len(tokens))
		for _, raw := range tokens {
			word := normalizeWord(raw)
			if _, dup := seen[word]; dup {
				continue
			}
			seen[word] = struct{}{}
			docFreq[word]++
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := computePercentileCutoff(docFreq, l.maxFrequencyPercentile)

	candidates := make([]string, 0, len(docFreq))
	for word, freq := range docFreq {
		if !l.isCandidate(word) {
			continue
		}
		if freq < l.minFrequency {
			continue
		}
		if cutoff >= 0 && freq > cutoff {
			continue
		}
		candidates = append(candidates, word)
	}
	sort.Strings(candidates)

	l.wordToIndex = make(map[string]int, len(candidates))
	l.indexToWord = make([]string, len(candidates))
	for i, word := range candidates {
		l.wordToIndex[word] = i
		l.indexToWord[i] = word
	}
	l.logger.Info("lexicon built", "documents", len(docTokenLists), "unique_tokens", len(docFreq), "significant_words", len(candidates))
}

// computePercentileCutoff sorts frequencies ascending and returns the
// frequency value at index keep_count-1, where keep_count = n*P/100
// (minimum 1). Candidates with freq > cutoff are the excluded top
// (100-P)%. Returns -1 if percentile is 100 (no cutoff) or there are no
// frequencies at all.
func computePercentileCutoff(docFreq map[string]int, percentile int) int {
	if percentile >= 100 || len(docFreq) == 0 {
		return -1
	}
	freqs := make([]int, 0, len(docFreq))
	for _, f := range docFreq {
		freqs = append(freqs, f)
	}
	sort.Ints(freqs)
	n := len(freqs)
	keepCount := (n * percentile) / 100
	if keepCount < 1 {
		keepCount = 1
	}
	if keepCount > n {
		keepCount = n
	}
	return freqs[keepCount-1]
}

// UpdateFromTokens allocates new dense ids for every token in tokens that
// is not already present and passes the significance filters, then
// persists the lexicon to persistPath. Existing ids are never renumbered.
func (l *Lexicon) UpdateFromTokens(tokens []string, persistPath string) error {
	l.mu.Lock()
	added := false
	seen := make(map[string]struct{}, len(tokens))
	for _, raw := range tokens {
		word := normalizeWord(raw)
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		if _, exists := l.wordToIndex[word]; exists {
			continue
		}
		if !l.isCandidate(word) {
			continue
		}
		id := len(l.indexToWord)
		l.wordToIndex[word] = id
		l.indexToWord = append(l.indexToWord, word)
		added = true
	}
	l.mu.Unlock()

	if !added || persistPath == "" {
		return nil
	}
	return l.Save(persistPath)
}

// GetWordIndex lowercases word and returns its id, or -1 if absent.
func (l *Lexicon) GetWordIndex(word string) int {
	word = normalizeWord(word)
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.wordToIndex[word]
	if !ok {
		return -1
	}
	return id
}

// GetWord returns the word for id, or "" if id is out of bounds.
func (l *Lexicon) GetWord(id int) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id < 0 || id >= len(l.indexToWord) {
		return ""
	}
	return l.indexToWord[id]
}

// Size returns the number of words currently in the lexicon.
func (l *Lexicon) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.indexToWord)
}

// Words returns a snapshot copy of the lexicon's vocabulary in id order,
// used to (re)build the autocomplete trie.
func (l *Lexicon) Words() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.indexToWord))
	copy(out, l.indexToWord)
	return out
}

type lexiconFile struct {
	WordToIndex map[string]int `json:"word_to_index"`
	IndexToWord []string       `json:"index_to_word"`
	TotalWords  int            `json:"total_words"`
}

// Load reads the persistent lexicon form. A corrupted file is treated as
// empty with a warning rather than a hard failure.
func (l *Lexicon) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading lexicon %s: %w", path, err)
	}
	var f lexiconFile
	if err := json.Unmarshal(data, &f); err != nil {
		l.logger.Warn("lexicon file corrupted, treating as empty", "path", path, "error", err)
		l.mu.Lock()
		l.wordToIndex = make(map[string]int)
		l.indexToWord = nil
		l.mu.Unlock()
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.indexToWord = f.IndexToWord
	if len(f.WordToIndex) > 0 {
		l.wordToIndex = f.WordToIndex
	} else {
		l.wordToIndex = make(map[string]int, len(l.indexToWord))
		for i, w := range l.indexToWord {
			l.wordToIndex[w] = i
		}
	}
	return nil
}

// Save writes the lexicon atomically via temp-file-then-rename.
func (l *Lexicon) Save(path string) error {
	l.mu.RLock()
	f := lexiconFile{
		WordToIndex: l.wordToIndex,
		IndexToWord: l.indexToWord,
		TotalWords:  len(l.indexToWord),
	}
	l.mu.RUnlock()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling lexicon: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating lexicon dir %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing lexicon temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming lexicon temp file: %w", err)
	}
	return nil
}

func normalizeWord(w string) string {
	return strings.ToLower(w)
}
