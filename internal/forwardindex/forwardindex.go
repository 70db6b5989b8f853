// Package forwardindex implements the per-document forward index: an
// append-only JSONL file mapping doc_id to word-id frequency/position
// statistics.
package forwardindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/paperindex/docsearch/internal/lexicon"
	"github.com/paperindex/docsearch/internal/tokenizer"
)

const maxLineCapacity = 4 * 1024 * 1024

// WordStats holds the per-(doc, word) statistics stored in a forward-index
// record. It accepts the legacy frequency-only shape on read (see
// UnmarshalJSON) but is always emitted in the canonical title/body-split
// shape.
type WordStats struct {
	TitleFrequency    int   `json:"title_frequency"`
	BodyFrequency     int   `json:"body_frequency"`
	WeightedFrequency int   `json:"weighted_frequency"`
	TitlePositions    []int `json:"title_positions"`
	BodyPositions     []int `json:"body_positions"`
}

// legacyWordStats is the older frequency-only shape found in some
// translation units of the original source.
type legacyWordStats struct {
	Frequency int `json:"frequency"`
}

// UnmarshalJSON accepts both the canonical title/body-split shape and the
// legacy frequency-only shape, normalizing the latter to
// body_frequency=frequency, title_frequency=0.
func (w *WordStats) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	_, hasTitle := probe["title_frequency"]
	_, hasBody := probe["body_frequency"]
	if hasTitle || hasBody {
		type canonical WordStats
		var c canonical
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		*w = WordStats(c)
		return nil
	}
	var legacy legacyWordStats
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	*w = WordStats{
		TitleFrequency:    0,
		BodyFrequency:     legacy.Frequency,
		WeightedFrequency: legacy.Frequency,
	}
	return nil
}

// NewWordStats computes weighted_frequency from title/body frequencies.
func NewWordStats(titleFreq, bodyFreq int, titlePositions, bodyPositions []int) WordStats {
	return WordStats{
		TitleFrequency:    titleFreq,
		BodyFrequency:     bodyFreq,
		WeightedFrequency: 3*titleFreq + bodyFreq,
		TitlePositions:    titlePositions,
		BodyPositions:     bodyPositions,
	}
}

// Record is one document's forward-index entry.
type Record struct {
	DocLength   int                  `json:"doc_length"`
	TitleLength int                  `json:"title_length"`
	BodyLength  int                  `json:"body_length"`
	Words       map[string]WordStats `json:"words"`
}

// envelope is the on-disk wrapper: one per line.
type envelope struct {
	DocID string `json:"doc_id"`
	Data  Record `json:"data"`
}

// ForwardIndex is an append-only JSONL forward index with an in-memory
// byte-offset map for O(1) single-line recovery.
type ForwardIndex struct {
	mu      sync.RWMutex
	path    string
	offsets map[string]int64
}

// New returns a ForwardIndex backed by path. Load should be called once at
// startup to populate the offset map from any existing file.
func New(path string) *ForwardIndex {
	return &ForwardIndex{path: path, offsets: make(map[string]int64)}
}

// Load streams the existing file (if any) and rebuilds the offset map,
// skipping malformed lines with a warning rather than failing outright.
func (fi *ForwardIndex) Load() error {
	f, err := os.Open(fi.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening forward index %s: %w", fi.path, err)
	}
	defer f.Close()

	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.offsets = make(map[string]int64)

	reader := bufio.NewReaderSize(f, 64*1024)
	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		lineLen := int64(len(line))
		if len(line) > 0 {
			trimmed := line
			if trimmed[len(trimmed)-1] == '\n' {
				trimmed = trimmed[:len(trimmed)-1]
			}
			if len(trimmed) > 0 {
				var env envelope
				if jsonErr := json.Unmarshal(trimmed, &env); jsonErr == nil {
					fi.offsets[env.DocID] = offset
				} else {
					slog.Warn("skipping malformed forward index line", "path", fi.path, "offset", offset, "error", jsonErr)
				}
			}
		}
		offset += lineLen
		if err != nil {
			break
		}
	}
	return nil
}

// AppendDocument appends one serialized record under the doc_id ->
// data{...} envelope and records its byte offset for O(1) recovery.
func (fi *ForwardIndex) AppendDocument(docID string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(fi.path), 0o755); err != nil {
		return fmt.Errorf("creating forward index dir: %w", err)
	}

	fi.mu.Lock()
	defer fi.mu.Unlock()

	f, err := os.OpenFile(fi.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening forward index for append: %w", err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("seeking forward index: %w", err)
	}

	data, err := json.Marshal(envelope{DocID: docID, Data: rec})
	if err != nil {
		return fmt.Errorf("marshaling forward index record: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("appending forward index record: %w", err)
	}
	fi.offsets[docID] = offset
	return nil
}

// ReadLine reads a single record directly from disk by its recorded byte
// offset, used as the doc-stats-cache-miss fallback so a just-ingested
// document doesn't silently lose its title-boost factor.
func (fi *ForwardIndex) ReadLine(docID string) (Record, bool, error) {
	fi.mu.RLock()
	offset, ok := fi.offsets[docID]
	fi.mu.RUnlock()
	if !ok {
		return Record{}, false, nil
	}

	f, err := os.Open(fi.path)
	if err != nil {
		return Record{}, false, fmt.Errorf("opening forward index %s: %w", fi.path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return Record{}, false, fmt.Errorf("seeking forward index: %w", err)
	}
	reader := bufio.NewReaderSize(f, maxLineCapacity)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Record{}, false, fmt.Errorf("reading forward index line: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(trimNewline(line), &env); err != nil {
		return Record{}, false, fmt.Errorf("parsing forward index line for doc %s: %w", docID, err)
	}
	return env.Data, true, nil
}

// LineCount returns the number of documents present in the forward index,
// used by the doc-stats cache to sanity-check its own validity.
func (fi *ForwardIndex) LineCount() int {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return len(fi.offsets)
}

// DocIDs returns every doc_id present in the forward index.
func (fi *ForwardIndex) DocIDs() []string {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	ids := make([]string, 0, len(fi.offsets))
	for id := range fi.offsets {
		ids = append(ids, id)
	}
	return ids
}

// ForEachRecord streams the file from disk in order, invoking fn once per
// document without holding the whole index in memory. It does not take the
// index's lock since it opens its own file handle independent of the
// in-memory offset map; callers should not interleave concurrent appends and
// full scans of the same generation of the file.
func (fi *ForwardIndex) ForEachRecord(fn func(docID string, rec Record) error) error {
	f, err := os.Open(fi.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening forward index %s: %w", fi.path, err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(f, maxLineCapacity)
	for {
		line, err := reader.ReadBytes('\n')
		if len(trimNewline(line)) > 0 {
			var env envelope
			if jsonErr := json.Unmarshal(trimNewline(line), &env); jsonErr == nil {
				if fnErr := fn(env.DocID, env.Data); fnErr != nil {
					return fnErr
				}
			}
		}
		if err != nil {
			break
		}
	}
	return nil
}

func trimNewline(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		return line[:len(line)-1]
	}
	return line
}

// BuildFromTitleBody tokenizes raw title and body text against lex,
// producing the Record for a document. Tokens that don't resolve to a
// lexicon word-id are still counted toward doc/title/body length but
// contribute no posting.
func BuildFromTitleBody(lex *lexicon.Lexicon, title, body string) Record {
	return buildRecord(lex, tokenizer.Tokenize(title), tokenizer.Tokenize(body))
}

// BuildFromTokenLists is the pre-tokenized variant, used when title and
// body tokens are supplied directly (e.g. from the external tokenizer).
func BuildFromTokenLists(lex *lexicon.Lexicon, titleTokens, bodyTokens []string) Record {
	titleToks := make([]tokenizer.Token, len(titleTokens))
	for i, t := range titleTokens {
		titleToks[i] = tokenizer.Token{Term: t, Position: i}
	}
	bodyToks := make([]tokenizer.Token, len(bodyTokens))
	for i, t := range bodyTokens {
		bodyToks[i] = tokenizer.Token{Term: t, Position: i}
	}
	return buildRecord(lex, titleToks, bodyToks)
}

func buildRecord(lex *lexicon.Lexicon, titleToks, bodyToks []tokenizer.Token) Record {
	type accum struct {
		titleFreq, bodyFreq           int
		titlePositions, bodyPositions []int
	}
	byWord := make(map[int]*accum)

	for _, tok := range titleToks {
		id := lex.GetWordIndex(tok.Term)
		if id < 0 {
			continue
		}
		a, ok := byWord[id]
		if !ok {
			a = &accum{}
			byWord[id] = a
		}
		a.titleFreq++
		a.titlePositions = append(a.titlePositions, tok.Position)
	}
	for _, tok := range bodyToks {
		id := lex.GetWordIndex(tok.Term)
		if id < 0 {
			continue
		}
		a, ok := byWord[id]
		if !ok {
			a = &accum{}
			byWord[id] = a
		}
		a.bodyFreq++
		a.bodyPositions = append(a.bodyPositions, tok.Position)
	}

	words := make(map[string]WordStats, len(byWord))
	for id, a := range byWord {
		words[strconv.Itoa(id)] = NewWordStats(a.titleFreq, a.bodyFreq, a.titlePositions, a.bodyPositions)
	}

	return Record{
		DocLength:   len(titleToks) + len(bodyToks),
		TitleLength: len(titleToks),
		BodyLength:  len(bodyToks),
		Words:       words,
	}
}
