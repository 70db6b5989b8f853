// Package docstats implements the binary doc-stats cache: a compact,
// memory-mappable summary of document length and title word-frequencies
// used by the ranking scorer without re-reading the forward index on every
// query. The cache is a derived structure — it is always safe to discard
// and rebuild from the forward index.
package docstats

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/paperindex/docsearch/internal/forwardindex"
)

// Entry is one document's cached ranking inputs.
type Entry struct {
	DocID      string
	DocLength  int
	TitleFreqs map[int]int // word_id -> title_frequency, title words only
}

// Cache is a thread-safe, atomically-persisted doc-stats cache. On-disk
// layout: u32 num_docs, then per document: i32 doc_id, i32 doc_length,
// u32 num_title_freqs, (i32 word_id, i32 freq){num_title_freqs}.
type Cache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
}

// New returns a Cache backed by path.
func New(path string) *Cache {
	return &Cache{path: path, entries: make(map[string]Entry)}
}

// Get returns the cached entry for docID, if present.
func (c *Cache) Get(docID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[docID]
	return e, ok
}

// Put inserts or replaces one entry in memory without touching disk. Save
// must be called to persist.
func (c *Cache) Put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.DocID] = e
}

// Count returns the number of cached documents.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load reads the binary cache file. A missing file leaves the cache empty
// without error, matching a fresh installation.
func (c *Cache) Load() error {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening doc-stats cache %s: %w", c.path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var numDocs uint32
	if err := binary.Read(r, binary.LittleEndian, &numDocs); err != nil {
		return fmt.Errorf("reading doc-stats header: %w", err)
	}

	entries := make(map[string]Entry, numDocs)
	for i := uint32(0); i < numDocs; i++ {
		var docID, docLength int32
		if err := binary.Read(r, binary.LittleEndian, &docID); err != nil {
			return fmt.Errorf("reading doc_id at record %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &docLength); err != nil {
			return fmt.Errorf("reading doc_length at record %d: %w", i, err)
		}
		var numTitleFreqs uint32
		if err := binary.Read(r, binary.LittleEndian, &numTitleFreqs); err != nil {
			return fmt.Errorf("reading num_title_freqs at record %d: %w", i, err)
		}
		titleFreqs := make(map[int]int, numTitleFreqs)
		for j := uint32(0); j < numTitleFreqs; j++ {
			var wordID, freq int32
			if err := binary.Read(r, binary.LittleEndian, &wordID); err != nil {
				return fmt.Errorf("reading word_id at record %d/%d: %w", i, j, err)
			}
			if err := binary.Read(r, binary.LittleEndian, &freq); err != nil {
				return fmt.Errorf("reading freq at record %d/%d: %w", i, j, err)
			}
			titleFreqs[int(wordID)] = int(freq)
		}
		idStr := strconv.Itoa(int(docID))
		entries[idStr] = Entry{DocID: idStr, DocLength: int(docLength), TitleFreqs: titleFreqs}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Save writes the cache atomically via temp-file-then-rename.
func (c *Cache) Save() error {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating doc-stats dir %s: %w", dir, err)
	}
	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating doc-stats temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		f.Close()
		return fmt.Errorf("writing doc-stats header: %w", err)
	}
	for _, e := range entries {
		docID, err := strconv.Atoi(e.DocID)
		if err != nil {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, int32(docID)); err != nil {
			f.Close()
			return fmt.Errorf("writing doc_id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(e.DocLength)); err != nil {
			f.Close()
			return fmt.Errorf("writing doc_length: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.TitleFreqs))); err != nil {
			f.Close()
			return fmt.Errorf("writing num_title_freqs: %w", err)
		}
		for wordID, freq := range e.TitleFreqs {
			if err := binary.Write(w, binary.LittleEndian, int32(wordID)); err != nil {
				f.Close()
				return fmt.Errorf("writing word_id: %w", err)
			}
			if err := binary.Write(w, binary.LittleEndian, int32(freq)); err != nil {
				f.Close()
				return fmt.Errorf("writing freq: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing doc-stats temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing doc-stats temp file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("renaming doc-stats temp file: %w", err)
	}
	return nil
}

// Valid reports whether the cache's document count matches the forward
// index's, the cheap heuristic used to detect a stale cache after ingest
// activity that bypassed the normal update path (e.g. manual file edits or
// a crash between forward-index append and cache update).
func (c *Cache) Valid(fwd *forwardindex.ForwardIndex) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries) == fwd.LineCount()
}

// RebuildFromForwardIndex discards the in-memory cache and rebuilds it by
// streaming every record in fwd, extracting title-word frequencies only
// (the cache's purpose is answering the ranking scorer's title-boost
// lookups without touching the forward index file).
func (c *Cache) RebuildFromForwardIndex(fwd *forwardindex.ForwardIndex) error {
	entries := make(map[string]Entry)
	err := fwd.ForEachRecord(func(docID string, rec forwardindex.Record) error {
		titleFreqs := make(map[int]int)
		for wordIDStr, stats := range rec.Words {
			if stats.TitleFrequency == 0 {
				continue
			}
			wordID, convErr := strconv.Atoi(wordIDStr)
			if convErr != nil {
				return nil
			}
			titleFreqs[wordID] = stats.TitleFrequency
		}
		entries[docID] = Entry{DocID: docID, DocLength: rec.DocLength, TitleFreqs: titleFreqs}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuilding doc-stats cache: %w", err)
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}
