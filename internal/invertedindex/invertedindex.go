// Package invertedindex implements the barrel-partitioned inverted index and
// its in-memory/on-disk delta overlay. Barrels are static, rebuilt only by a
// full Build; newly ingested documents land in the delta until a merge folds
// them into their owning barrel.
package invertedindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/paperindex/docsearch/internal/forwardindex"
)

// Posting is one document's contribution to a word's postings list. On disk
// it is a 3-tuple: [doc_id, weighted_frequency, positions].
type Posting struct {
	DocID             string
	WeightedFrequency int
	Positions         []int
}

// MarshalJSON emits the pinned [doc_id, weighted_freq, [positions]] tuple.
func (p Posting) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.DocID, p.WeightedFrequency, p.Positions})
}

// UnmarshalJSON parses the pinned tuple shape.
func (p *Posting) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 3 {
		return fmt.Errorf("posting tuple has %d elements, want 3", len(tuple))
	}
	var docID string
	if err := json.Unmarshal(tuple[0], &docID); err != nil {
		return err
	}
	var freq int
	if err := json.Unmarshal(tuple[1], &freq); err != nil {
		return err
	}
	var positions []int
	if err := json.Unmarshal(tuple[2], &positions); err != nil {
		return err
	}
	p.DocID = docID
	p.WeightedFrequency = freq
	p.Positions = positions
	return nil
}

// PostingsMap is the on-disk shape of a barrel or delta file: word-id
// (stringified) to its postings list.
type PostingsMap map[string][]Posting

// BarrelID computes the owning barrel for a word-id under n barrels.
func BarrelID(wordID, n int) int {
	if n <= 0 {
		return 0
	}
	return wordID % n
}

// LoadPostingsFile reads a barrel or delta file. A missing file is treated
// as an empty map, matching the fresh-installation state.
func LoadPostingsFile(path string) (PostingsMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PostingsMap{}, nil
		}
		return nil, fmt.Errorf("reading postings file %s: %w", path, err)
	}
	if len(data) == 0 {
		return PostingsMap{}, nil
	}
	var pm PostingsMap
	if err := json.Unmarshal(data, &pm); err != nil {
		return nil, fmt.Errorf("parsing postings file %s: %w", path, err)
	}
	if pm == nil {
		pm = PostingsMap{}
	}
	return pm, nil
}

// SavePostingsFile writes pm atomically via temp-file-then-rename.
func SavePostingsFile(path string, pm PostingsMap) error {
	if pm == nil {
		pm = PostingsMap{}
	}
	data, err := json.Marshal(pm)
	if err != nil {
		return fmt.Errorf("marshaling postings file: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating postings dir %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing postings temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming postings temp file: %w", err)
	}
	return nil
}

// Barrels manages the fixed set of on-disk barrel files.
type Barrels struct {
	dir string
	n   int
}

// NewBarrels returns a Barrels manager for n barrels rooted at dir.
func NewBarrels(dir string, n int) *Barrels {
	return &Barrels{dir: dir, n: n}
}

// Count returns the configured barrel count.
func (b *Barrels) Count() int { return b.n }

// BarrelPath returns the on-disk path for barrel k.
func (b *Barrels) BarrelPath(k int) string {
	return filepath.Join(b.dir, fmt.Sprintf("inverted_barrel_%d.json", k))
}

// BarrelID computes the owning barrel for a word-id.
func (b *Barrels) BarrelID(wordID int) int { return BarrelID(wordID, b.n) }

// LoadBarrel reads barrel k from disk.
func (b *Barrels) LoadBarrel(k int) (PostingsMap, error) {
	return LoadPostingsFile(b.BarrelPath(k))
}

// SaveBarrel atomically writes barrel k.
func (b *Barrels) SaveBarrel(k int, pm PostingsMap) error {
	return SavePostingsFile(b.BarrelPath(k), pm)
}

// Build performs a full rebuild of every barrel by streaming the forward
// index once. It accumulates postings for all barrels in memory and writes
// each non-empty barrel once at the end, so barrel files always reflect a
// single consistent snapshot of the forward index.
func (b *Barrels) Build(fwd *forwardindex.ForwardIndex) error {
	if b.n <= 0 {
		return fmt.Errorf("invalid barrel count %d", b.n)
	}
	accum := make([]PostingsMap, b.n)
	for i := range accum {
		accum[i] = PostingsMap{}
	}

	err := fwd.ForEachRecord(func(docID string, rec forwardindex.Record) error {
		for wordIDStr, stats := range rec.Words {
			wordID, convErr := strconv.Atoi(wordIDStr)
			if convErr != nil {
				continue
			}
			k := BarrelID(wordID, b.n)
			positions := append(append([]int{}, stats.TitlePositions...), stats.BodyPositions...)
			accum[k][wordIDStr] = append(accum[k][wordIDStr], Posting{
				DocID:             docID,
				WeightedFrequency: stats.WeightedFrequency,
				Positions:         positions,
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("streaming forward index: %w", err)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating barrel dir %s: %w", b.dir, err)
	}
	for k, pm := range accum {
		if len(pm) == 0 {
			continue
		}
		if err := b.SaveBarrel(k, pm); err != nil {
			return fmt.Errorf("saving barrel %d: %w", k, err)
		}
	}
	return nil
}

// Delta is the in-memory-plus-file-mirrored overlay of postings for
// documents ingested since the last merge into the main barrels.
type Delta struct {
	mu       sync.RWMutex
	path     string
	postings PostingsMap
}

// NewDelta returns a Delta backed by path. Load should be called once at
// startup.
func NewDelta(path string) *Delta {
	return &Delta{path: path, postings: PostingsMap{}}
}

// Load reads the delta file from disk into memory, used both at startup and
// for the query engine's reload_delta_index operation.
func (d *Delta) Load() error {
	pm, err := LoadPostingsFile(d.path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.postings = pm
	d.mu.Unlock()
	return nil
}

// Get returns a copy of the postings list for wordID, or nil if absent.
func (d *Delta) Get(wordID int) []Posting {
	d.mu.RLock()
	defer d.mu.RUnlock()
	postings, ok := d.postings[strconv.Itoa(wordID)]
	if !ok {
		return nil
	}
	out := make([]Posting, len(postings))
	copy(out, postings)
	return out
}

// Update appends one posting per word present in rec to the in-memory delta
// and persists the whole delta file atomically.
func (d *Delta) Update(docID string, rec forwardindex.Record) error {
	d.mu.Lock()
	for wordIDStr, stats := range rec.Words {
		positions := append(append([]int{}, stats.TitlePositions...), stats.BodyPositions...)
		d.postings[wordIDStr] = append(d.postings[wordIDStr], Posting{
			DocID:             docID,
			WeightedFrequency: stats.WeightedFrequency,
			Positions:         positions,
		})
	}
	snapshot := d.postings
	d.mu.Unlock()
	return SavePostingsFile(d.path, snapshot)
}

// UpdateBatch appends postings for every document in docs in a single
// in-memory pass and persists the delta once, avoiding one temp-file
// rewrite per document during a batch flush.
func (d *Delta) UpdateBatch(docs map[string]forwardindex.Record) error {
	if len(docs) == 0 {
		return nil
	}
	d.mu.Lock()
	for docID, rec := range docs {
		for wordIDStr, stats := range rec.Words {
			positions := append(append([]int{}, stats.TitlePositions...), stats.BodyPositions...)
			d.postings[wordIDStr] = append(d.postings[wordIDStr], Posting{
				DocID:             docID,
				WeightedFrequency: stats.WeightedFrequency,
				Positions:         positions,
			})
		}
	}
	snapshot := d.postings
	d.mu.Unlock()
	return SavePostingsFile(d.path, snapshot)
}

// Size returns the number of distinct words present in the delta.
func (d *Delta) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.postings)
}

// MergeInto folds every delta posting into its owning barrel, grouping by
// barrel to minimize file I/O, then truncates the delta to empty. Existing
// barrel postings are preserved and new ones appended after them.
func (d *Delta) MergeInto(barrels *Barrels) error {
	d.mu.Lock()
	snapshot := d.postings
	d.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	byBarrel := make(map[int][]string)
	for wordIDStr := range snapshot {
		wordID, err := strconv.Atoi(wordIDStr)
		if err != nil {
			continue
		}
		k := barrels.BarrelID(wordID)
		byBarrel[k] = append(byBarrel[k], wordIDStr)
	}

	barrelKeys := make([]int, 0, len(byBarrel))
	for k := range byBarrel {
		barrelKeys = append(barrelKeys, k)
	}
	sort.Ints(barrelKeys)

	for _, k := range barrelKeys {
		pm, err := barrels.LoadBarrel(k)
		if err != nil {
			return fmt.Errorf("loading barrel %d for merge: %w", k, err)
		}
		for _, wordIDStr := range byBarrel[k] {
			pm[wordIDStr] = append(pm[wordIDStr], snapshot[wordIDStr]...)
		}
		if err := barrels.SaveBarrel(k, pm); err != nil {
			return fmt.Errorf("saving barrel %d after merge: %w", k, err)
		}
	}

	d.mu.Lock()
	d.postings = PostingsMap{}
	d.mu.Unlock()
	return SavePostingsFile(d.path, PostingsMap{})
}
