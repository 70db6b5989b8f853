package docstats

import (
	"path/filepath"
	"testing"

	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/lexicon"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "doc_stats.bin"))
	c.Put(Entry{DocID: "1", DocLength: 42, TitleFreqs: map[int]int{0: 2, 3: 1}})
	c.Put(Entry{DocID: "2", DocLength: 7, TitleFreqs: map[int]int{}})

	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New(c.path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Count() != 2 {
		t.Fatalf("Count = %d, want 2", loaded.Count())
	}
	e, ok := loaded.Get("1")
	if !ok {
		t.Fatalf("doc 1 missing after round trip")
	}
	if e.DocLength != 42 || e.TitleFreqs[0] != 2 || e.TitleFreqs[3] != 1 {
		t.Errorf("doc 1 entry = %+v, want doc_length=42 title_freqs={0:2,3:1}", e)
	}
}

func TestRebuildFromForwardIndexKeepsOnlyTitleWords(t *testing.T) {
	lex := lexicon.New()
	lex.BuildFromCorpus([][]string{{"alpha", "beta"}})

	path := filepath.Join(t.TempDir(), "forward_index.jsonl")
	fwd := forwardindex.New(path)
	rec := forwardindex.BuildFromTokenLists(lex, []string{"alpha"}, []string{"beta"})
	if err := fwd.AppendDocument("5", rec); err != nil {
		t.Fatalf("AppendDocument: %v", err)
	}

	c := New(filepath.Join(t.TempDir(), "doc_stats.bin"))
	if err := c.RebuildFromForwardIndex(fwd); err != nil {
		t.Fatalf("RebuildFromForwardIndex: %v", err)
	}

	e, ok := c.Get("5")
	if !ok {
		t.Fatalf("doc 5 missing after rebuild")
	}
	alphaID := lex.GetWordIndex("alpha")
	betaID := lex.GetWordIndex("beta")
	if _, present := e.TitleFreqs[alphaID]; !present {
		t.Errorf("expected alpha in title freqs")
	}
	if _, present := e.TitleFreqs[betaID]; present {
		t.Errorf("beta should not be in title freqs (body-only word)")
	}
}

func TestValidDetectsStaleCache(t *testing.T) {
	lex := lexicon.New()
	lex.BuildFromCorpus([][]string{{"alpha"}})
	path := filepath.Join(t.TempDir(), "forward_index.jsonl")
	fwd := forwardindex.New(path)
	rec := forwardindex.BuildFromTokenLists(lex, []string{"alpha"}, nil)
	if err := fwd.AppendDocument("1", rec); err != nil {
		t.Fatalf("AppendDocument: %v", err)
	}

	c := New(filepath.Join(t.TempDir(), "doc_stats.bin"))
	if c.Valid(fwd) {
		t.Errorf("expected empty cache to be invalid against a non-empty forward index")
	}
	if err := c.RebuildFromForwardIndex(fwd); err != nil {
		t.Fatalf("RebuildFromForwardIndex: %v", err)
	}
	if !c.Valid(fwd) {
		t.Errorf("expected freshly rebuilt cache to be valid")
	}
}
