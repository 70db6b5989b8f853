package invertedindex

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/lexicon"
)

func TestBuildPartitionsByBarrelID(t *testing.T) {
	lex := lexicon.New()
	lex.BuildFromCorpus([][]string{{"alpha", "beta"}})
	wordZero := lex.GetWordIndex("alpha")
	wordOne := lex.GetWordIndex("beta")

	dir := t.TempDir()
	fwdPath := filepath.Join(dir, "forward_index.jsonl")
	fwd := forwardindex.New(fwdPath)

	rec := forwardindex.BuildFromTokenLists(lex, []string{"alpha"}, []string{"alpha", "beta"})
	if err := fwd.AppendDocument("doc-1", rec); err != nil {
		t.Fatalf("AppendDocument: %v", err)
	}

	barrelDir := filepath.Join(dir, "barrels")
	barrels := NewBarrels(barrelDir, 2)
	if err := barrels.Build(fwd); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if barrels.BarrelID(wordZero) != 0 || barrels.BarrelID(wordOne) != 1 {
		t.Fatalf("unexpected barrel assignment: alpha=%d beta=%d", barrels.BarrelID(wordZero), barrels.BarrelID(wordOne))
	}

	barrel0, err := barrels.LoadBarrel(0)
	if err != nil {
		t.Fatalf("LoadBarrel(0): %v", err)
	}
	postings, ok := barrel0["0"]
	if !ok || len(postings) != 1 {
		t.Fatalf("barrel 0 postings for word 0 = %v, want one posting", postings)
	}
	if postings[0].DocID != "doc-1" || postings[0].WeightedFrequency != 4 {
		t.Errorf("alpha posting = %+v, want doc-1 weighted_freq=4", postings[0])
	}
	if len(postings[0].Positions) != 2 {
		t.Errorf("alpha positions = %v, want 2 entries", postings[0].Positions)
	}

	barrel1, err := barrels.LoadBarrel(1)
	if err != nil {
		t.Fatalf("LoadBarrel(1): %v", err)
	}
	betaPostings, ok := barrel1["1"]
	if !ok || len(betaPostings) != 1 {
		t.Fatalf("barrel 1 postings for word 1 = %v, want one posting", betaPostings)
	}
	if betaPostings[0].WeightedFrequency != 1 {
		t.Errorf("beta weighted_freq = %d, want 1", betaPostings[0].WeightedFrequency)
	}
}

func TestDeltaUpdateAndMergeIntoBarrel(t *testing.T) {
	lex := lexicon.New()
	lex.BuildFromCorpus([][]string{{"gamma"}})
	wordID := lex.GetWordIndex("gamma")

	dir := t.TempDir()
	barrelDir := filepath.Join(dir, "barrels")
	barrels := NewBarrels(barrelDir, 4)

	delta := NewDelta(filepath.Join(dir, "inverted_delta.json"))
	rec := forwardindex.BuildFromTokenLists(lex, nil, []string{"gamma"})
	if err := delta.Update("doc-9", rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := delta.Get(wordID); len(got) != 1 || got[0].DocID != "doc-9" {
		t.Fatalf("Delta.Get after update = %v", got)
	}

	if err := delta.MergeInto(barrels); err != nil {
		t.Fatalf("MergeInto: %v", err)
	}
	if delta.Size() != 0 {
		t.Errorf("delta size after merge = %d, want 0", delta.Size())
	}

	k := barrels.BarrelID(wordID)
	pm, err := barrels.LoadBarrel(k)
	if err != nil {
		t.Fatalf("LoadBarrel: %v", err)
	}
	postings := pm[strconv.Itoa(wordID)]
	if len(postings) != 1 || postings[0].DocID != "doc-9" {
		t.Errorf("merged barrel postings = %v, want one posting for doc-9", postings)
	}
}

func TestPostingsFileRoundTripPreservesTuple(t *testing.T) {
	pm := PostingsMap{
		"3": {{DocID: "d1", WeightedFrequency: 5, Positions: []int{0, 4}}},
	}
	path := filepath.Join(t.TempDir(), "barrel.json")
	if err := SavePostingsFile(path, pm); err != nil {
		t.Fatalf("SavePostingsFile: %v", err)
	}
	loaded, err := LoadPostingsFile(path)
	if err != nil {
		t.Fatalf("LoadPostingsFile: %v", err)
	}
	got := loaded["3"]
	if len(got) != 1 || got[0].DocID != "d1" || got[0].WeightedFrequency != 5 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
