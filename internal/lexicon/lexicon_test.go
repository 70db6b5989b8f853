package lexicon

import (
	"path/filepath"
	"testing"
)

func TestBuildFromCorpusAssignsSortedIDs(t *testing.T) {
	lex := New()
	lex.SetMinFrequency(1)
	lex.SetMaxFrequencyPercentile(100)

	lex.BuildFromCorpus([][]string{
		{"alpha", "beta", "alpha"},
		{"beta", "gamma"},
	})

	cases := map[string]int{"alpha": 0, "beta": 1, "gamma": 2}
	for word, want := range cases {
		if got := lex.GetWordIndex(word); got != want {
			t.Errorf("GetWordIndex(%q) = %d, want %d", word, got, want)
		}
	}
	if lex.Size() != 3 {
		t.Errorf("Size() = %d, want 3", lex.Size())
	}
}

func TestBijection(t *testing.T) {
	lex := New()
	lex.BuildFromCorpus([][]string{{"algebra", "topology", "combinatorics"}})
	for id := 0; id < lex.Size(); id++ {
		word := lex.GetWord(id)
		if lex.GetWordIndex(word) != id {
			t.Errorf("bijection broken for id %d (word %q)", id, word)
		}
	}
}

func TestUpdateFromTokensNeverRenumbers(t *testing.T) {
	lex := New()
	lex.BuildFromCorpus([][]string{{"algebra", "topology"}})
	beforeAlgebra := lex.GetWordIndex("algebra")
	beforeTopology := lex.GetWordIndex("topology")

	dir := t.TempDir()
	if err := lex.UpdateFromTokens([]string{"algebra", "calculus"}, filepath.Join(dir, "lexicon.json")); err != nil {
		t.Fatalf("UpdateFromTokens: %v", err)
	}

	if lex.GetWordIndex("algebra") != beforeAlgebra {
		t.Errorf("algebra id changed after update")
	}
	if lex.GetWordIndex("topology") != beforeTopology {
		t.Errorf("topology id changed after update")
	}
	if lex.GetWordIndex("calculus") < 0 {
		t.Errorf("calculus was not assigned an id")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	lex := New()
	lex.BuildFromCorpus([][]string{{"vector", "matrix", "tensor"}})
	path := filepath.Join(t.TempDir(), "lexicon.json")
	if err := lex.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Size() != lex.Size() {
		t.Errorf("loaded size = %d, want %d", loaded.Size(), lex.Size())
	}
	if loaded.GetWordIndex("matrix") != lex.GetWordIndex("matrix") {
		t.Errorf("id mismatch after round trip")
	}
}

func TestPercentileCutoffKeepsBottomP(t *testing.T) {
	docFreq := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	cutoff := computePercentileCutoff(docFreq, 40)
	if cutoff != 2 {
		t.Errorf("computePercentileCutoff = %d, want 2", cutoff)
	}
	if got := computePercentileCutoff(docFreq, 100); got != -1 {
		t.Errorf("computePercentileCutoff(100) = %d, want -1 (no cutoff)", got)
	}
}
