package metadata

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "metadata.json"))
	s.Put("1", Entry{PublicationYear: 2021, Title: "Alpha Paper", URL: "https://example.com/1", Keywords: []string{"alpha"}})

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New(s.path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, ok := loaded.Get("1")
	if !ok {
		t.Fatalf("doc 1 missing after round trip")
	}
	if e.PublicationYear != 2021 || e.Title != "Alpha Paper" {
		t.Errorf("entry = %+v", e)
	}
}

func TestGetMissReturnsZeroValue(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "metadata.json"))
	e, ok := s.Get("missing")
	if ok {
		t.Fatalf("expected miss")
	}
	if e.PublicationYear != 0 || e.Title != "" || len(e.Keywords) != 0 {
		t.Errorf("expected zero-value entry on miss, got %+v", e)
	}
}
