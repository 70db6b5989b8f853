package urlmap

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "url_map.json"))
	m.Put("1", "https://example.com/paper-1")

	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New(m.path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Get("1"); got != "https://example.com/paper-1" {
		t.Errorf("Get(1) = %q", got)
	}
}

func TestGetMissReturnsEmptyString(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "url_map.json"))
	if got := m.Get("missing"); got != "" {
		t.Errorf("Get(missing) = %q, want empty string", got)
	}
}
