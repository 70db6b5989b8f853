package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/ingest/pool"
	"github.com/paperindex/docsearch/internal/invertedindex"
	"github.com/paperindex/docsearch/internal/lexicon"
	"github.com/paperindex/docsearch/internal/metadata"
	"github.com/paperindex/docsearch/internal/urlmap"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	lex := lexicon.New()
	fwd := forwardindex.New(filepath.Join(dir, "forward_index.jsonl"))
	delta := invertedindex.NewDelta(filepath.Join(dir, "inverted_delta.json"))
	meta := metadata.New(filepath.Join(dir, "document_metadata.json"))
	urls := urlmap.New(filepath.Join(dir, "docid_to_url.json"))

	w := New(Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
		LexiconPath:   filepath.Join(dir, "lexicon.json"),
	}, Deps{
		Lexicon:  lex,
		Forward:  fwd,
		Delta:    delta,
		Metadata: meta,
		URLs:     urls,
		DownloadFn: func(docID string) string {
			return "/download/" + docID
		},
	})
	return w, dir
}

func pendingDoc(lex *lexicon.Lexicon, docID, title string, body []string) pool.PendingDocument {
	rec := forwardindex.BuildFromTokenLists(lex, []string{title}, body)
	return pool.PendingDocument{DocID: docID, Title: title, BodyTokens: body, Record: rec}
}

func TestFlushNowUpdatesAllIndices(t *testing.T) {
	w, _ := newTestWriter(t)
	doc := pendingDoc(w.deps.Lexicon, "1", "alpha", []string{"beta", "gamma"})
	w.Enqueue(doc)

	if err := w.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}

	if _, ok, _ := w.deps.Forward.ReadLine("1"); !ok {
		t.Errorf("expected doc 1 to be present in forward index after flush")
	}
	if got := w.deps.URLs.Get("1"); got != "/download/1" {
		t.Errorf("url map = %q, want /download/1", got)
	}
	entry, ok := w.deps.Metadata.Get("1")
	if !ok || entry.Title != "alpha" {
		t.Errorf("metadata = %+v, ok=%v", entry, ok)
	}

	stats := w.Stats()
	if stats.Indexed != 1 || stats.Batches != 1 {
		t.Errorf("stats = %+v, want indexed=1 batches=1", stats)
	}
}

func TestBackgroundLoopFlushesOnBatchSize(t *testing.T) {
	dir := t.TempDir()
	lex := lexicon.New()
	fwd := forwardindex.New(filepath.Join(dir, "forward_index.jsonl"))
	delta := invertedindex.NewDelta(filepath.Join(dir, "inverted_delta.json"))
	meta := metadata.New(filepath.Join(dir, "document_metadata.json"))
	urls := urlmap.New(filepath.Join(dir, "docid_to_url.json"))

	w := New(Config{
		BatchSize:     2,
		FlushInterval: time.Hour,
		LexiconPath:   filepath.Join(dir, "lexicon.json"),
	}, Deps{Lexicon: lex, Forward: fwd, Delta: delta, Metadata: meta, URLs: urls})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Enqueue(pendingDoc(lex, "1", "alpha", nil))
	w.Enqueue(pendingDoc(lex, "2", "beta", nil))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if w.Stats().Indexed == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	w.Stop()

	if w.Stats().Indexed != 2 {
		t.Fatalf("Stats().Indexed = %d, want 2", w.Stats().Indexed)
	}
}
