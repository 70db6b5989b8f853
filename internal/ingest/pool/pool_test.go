package pool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paperindex/docsearch/internal/lexicon"
)

type fakeSink struct {
	mu   sync.Mutex
	docs []PendingDocument
}

func (s *fakeSink) Enqueue(doc PendingDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// writeFakeTokenizer writes a shell script that ignores its pdf-path input
// and writes a fixed tokenizer JSON payload to its third argument.
func writeFakeTokenizer(t *testing.T, dir string, succeed bool) string {
	t.Helper()
	path := filepath.Join(dir, "fake_tokenizer.sh")
	var script string
	if succeed {
		script = `#!/bin/sh
echo '{"title":"alpha paper","body_tokens":["alpha","beta","alpha"]}' > "$3"
exit 0
`
	} else {
		script = `#!/bin/sh
exit 1
`
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tokenizer: %v", err)
	}
	return path
}

func TestSuccessfulTaskEnqueuesPendingDocument(t *testing.T) {
	dir := t.TempDir()
	lex := lexicon.New()
	lex.BuildFromCorpus([][]string{{"alpha", "beta"}})
	sink := &fakeSink{}

	p := New(Config{
		Workers:      4,
		TaskTimeout:  5 * time.Second,
		TokenizerBin: writeFakeTokenizer(t, dir, true),
		TempJSONDir:  filepath.Join(dir, "temp_json"),
	}, lex, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	resultC := p.Submit(filepath.Join(dir, "doc.pdf"), "1")
	select {
	case res := <-resultC:
		if res.Err != nil {
			t.Fatalf("unexpected task error: %v", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
	}
	p.Stop()

	if sink.count() != 1 {
		t.Fatalf("sink got %d documents, want 1", sink.count())
	}
	if sink.docs[0].DocID != "1" {
		t.Errorf("pending doc id = %q, want 1", sink.docs[0].DocID)
	}
}

func TestFailedTokenizerReportsError(t *testing.T) {
	dir := t.TempDir()
	lex := lexicon.New()
	sink := &fakeSink{}

	p := New(Config{
		Workers:       4,
		TaskTimeout:   5 * time.Second,
		RetryAttempts: 1,
		TokenizerBin:  writeFakeTokenizer(t, dir, false),
		TempJSONDir:   filepath.Join(dir, "temp_json"),
	}, lex, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	resultC := p.Submit(filepath.Join(dir, "doc.pdf"), "1")
	select {
	case res := <-resultC:
		if res.Err == nil {
			t.Fatal("expected an error from failing tokenizer")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
	}
	p.Stop()

	if sink.count() != 0 {
		t.Errorf("sink got %d documents, want 0 on failure", sink.count())
	}
	stats := p.Stats()
	if stats.Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", stats.Failed)
	}
}
