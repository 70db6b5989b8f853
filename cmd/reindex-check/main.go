// Command reindex-check walks the forward index and reports any document
// missing a barrel/delta posting, a metadata entry, or a url mapping —
// consistency violations that should never occur if every write path ran to
// completion, but which a partial flush or a hand-edited data directory can
// produce.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/invertedindex"
	"github.com/paperindex/docsearch/internal/metadata"
	"github.com/paperindex/docsearch/internal/urlmap"
	"github.com/paperindex/docsearch/pkg/config"
)

type violation struct {
	docID  string
	reason string
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fwd := forwardindex.New(filepath.Join(cfg.Data.ProcessedDir, "forward_index.jsonl"))
	if err := fwd.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "loading forward index: %v\n", err)
		os.Exit(1)
	}

	barrels := invertedindex.NewBarrels(filepath.Join(cfg.Data.ProcessedDir, "barrels"), cfg.Data.BarrelCount)
	delta := invertedindex.NewDelta(filepath.Join(cfg.Data.ProcessedDir, "barrels", "inverted_delta.json"))
	if err := delta.Load(); err != nil {
		slog.Warn("delta index missing or unreadable, treating as empty", "error", err)
	}

	meta := metadata.New(filepath.Join(cfg.Data.ProcessedDir, "document_metadata.json"))
	if err := meta.Load(); err != nil {
		slog.Warn("metadata store missing or unreadable, treating as empty", "error", err)
	}

	urls := urlmap.New(filepath.Join(cfg.Data.ProcessedDir, "docid_to_url.json"))
	if err := urls.Load(); err != nil {
		slog.Warn("url map missing or unreadable, treating as empty", "error", err)
	}

	barrelCache := map[int]invertedindex.PostingsMap{}
	loadBarrel := func(k int) invertedindex.PostingsMap {
		if pm, ok := barrelCache[k]; ok {
			return pm
		}
		pm, err := barrels.LoadBarrel(k)
		if err != nil {
			pm = invertedindex.PostingsMap{}
		}
		barrelCache[k] = pm
		return pm
	}

	var violations []violation
	checked := 0
	err = fwd.ForEachRecord(func(docID string, rec forwardindex.Record) error {
		checked++

		if _, ok := meta.Get(docID); !ok {
			violations = append(violations, violation{docID, "missing metadata entry"})
		}
		if urls.Get(docID) == "" {
			violations = append(violations, violation{docID, "missing url mapping"})
		}
		if !hasAnyPosting(docID, rec, barrels, delta, loadBarrel) {
			violations = append(violations, violation{docID, "no barrel or delta posting for any indexed word"})
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "walking forward index: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("checked %d documents\n", checked)
	if len(violations) == 0 {
		fmt.Println("no consistency violations found")
		return
	}
	fmt.Printf("%d consistency violations found:\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  doc_id=%s: %s\n", v.docID, v.reason)
	}
	os.Exit(1)
}

// hasAnyPosting reports whether at least one of rec's words carries a
// posting for docID in either its owning barrel or the delta overlay. A
// freshly flushed document is expected to live in the delta until the next
// merge; a merged document is expected to live in its barrel.
func hasAnyPosting(docID string, rec forwardindex.Record, barrels *invertedindex.Barrels, delta *invertedindex.Delta, loadBarrel func(int) invertedindex.PostingsMap) bool {
	for wordIDStr := range rec.Words {
		wordID, err := strconv.Atoi(wordIDStr)
		if err != nil {
			continue
		}
		for _, p := range delta.Get(wordID) {
			if p.DocID == docID {
				return true
			}
		}
		pm := loadBarrel(barrels.BarrelID(wordID))
		for _, p := range pm[wordIDStr] {
			if p.DocID == docID {
				return true
			}
		}
	}
	return false
}
