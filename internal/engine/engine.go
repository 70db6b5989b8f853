// Package engine wires every index component into a single struct
// constructed once at startup and threaded explicitly into the HTTP layer
// and the ingestion pipeline, rather than resolved through package-level
// singletons.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paperindex/docsearch/internal/barrelcache"
	"github.com/paperindex/docsearch/internal/docstats"
	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/ingest/pool"
	"github.com/paperindex/docsearch/internal/ingest/writer"
	"github.com/paperindex/docsearch/internal/invertedindex"
	"github.com/paperindex/docsearch/internal/lexicon"
	"github.com/paperindex/docsearch/internal/metadata"
	"github.com/paperindex/docsearch/internal/query"
	"github.com/paperindex/docsearch/internal/ranking"
	"github.com/paperindex/docsearch/internal/semantic"
	"github.com/paperindex/docsearch/internal/trie"
	"github.com/paperindex/docsearch/internal/urlmap"
	"github.com/paperindex/docsearch/pkg/config"
	"github.com/paperindex/docsearch/pkg/eventbus"
	"github.com/paperindex/docsearch/pkg/metrics"
	"github.com/paperindex/docsearch/pkg/rediscache"
)

// paths bundles the on-disk locations derived from config.DataConfig.
type paths struct {
	lexicon      string
	forwardIndex string
	barrelsDir   string
	delta        string
	docStats     string
	metadata     string
	urlMap       string
}

func derivePaths(data config.DataConfig) paths {
	return paths{
		lexicon:      filepath.Join(data.ProcessedDir, "lexicon.json"),
		forwardIndex: filepath.Join(data.ProcessedDir, "forward_index.jsonl"),
		barrelsDir:   filepath.Join(data.ProcessedDir, "barrels"),
		delta:        filepath.Join(data.ProcessedDir, "barrels", "inverted_delta.json"),
		docStats:     filepath.Join(data.ProcessedDir, "doc_stats.bin"),
		metadata:     filepath.Join(data.ProcessedDir, "document_metadata.json"),
		urlMap:       filepath.Join(data.ProcessedDir, "docid_to_url.json"),
	}
}

// Engine owns every index component plus the ingestion pipeline. It mints
// doc_ids, exposes the query engine, and coordinates delta-to-barrel merges.
type Engine struct {
	cfg   *config.Config
	paths paths

	Lexicon  *lexicon.Lexicon
	Trie     *trie.Trie
	Forward  *forwardindex.ForwardIndex
	Barrels  *invertedindex.Barrels
	Delta    *invertedindex.Delta
	DocStats *docstats.Cache
	Metadata *metadata.Store
	URLs     *urlmap.Mapper
	Semantic *semantic.Scorer
	Cache    *barrelcache.Cache

	Query  *query.Engine
	Pool   *pool.Pool
	Writer *writer.Writer

	Metrics *metrics.Metrics
	Redis   *rediscache.Client
	Bus     *eventbus.Bus

	nextDocID int64

	mu     sync.Mutex
	logger *slog.Logger
}

// New constructs an Engine from cfg, loading every persisted index file. It
// never fails on a missing optional file; it logs and continues with
// reduced functionality per the on-disk error handling policy.
func New(cfg *config.Config) (*Engine, error) {
	p := derivePaths(cfg.Data)
	logger := slog.Default().With("component", "engine")

	lex := lexicon.New()
	if err := lex.Load(p.lexicon); err != nil {
		logger.Warn("lexicon missing or unreadable, starting empty", "path", p.lexicon, "error", err)
	}

	tr := trie.New()
	tr.LoadFromWords(lex.Words())

	fwd := forwardindex.New(p.forwardIndex)
	if err := fwd.Load(); err != nil {
		return nil, fmt.Errorf("loading forward index: %w", err)
	}

	barrels := invertedindex.NewBarrels(p.barrelsDir, cfg.Data.BarrelCount)
	delta := invertedindex.NewDelta(p.delta)
	if err := delta.Load(); err != nil {
		logger.Warn("delta index missing or unreadable, starting empty", "path", p.delta, "error", err)
	}

	stats := docstats.New(p.docStats)
	if err := stats.Load(); err != nil {
		logger.Warn("doc-stats cache missing or unreadable, will rebuild lazily", "path", p.docStats, "error", err)
	}
	if !stats.Valid(fwd) {
		logger.Info("doc-stats cache stale, rebuilding from forward index")
		if err := stats.RebuildFromForwardIndex(fwd); err != nil {
			logger.Warn("doc-stats rebuild failed", "error", err)
		}
	}

	meta := metadata.New(p.metadata)
	if err := meta.Load(); err != nil {
		logger.Warn("metadata store missing or unreadable, starting empty", "path", p.metadata, "error", err)
	}

	urls := urlmap.New(p.urlMap)
	if err := urls.Load(); err != nil {
		logger.Warn("url map missing or unreadable, starting empty", "path", p.urlMap, "error", err)
	}

	sem := semantic.New()
	if cfg.Semantic.DocVectorsPath != "" {
		if err := sem.LoadDocumentVectors(cfg.Semantic.DocVectorsPath); err != nil {
			logger.Warn("document vectors not loaded, semantic re-rank disabled", "path", cfg.Semantic.DocVectorsPath, "error", err)
		}
	}
	if cfg.Semantic.WordEmbeddingPath != "" {
		if err := sem.LoadWordEmbeddings(cfg.Semantic.WordEmbeddingPath); err != nil {
			logger.Warn("word embeddings not loaded, semantic re-rank disabled", "path", cfg.Semantic.WordEmbeddingPath, "error", err)
		}
	}

	m := metrics.New()

	cache := barrelcache.New(barrels, m)
	ranker := ranking.New(cfg.Ranking)

	q := &query.Engine{
		Lexicon:        lex,
		Trie:           tr,
		Barrels:        barrels,
		Cache:          cache,
		Delta:          delta,
		DocStats:       stats,
		Forward:        fwd,
		Metadata:       meta,
		URLs:           urls,
		Semantic:       sem,
		Ranker:         ranker,
		SemanticWeight: cfg.Ranking.SemanticWeight,
	}

	e := &Engine{
		cfg:      cfg,
		paths:    p,
		Lexicon:  lex,
		Trie:     tr,
		Forward:  fwd,
		Barrels:  barrels,
		Delta:    delta,
		DocStats: stats,
		Metadata: meta,
		URLs:     urls,
		Semantic: sem,
		Cache:    cache,
		Query:    q,
		Metrics:  m,
		logger:   logger,
	}
	e.nextDocID = e.computeNextDocID()

	if cfg.Redis.Enabled() {
		client, err := rediscache.New(cfg.Redis)
		if err != nil {
			logger.Warn("redis unreachable, secondary query cache disabled", "error", err)
		} else {
			e.Redis = client
		}
	}
	if cfg.Kafka.Enabled() {
		e.Bus = eventbus.New(cfg.Kafka)
	}

	downloadFn := func(docID string) string {
		return "/download/" + docID
	}

	e.Writer = writer.New(writer.Config{
		BatchSize:     cfg.Writer.BatchSize,
		FlushInterval: cfg.Writer.FlushInterval,
		LexiconPath:   p.lexicon,
	}, writer.Deps{
		Lexicon:    lex,
		Forward:    fwd,
		Delta:      delta,
		Metadata:   meta,
		URLs:       urls,
		Cache:      e.Redis,
		Bus:        e.Bus,
		Metrics:    m,
		DownloadFn: downloadFn,
		OnFlush:    e.AfterFlush,
	})

	e.Pool = pool.New(pool.Config{
		Workers:       cfg.Pool.Workers,
		TaskTimeout:   cfg.Pool.TaskTimeout,
		RetryAttempts: cfg.Pool.RetryAttempts,
		TokenizerBin:  cfg.Data.TokenizerBin,
		TempJSONDir:   cfg.Data.TempJSONDir,
	}, lex, e.Writer, m)

	return e, nil
}

// NextDocID mints the next doc_id as max(existing_ids)+1. Ids are never
// reused, even across restarts, since the counter is seeded from the
// highest id present in the forward index at startup.
func (e *Engine) NextDocID() string {
	id := atomic.AddInt64(&e.nextDocID, 1)
	return strconv.FormatInt(id, 10)
}

// computeNextDocID scans the forward index's doc_ids once at startup.
func (e *Engine) computeNextDocID() int64 {
	var max int64
	for _, id := range e.Forward.DocIDs() {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return max
}

// MergeDelta merges the delta index into its owning barrels and invalidates
// the barrel cache so subsequent reads observe the merged state. Intended
// to run periodically, decoupled from the per-batch flush.
func (e *Engine) MergeDelta() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.Delta.MergeInto(e.Barrels); err != nil {
		return fmt.Errorf("merging delta into barrels: %w", err)
	}
	e.Cache.Invalidate()
	return nil
}

// AfterFlush reloads the query engine's in-RAM view of the delta and
// metadata files, and refreshes the trie, so newly flushed documents become
// searchable and autocompletable without a restart.
func (e *Engine) AfterFlush() {
	if err := e.Query.ReloadDeltaIndex(); err != nil {
		e.logger.Warn("reloading delta index failed", "error", err)
	}
	if err := e.Query.ReloadMetadata(); err != nil {
		e.logger.Warn("reloading metadata failed", "error", err)
	}
	e.Trie.LoadFromWords(e.Lexicon.Words())
}

// tempFileMaxAge bounds how long a staged temp PDF or tokenizer handshake
// file survives an interrupted run. Kept short of the point where it would
// erase a crash's forensic evidence, per the on-disk error handling policy.
const tempFileMaxAge = time.Hour

// CleanTempDirs removes temp-PDF and temp-JSON files older than
// tempFileMaxAge, run once at startup. Recent files are left in place so a
// crash moments before restart still leaves its staged PDF available for
// inspection.
func (e *Engine) CleanTempDirs() {
	cutoff := time.Now().Add(-tempFileMaxAge)
	for _, dir := range []string{e.cfg.Data.TempPDFDir, e.cfg.Data.TempJSONDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

// DownloadsDir returns the directory served by GET /download/<doc_id>.
func (e *Engine) DownloadsDir() string {
	return e.cfg.Data.DownloadsDir
}

// TempPDFDir returns the directory uploaded PDFs are staged into before
// tokenization.
func (e *Engine) TempPDFDir() string {
	return e.cfg.Data.TempPDFDir
}
