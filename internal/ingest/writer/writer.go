// Package writer implements the batch index writer: a single background
// thread that dequeues pending documents produced by the PDF pool, coalesces
// them into batches, and atomically updates every persistent index.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/ingest/pool"
	"github.com/paperindex/docsearch/internal/invertedindex"
	"github.com/paperindex/docsearch/internal/lexicon"
	"github.com/paperindex/docsearch/internal/metadata"
	"github.com/paperindex/docsearch/internal/tokenizer"
	"github.com/paperindex/docsearch/internal/urlmap"
	"github.com/paperindex/docsearch/pkg/eventbus"
	"github.com/paperindex/docsearch/pkg/metrics"
	"github.com/paperindex/docsearch/pkg/rediscache"
)

// Stats mirrors get_stats(): queued/indexed/batches/avg-latency/queue-size.
type Stats struct {
	Queued       int64
	Indexed      int64
	Batches      int64
	AvgLatencyMs float64
	QueueSize    int
}

// Config controls flush thresholds.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	LexiconPath   string
}

// Deps bundles every persistent index the writer mutates during a flush.
type Deps struct {
	Lexicon    *lexicon.Lexicon
	Forward    *forwardindex.ForwardIndex
	Delta      *invertedindex.Delta
	Metadata   *metadata.Store
	URLs       *urlmap.Mapper
	Cache      *rediscache.Client // optional, nil disables invalidation
	Bus        *eventbus.Bus      // optional, nil disables event publishing
	Metrics    *metrics.Metrics   // optional, nil disables instrumentation
	DownloadFn func(docID string) string
	// OnFlush, if set, runs after a batch is durably flushed so the read
	// path can reload its in-RAM view of the delta and metadata files.
	OnFlush func()
}

// Writer is a single-writer-thread batch flusher with a producer-facing
// queue guarded by a mutex and condition variable, and a dedicated flush
// mutex so flush_now and the background loop never overlap.
type Writer struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []pool.PendingDocument
	shutdown bool

	flushMu sync.Mutex

	statsMu      sync.Mutex
	stats        Stats
	totalLatency time.Duration

	doneC  chan struct{}
	logger *slog.Logger
}

// New returns a Writer. Start must be called to launch the background loop.
func New(cfg Config, deps Deps) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	w := &Writer{
		cfg:    cfg,
		deps:   deps,
		doneC:  make(chan struct{}),
		logger: slog.Default().With("component", "batch-writer"),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Enqueue implements pool.Sink: stamps the enqueue time and wakes the
// background loop.
func (w *Writer) Enqueue(doc pool.PendingDocument) {
	if doc.EnqueueAt.IsZero() {
		doc.EnqueueAt = time.Now()
	}
	w.mu.Lock()
	w.queue = append(w.queue, doc)
	w.mu.Unlock()

	w.statsMu.Lock()
	w.stats.Queued++
	w.statsMu.Unlock()

	w.cond.Broadcast()
}

// Start launches the background flush loop and a periodic ticker goroutine
// that wakes it once per flush interval even with an empty queue delta.
func (w *Writer) Start(ctx context.Context) {
	go w.tick(ctx)
	go w.loop()
}

func (w *Writer) tick(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cond.Broadcast()
		}
	}
}

// loop is the single background writer thread: wait until shutdown, or the
// queue reaches batch_size, or a flush interval has elapsed with items
// pending; then extract up to batch_size items and flush them.
func (w *Writer) loop() {
	lastFlush := time.Now()
	for {
		w.mu.Lock()
		for !w.shutdown && len(w.queue) < w.cfg.BatchSize && time.Since(lastFlush) < w.cfg.FlushInterval {
			w.cond.Wait()
		}
		if w.shutdown && len(w.queue) == 0 {
			w.mu.Unlock()
			close(w.doneC)
			return
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			lastFlush = time.Now()
			continue
		}
		batch := w.extractBatch()
		w.mu.Unlock()

		w.flushMu.Lock()
		if err := w.flushBatch(batch); err != nil {
			w.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		}
		w.flushMu.Unlock()
		lastFlush = time.Now()
	}
}

// extractBatch must be called with w.mu held; it removes up to BatchSize
// items from the front of the queue.
func (w *Writer) extractBatch() []pool.PendingDocument {
	n := len(w.queue)
	if n > w.cfg.BatchSize {
		n = w.cfg.BatchSize
	}
	batch := make([]pool.PendingDocument, n)
	copy(batch, w.queue[:n])
	w.queue = w.queue[n:]
	return batch
}

// FlushNow synchronously flushes the entire current queue, serialized
// against the background loop via the flush mutex.
func (w *Writer) FlushNow() error {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return w.flushBatch(batch)
}

// Stop signals shutdown, waits for the background loop to drain the
// remaining queue through flushBatch, then returns.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.shutdown = true
	w.mu.Unlock()
	w.cond.Broadcast()
	<-w.doneC
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	stats := w.stats
	if stats.Batches > 0 {
		stats.AvgLatencyMs = float64(w.totalLatency.Milliseconds()) / float64(stats.Batches)
	}
	w.mu.Lock()
	stats.QueueSize = len(w.queue)
	w.mu.Unlock()
	return stats
}

// flushBatch performs the six-step flush sequence: lexicon update, forward
// index append, delta patch, metadata update, url-mapper update, bookkeeping.
func (w *Writer) flushBatch(batch []pool.PendingDocument) error {
	start := time.Now()

	unionTokens := make([]string, 0, len(batch)*32)
	records := make(map[string]forwardindex.Record, len(batch))
	for _, doc := range batch {
		unionTokens = append(unionTokens, tokenizer.Terms(doc.Title)...)
		unionTokens = append(unionTokens, doc.BodyTokens...)
		records[doc.DocID] = doc.Record
	}

	if err := w.deps.Lexicon.UpdateFromTokens(unionTokens, w.cfg.LexiconPath); err != nil {
		return fmt.Errorf("flush: lexicon update: %w", err)
	}

	for _, doc := range batch {
		if err := w.deps.Forward.AppendDocument(doc.DocID, doc.Record); err != nil {
			return fmt.Errorf("flush: appending forward index for %s: %w", doc.DocID, err)
		}
	}

	if err := w.deps.Delta.UpdateBatch(records); err != nil {
		return fmt.Errorf("flush: delta update: %w", err)
	}

	for _, doc := range batch {
		url := ""
		if w.deps.DownloadFn != nil {
			url = w.deps.DownloadFn(doc.DocID)
		}
		w.deps.Metadata.Put(doc.DocID, metadata.Entry{Title: doc.Title, URL: url})
		w.deps.URLs.Put(doc.DocID, url)
	}
	if err := w.deps.Metadata.Save(); err != nil {
		return fmt.Errorf("flush: saving metadata: %w", err)
	}
	if err := w.deps.URLs.Save(); err != nil {
		return fmt.Errorf("flush: saving url map: %w", err)
	}

	elapsed := time.Since(start)
	w.statsMu.Lock()
	w.stats.Indexed += int64(len(batch))
	w.stats.Batches++
	w.totalLatency += elapsed
	w.statsMu.Unlock()

	w.logger.Info("batch flushed", "documents", len(batch), "duration", elapsed)
	if w.deps.Metrics != nil {
		w.deps.Metrics.BatchFlushesTotal.WithLabelValues("success").Inc()
		w.deps.Metrics.BatchFlushDuration.Observe(elapsed.Seconds())
		w.deps.Metrics.DocsIndexedTotal.Add(float64(len(batch)))
	}
	if w.deps.Cache != nil {
		if err := w.deps.Cache.FlushAll(context.Background()); err != nil {
			w.logger.Warn("cache invalidation failed after flush", "error", err)
		}
	}
	if w.deps.Bus != nil {
		w.deps.Bus.PublishCacheInvalidate(context.Background(), eventbus.CacheInvalidate{DocCount: len(batch)})
		for _, doc := range batch {
			w.deps.Bus.PublishDocumentIndexed(context.Background(), eventbus.DocumentIndexed{DocID: doc.DocID, Title: doc.Title})
		}
	}
	if w.deps.OnFlush != nil {
		w.deps.OnFlush()
	}
	return nil
}
