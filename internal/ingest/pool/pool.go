// Package pool implements the fixed-size PDF processing worker pool: each
// worker invokes an external tokenizer subprocess on a submitted PDF and
// hands the result to the batch writer.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/internal/lexicon"
	"github.com/paperindex/docsearch/internal/tokenizer"
	"github.com/paperindex/docsearch/pkg/apperr"
	"github.com/paperindex/docsearch/pkg/metrics"
	"github.com/paperindex/docsearch/pkg/resilience"
)

// tokenizerOutput is the JSON shape produced by the external tokenizer
// subprocess.
type tokenizerOutput struct {
	Title      string   `json:"title"`
	BodyTokens []string `json:"body_tokens"`
}

// PendingDocument is what a worker hands to the batch writer once a PDF has
// been tokenized successfully.
type PendingDocument struct {
	DocID      string
	Title      string
	BodyTokens []string
	Record     forwardindex.Record
	EnqueueAt  time.Time
}

// Result is the fulfillment value of a submitted task.
type Result struct {
	DocID string
	Err   error
}

// Task describes one PDF awaiting tokenization.
type Task struct {
	PDFPath string
	DocID   string
	resultC chan Result
}

// Sink receives pending documents once a task succeeds.
type Sink interface {
	Enqueue(doc PendingDocument)
}

// Stats holds atomically updated pool counters.
type Stats struct {
	ActiveWorkers int64
	QueueSize     int64
	Completed     int64
	Failed        int64
}

// Config controls pool sizing and per-task behavior.
type Config struct {
	Workers       int
	TaskTimeout   time.Duration
	RetryAttempts int
	TokenizerBin  string
	TempJSONDir   string
}

// Pool is a fixed-size worker pool for PDF tokenization.
type Pool struct {
	cfg     Config
	lex     *lexicon.Lexicon
	sink    Sink
	tasks   chan Task
	logger  *slog.Logger
	metrics *metrics.Metrics

	activeWorkers int64
	queueSize     int64
	completed     int64
	failed        int64

	eg      *errgroup.Group
	breaker *resilience.CircuitBreaker
}

// New returns a Pool with at least 4 workers (hardware-concurrency default
// is the caller's responsibility via cfg.Workers). m may be nil to disable
// instrumentation. A tripped circuit breaker guards the tokenizer subprocess
// so a broken or missing binary fails every queued task immediately instead
// of exhausting each one's retry budget in sequence.
func New(cfg Config, lex *lexicon.Lexicon, sink Sink, m *metrics.Metrics) *Pool {
	if cfg.Workers < 4 {
		cfg.Workers = 4
	}
	return &Pool{
		cfg:     cfg,
		lex:     lex,
		sink:    sink,
		tasks:   make(chan Task, cfg.Workers*4),
		logger:  slog.Default().With("component", "pdf-pool"),
		metrics: m,
		breaker: resilience.NewCircuitBreaker("pdf-tokenizer", resilience.CircuitBreakerConfig{}),
	}
}

// Start launches the worker goroutines under an errgroup sharing a context
// derived from ctx. Workers always return nil, so one worker never cancels
// its siblings. Call Stop to close the task channel, drain and shut down.
func (p *Pool) Start(ctx context.Context) {
	eg, egCtx := errgroup.WithContext(ctx)
	p.eg = eg
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		eg.Go(func() error {
			p.worker(egCtx, id)
			return nil
		})
	}
}

// Stop closes the task channel and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	close(p.tasks)
	if p.eg != nil {
		p.eg.Wait()
	}
}

// Submit enqueues a task and returns a channel that receives its Result
// exactly once.
func (p *Pool) Submit(pdfPath, docID string) <-chan Result {
	resultC := make(chan Result, 1)
	atomic.AddInt64(&p.queueSize, 1)
	p.tasks <- Task{PDFPath: pdfPath, DocID: docID, resultC: resultC}
	return resultC
}

// Stats returns a snapshot of the pool's atomic counters.
func (p *Pool) Stats() Stats {
	return Stats{
		ActiveWorkers: atomic.LoadInt64(&p.activeWorkers),
		QueueSize:     atomic.LoadInt64(&p.queueSize),
		Completed:     atomic.LoadInt64(&p.completed),
		Failed:        atomic.LoadInt64(&p.failed),
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	log := p.logger.With("worker", id)
	for task := range p.tasks {
		atomic.AddInt64(&p.queueSize, -1)
		atomic.AddInt64(&p.activeWorkers, 1)
		if p.metrics != nil {
			p.metrics.PoolActiveWorkers.Set(float64(atomic.LoadInt64(&p.activeWorkers)))
		}
		err := p.process(ctx, task)
		atomic.AddInt64(&p.activeWorkers, -1)
		if p.metrics != nil {
			p.metrics.PoolActiveWorkers.Set(float64(atomic.LoadInt64(&p.activeWorkers)))
		}
		if err != nil {
			atomic.AddInt64(&p.failed, 1)
			log.Error("pdf processing failed", "doc_id", task.DocID, "pdf_path", task.PDFPath, "error", err)
			if p.metrics != nil {
				p.metrics.PoolTasksTotal.WithLabelValues("failed").Inc()
			}
		} else {
			atomic.AddInt64(&p.completed, 1)
			if p.metrics != nil {
				p.metrics.PoolTasksTotal.WithLabelValues("completed").Inc()
			}
		}
		task.resultC <- Result{DocID: task.DocID, Err: err}
		close(task.resultC)
	}
}

func (p *Pool) process(ctx context.Context, task Task) error {
	taskCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	tempJSONPath := filepath.Join(p.cfg.TempJSONDir, fmt.Sprintf("%s.json", uuid.NewString()))
	if err := os.MkdirAll(p.cfg.TempJSONDir, 0o755); err != nil {
		return fmt.Errorf("creating temp json dir: %w", err)
	}
	defer os.Remove(tempJSONPath)

	retryCfg := resilience.RetryConfig{MaxAttempts: p.cfg.RetryAttempts}
	err := p.breaker.Execute(func() error {
		return resilience.Retry(taskCtx, "pdf-tokenize", retryCfg, func() error {
			return p.runTokenizer(taskCtx, task.PDFPath, task.DocID, tempJSONPath)
		})
	})
	if err != nil {
		return apperr.Newf(apperr.ErrTokenizerFailed, http.StatusInternalServerError, "tokenizing %s: %v", task.PDFPath, err)
	}

	out, err := p.readTokenizerOutput(tempJSONPath)
	if err != nil {
		return err
	}

	titleTerms := tokenizer.Terms(out.Title)
	rec := forwardindex.BuildFromTokenLists(p.lex, titleTerms, out.BodyTokens)
	allTerms := append(append([]string{}, titleTerms...), out.BodyTokens...)
	if err := p.lex.UpdateFromTokens(allTerms, ""); err != nil {
		p.logger.Warn("lexicon update from new tokens failed", "doc_id", task.DocID, "error", err)
	}

	p.sink.Enqueue(PendingDocument{
		DocID:      task.DocID,
		Title:      out.Title,
		BodyTokens: out.BodyTokens,
		Record:     rec,
		EnqueueAt:  time.Now(),
	})
	return nil
}

func (p *Pool) runTokenizer(ctx context.Context, pdfPath, docID, tempJSONPath string) error {
	cmd := exec.CommandContext(ctx, p.cfg.TokenizerBin, pdfPath, docID, tempJSONPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tokenizer subprocess exited with error: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (p *Pool) readTokenizerOutput(path string) (tokenizerOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tokenizerOutput{}, apperr.Newf(apperr.ErrTokenizerFailed, http.StatusInternalServerError, "reading tokenizer output: %v", err)
	}
	if len(data) == 0 {
		return tokenizerOutput{}, apperr.New(apperr.ErrTokenizerFailed, http.StatusInternalServerError, "tokenizer produced empty output")
	}
	var out tokenizerOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return tokenizerOutput{}, apperr.Newf(apperr.ErrTokenizerFailed, http.StatusInternalServerError, "parsing tokenizer output: %v", err)
	}
	return out, nil
}
