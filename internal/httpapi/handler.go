// Package httpapi exposes the engine over HTTP: search, autocomplete,
// upload, download, and operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/paperindex/docsearch/internal/engine"
	"github.com/paperindex/docsearch/pkg/logger"
	"github.com/paperindex/docsearch/pkg/rediscache"
)

// maxUploadMemory bounds the in-memory portion of a parsed multipart form;
// files larger than this spill to temp files on disk, handled by net/http.
const maxUploadMemory = 32 << 20

// Handler holds the engine and answers every route in the HTTP surface.
type Handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// New returns a Handler backed by e.
func New(e *engine.Engine) *Handler {
	return &Handler{
		engine: e,
		logger: slog.Default().With("component", "http-handler"),
	}
}

// UploadProgress is the /upload-progress response body.
type UploadProgress struct {
	ActiveWorkers int64 `json:"activeWorkers"`
	QueueSize     int64 `json:"queueSize"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	WriterQueued  int64 `json:"writerQueued"`
	WriterIndexed int64 `json:"writerIndexed"`
}

// UploadResponse is the /upload response body.
type UploadResponse struct {
	Success           bool     `json:"success"`
	UploadedCount     int      `json:"uploadedCount"`
	FailedCount       int      `json:"failedCount"`
	NewDocIDs         []string `json:"newDocIds"`
	ProcessingTimeMs  int64    `json:"processingTimeMs"`
	Message           string   `json:"message"`
	Status            string   `json:"status"`
}

// StatsResponse is the /stats response body.
type StatsResponse struct {
	LexiconSize    int    `json:"lexiconSize"`
	DocumentCount  int    `json:"documentCount"`
	DeltaSize      int    `json:"deltaSize"`
	MetadataCount  int    `json:"metadataCount"`
	PoolActive     int64  `json:"poolActiveWorkers"`
	PoolCompleted  int64  `json:"poolCompleted"`
	PoolFailed     int64  `json:"poolFailed"`
	WriterQueued   int64  `json:"writerQueued"`
	WriterIndexed  int64  `json:"writerIndexed"`
	WriterBatches  int64  `json:"writerBatches"`
	BarrelCacheSize int `json:"barrelCacheSize"`
	SemanticLoaded bool `json:"semanticLoaded"`
}

// Search handles GET /search?q=. Results are served out of the secondary
// Redis cache when one is configured, falling back to the query engine on a
// miss or when Redis is disabled.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "missing required query parameter q")
		return
	}

	cacheKey := "search:" + strings.ToLower(q)
	if h.engine.Redis != nil {
		if cached, err := h.engine.Redis.Get(r.Context(), cacheKey); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, cached)
			return
		} else if !rediscache.IsMiss(err) {
			h.logger.Warn("redis cache lookup failed", "error", err)
		}
	}

	resp := h.engine.Query.Search(q)

	if h.engine.Redis != nil {
		if body, err := json.Marshal(resp); err != nil {
			h.logger.Error("failed to marshal search response for caching", "error", err)
		} else if err := h.engine.Redis.Set(r.Context(), cacheKey, string(body)); err != nil {
			h.logger.Warn("redis cache store failed", "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Autocomplete handles GET /autocomplete?q=&limit=.
func (h *Handler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("q"))
	if prefix == "" {
		h.writeError(w, http.StatusBadRequest, "missing required query parameter q")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	resp := h.engine.Query.Autocomplete(prefix, limit)
	h.writeJSON(w, http.StatusOK, resp)
}

// Upload handles POST /upload: a multipart form with one or more files
// under the "files" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	start := time.Now()

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		h.writeError(w, http.StatusBadRequest, "no files provided under field \"files\"")
		return
	}

	var (
		newDocIDs []string
		failed    int
	)
	for _, fh := range files {
		docID, err := h.ingestOne(ctx, fh)
		if err != nil {
			failed++
			log.Warn("upload failed for file", "filename", fh.Filename, "error", err)
			continue
		}
		newDocIDs = append(newDocIDs, docID)
	}

	resp := UploadResponse{
		Success:          failed == 0,
		UploadedCount:    len(newDocIDs),
		FailedCount:      failed,
		NewDocIDs:        newDocIDs,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Status:           "indexed",
	}
	if failed > 0 && len(newDocIDs) == 0 {
		resp.Message = "all uploads failed"
	} else if failed > 0 {
		resp.Message = fmt.Sprintf("%d of %d uploads failed", failed, len(files))
	} else {
		resp.Message = "upload processed"
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ingestOne stages one uploaded file, validates it is a readable PDF,
// submits it to the tokenization pool, and blocks until that document has
// been tokenized and handed to the batch writer. On success the PDF is
// moved into the downloads directory under its doc_id; on failure the
// staged temp file is removed.
func (h *Handler) ingestOne(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		return "", fmt.Errorf("%s is not a .pdf file", fh.Filename)
	}

	docID := h.engine.NextDocID()
	tempPath := filepath.Join(h.engine.TempPDFDir(), docID+".pdf")
	if err := os.MkdirAll(h.engine.TempPDFDir(), 0o755); err != nil {
		return "", fmt.Errorf("creating temp pdf dir: %w", err)
	}

	if err := stageUpload(fh, tempPath); err != nil {
		return "", fmt.Errorf("staging upload: %w", err)
	}

	if err := validatePDF(tempPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("invalid pdf: %w", err)
	}

	resultC := h.engine.Pool.Submit(tempPath, docID)
	select {
	case result := <-resultC:
		if result.Err != nil {
			os.Remove(tempPath)
			return "", result.Err
		}
	case <-ctx.Done():
		os.Remove(tempPath)
		return "", ctx.Err()
	}

	if err := os.MkdirAll(h.engine.DownloadsDir(), 0o755); err != nil {
		return "", fmt.Errorf("creating downloads dir: %w", err)
	}
	finalPath := filepath.Join(h.engine.DownloadsDir(), docID+".pdf")
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("moving pdf to downloads: %w", err)
	}
	return docID, nil
}

func stageUpload(fh *multipart.FileHeader, destPath string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("opening uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying uploaded bytes: %w", err)
	}
	return nil
}

// validatePDF confirms the staged file opens as a PDF with at least one
// page before it is handed to the tokenizer subprocess.
func validatePDF(path string) error {
	f, r, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()
	if r.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}

// UploadProgressHandler handles GET /upload-progress.
func (h *Handler) UploadProgressHandler(w http.ResponseWriter, r *http.Request) {
	poolStats := h.engine.Pool.Stats()
	writerStats := h.engine.Writer.Stats()
	h.writeJSON(w, http.StatusOK, UploadProgress{
		ActiveWorkers: poolStats.ActiveWorkers,
		QueueSize:     poolStats.QueueSize,
		Completed:     poolStats.Completed,
		Failed:        poolStats.Failed,
		WriterQueued:  writerStats.Queued,
		WriterIndexed: writerStats.Indexed,
	})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	poolStats := h.engine.Pool.Stats()
	writerStats := h.engine.Writer.Stats()
	h.writeJSON(w, http.StatusOK, StatsResponse{
		LexiconSize:    h.engine.Lexicon.Size(),
		DocumentCount:  h.engine.Forward.LineCount(),
		DeltaSize:      h.engine.Delta.Size(),
		MetadataCount:  h.engine.Metadata.Count(),
		PoolActive:     poolStats.ActiveWorkers,
		PoolCompleted:  poolStats.Completed,
		PoolFailed:     poolStats.Failed,
		WriterQueued:   writerStats.Queued,
		WriterIndexed:  writerStats.Indexed,
		WriterBatches:  writerStats.Batches,
		BarrelCacheSize: h.engine.Cache.Size(),
		SemanticLoaded: h.engine.Semantic.Loaded(),
	})
}

// Download handles GET /download/<doc_id>.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, "/download/")
	docID = strings.Trim(docID, "/")
	if docID == "" {
		h.writeError(w, http.StatusBadRequest, "missing doc_id in path")
		return
	}
	path := filepath.Join(h.engine.DownloadsDir(), docID+".pdf")
	if _, err := os.Stat(path); err != nil {
		h.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
