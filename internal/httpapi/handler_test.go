package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/paperindex/docsearch/internal/engine"
	"github.com/paperindex/docsearch/internal/forwardindex"
	"github.com/paperindex/docsearch/pkg/config"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, _ := newTestHandlerWithEngine(t)
	return h
}

func newTestHandlerWithEngine(t *testing.T) (*Handler, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Data: config.DataConfig{
			ProcessedDir: filepath.Join(dir, "processed"),
			TempPDFDir:   filepath.Join(dir, "temp_pdfs"),
			TempJSONDir:  filepath.Join(dir, "temp_json"),
			DownloadsDir: filepath.Join(dir, "downloads"),
			BarrelCount:  4,
			TokenizerBin: "/bin/true",
		},
		Pool: config.PoolConfig{
			Workers:       2,
			TaskTimeout:   time.Second,
			RetryAttempts: 1,
		},
		Writer: config.WriterConfig{
			BatchSize:     20,
			FlushInterval: time.Hour,
		},
		Ranking: config.RankingConfig{
			FrequencyWeight: 0.4,
			PositionWeight:  0.2,
			TitleWeight:     0.3,
			MetadataWeight:  0.1,
			SemanticWeight:  0.4,
		},
	}
	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return New(e), e
}

func TestSearchMissingQueryReturns400(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()

	h.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSearchOnEmptyIndexReturnsEmptyResults(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/search?q=anything", nil)
	rec := httptest.NewRecorder()

	h.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp SearchResponseAlias
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("results = %v, want empty on an empty index", resp.Results)
	}
}

func TestSearchResponseBodyUsesLowercaseScoreKey(t *testing.T) {
	h, e := newTestHandlerWithEngine(t)
	e.Lexicon.BuildFromCorpus([][]string{{"alpha", "beta"}})
	alpha := e.Lexicon.GetWordIndex("alpha")
	rec := forwardindex.Record{DocLength: 1, Words: map[string]forwardindex.WordStats{
		strconv.Itoa(alpha): {WeightedFrequency: 1, BodyPositions: []int{0}},
	}}
	if err := e.Delta.Update("1", rec); err != nil {
		t.Fatalf("Update: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?q=alpha", nil)
	rec2 := httptest.NewRecorder()
	h.Search(rec2, req)

	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec2.Code, http.StatusOK)
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec2.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	results, ok := decoded["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v, want a single-element array", decoded["results"])
	}
	item, ok := results[0].(map[string]any)
	if !ok {
		t.Fatalf("result item = %v, want an object", results[0])
	}
	if _, ok := item["score"]; !ok {
		t.Fatalf("live /search response item %v has no lowercase \"score\" key", item)
	}
}

func TestAutocompleteMissingQueryReturns400(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/autocomplete", nil)
	rec := httptest.NewRecorder()

	h.Autocomplete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAutocompleteDefaultsLimitTo10(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/autocomplete?q=a", nil)
	rec := httptest.NewRecorder()

	h.Autocomplete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp AutocompleteResponseAlias
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Prefix != "a" {
		t.Errorf("prefix = %q, want %q", resp.Prefix, "a")
	}
}

func TestDownloadMissingDocumentReturns404(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/download/999", nil)
	rec := httptest.NewRecorder()

	h.Download(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDownloadMissingDocIDReturns400(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/download/", nil)
	rec := httptest.NewRecorder()

	h.Download(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUploadRejectsRequestWithNoFilesField(t *testing.T) {
	h := newTestHandler(t)
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("comment", "no files here"); err != nil {
		t.Fatalf("writing field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUploadCountsNonPDFFileAsFailed(t *testing.T) {
	h := newTestHandler(t)
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "notes.txt")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := part.Write([]byte("plain text, not a pdf")); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Success {
		t.Errorf("success = true, want false for a rejected non-pdf upload")
	}
	if resp.FailedCount != 1 {
		t.Errorf("failedCount = %d, want 1", resp.FailedCount)
	}
	if resp.UploadedCount != 0 {
		t.Errorf("uploadedCount = %d, want 0", resp.UploadedCount)
	}
	if len(resp.NewDocIDs) != 0 {
		t.Errorf("newDocIds = %v, want empty", resp.NewDocIDs)
	}
}

func TestStatsReportsComponentSizesOnEmptyIndex(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	h.Stats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.LexiconSize != 0 || resp.DocumentCount != 0 || resp.MetadataCount != 0 {
		t.Errorf("expected zeroed component sizes on an empty index, got %+v", resp)
	}
}

func TestUploadProgressHandlerReportsPoolAndWriterStats(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/upload-progress", nil)
	rec := httptest.NewRecorder()

	h.UploadProgressHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp UploadProgress
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Completed != 0 || resp.Failed != 0 {
		t.Errorf("expected zeroed pool counters on a fresh engine, got %+v", resp)
	}
}

// SearchResponseAlias and AutocompleteResponseAlias mirror the JSON shape of
// query.SearchResponse and query.AutocompleteResponse without importing the
// query package's unexported accumulator types.
type SearchResponseAlias struct {
	Query   string        `json:"query"`
	Results []interface{} `json:"results"`
}

type AutocompleteResponseAlias struct {
	Prefix      string   `json:"prefix"`
	Suggestions []string `json:"suggestions"`
}
