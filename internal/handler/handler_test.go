package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/analysis"
	"github.com/fleveque/research-analyst/internal/input"
	"github.com/fleveque/research-analyst/internal/model"
	"github.com/fleveque/research-analyst/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAnalyzer records its inputs and returns canned output.
type fakeAnalyzer struct {
	result *model.DisplayResult
	err    error

	task, mode, query string
	raw               input.RawInput
}

func (f *fakeAnalyzer) Analyze(_ context.Context, task, mode string, raw input.RawInput) (*model.DisplayResult, error) {
	f.task, f.mode, f.raw = task, mode, raw
	return f.result, f.err
}

func (f *fakeAnalyzer) RunTeam(_ context.Context, query string) (*model.DisplayResult, error) {
	f.query = query
	return f.result, f.err
}

var sampleResult = &model.DisplayResult{
	RenderedText: "## Podcast Summary\n\nRates are up.\n",
	UsageSummary: "Input Tokens: 500 | Output Tokens: 120 | Total Tokens: 620",
}

func newRouter(a Analyzer) *gin.Engine {
	logger := zap.NewNop()
	page := NewPageHandler(true, logger)
	analyses := NewAnalysisHandler(a, page, 1<<20, logger)
	team := NewTeamHandler(a, page, logger)

	r := gin.New()
	r.GET("/", page.Index)
	r.POST(analysesPath, analyses.Analyze)
	r.POST(teamRunsPath, team.Run)
	return r
}

type formFile struct {
	name, contentType string
	data              []byte
}

func multipartRequest(t *testing.T, fields map[string]string, file *formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field: %v", err)
		}
	}
	if file != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("creating part: %v", err)
		}
		_, _ = part.Write(file.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, analysesPath, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestAnalyze_JSON(t *testing.T) {
	a := &fakeAnalyzer{result: sampleResult}
	router := newRouter(a)

	req := multipartRequest(t, map[string]string{"task": "podcast", "mode": "summary"},
		&formFile{name: "ep1.mp3", contentType: "audio/mpeg", data: []byte("ID3 audio")})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got model.DisplayResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if diff := cmp.Diff(*sampleResult, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	if a.task != "podcast" || a.mode != "summary" {
		t.Errorf("unexpected task/mode %s/%s", a.task, a.mode)
	}
	if string(a.raw.Data) != "ID3 audio" || a.raw.MIMEType != "audio/mpeg" || a.raw.Filename != "ep1.mp3" {
		t.Errorf("upload not forwarded: %+v", a.raw)
	}
}

func TestAnalyze_Metadata(t *testing.T) {
	a := &fakeAnalyzer{result: sampleResult}
	router := newRouter(a)

	req := multipartRequest(t, map[string]string{
		"task": "transcript", "symbol": "AAPL", "year": "2024", "quarter": "Q1",
	}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := map[string]string{model.MetaYear: "2024", model.MetaQuarter: "Q1"}
	if diff := cmp.Diff(want, a.raw.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if a.raw.Symbol != "AAPL" || a.raw.Data != nil {
		t.Errorf("unexpected raw input %+v", a.raw)
	}
}

func TestAnalyze_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid input", analysis.InvalidInput("url", "not an absolute URL"), http.StatusBadRequest, "invalid_input"},
		{"upstream", &analysis.UpstreamError{Service: "gemini", Status: 500, Message: "internal"}, http.StatusBadGateway, "upstream_error"},
		{"timeout", &analysis.TimeoutError{Service: "gemini", After: time.Minute}, http.StatusGatewayTimeout, "timeout"},
		{"not configured", fmt.Errorf("fmp: %w", analysis.ErrNotConfigured), http.StatusServiceUnavailable, "not_configured"},
		{"internal", errors.New("database exploded"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&fakeAnalyzer{err: tt.err})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartRequest(t, map[string]string{"task": "video", "url": "x"}, nil))

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			body := decodeError(t, w)
			if body.Error != tt.kind {
				t.Errorf("expected kind %q, got %q", tt.kind, body.Error)
			}
			if tt.kind == "internal_error" && strings.Contains(body.Message, "database") {
				t.Error("internal error details should not leak to clients")
			}
		})
	}
}

func TestAnalyze_MissingTask(t *testing.T) {
	a := &fakeAnalyzer{result: sampleResult}
	router := newRouter(a)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string]string{"url": "https://youtu.be/x"}, nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Error != "invalid_input" || !strings.Contains(body.Message, "task") {
		t.Errorf("unexpected body %+v", body)
	}
	if a.task != "" {
		t.Error("analyzer should not run without a task")
	}
}

func TestAnalyze_UploadTooLarge(t *testing.T) {
	router := newRouter(&fakeAnalyzer{result: sampleResult})

	big := bytes.Repeat([]byte("a"), 3<<20)
	req := multipartRequest(t, map[string]string{"task": "podcast"},
		&formFile{name: "big.mp3", contentType: "audio/mpeg", data: big})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func TestAnalyze_HTML(t *testing.T) {
	router := newRouter(&fakeAnalyzer{result: sampleResult})

	req := multipartRequest(t, map[string]string{"task": "podcast"},
		&formFile{name: "ep1.mp3", contentType: "audio/mpeg", data: []byte("ID3")})
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected HTML, got %q", ct)
	}
	for _, want := range []string{"<h2>Podcast Summary</h2>", "Total Tokens: 620"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestAnalyze_HTMLError(t *testing.T) {
	router := newRouter(&fakeAnalyzer{err: analysis.InvalidInput("symbol", "no earnings call transcript found for ZZZZ Q1 2024")})

	req := multipartRequest(t, map[string]string{"task": "transcript", "symbol": "ZZZZ"}, nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `class="error"`) || !strings.Contains(w.Body.String(), "ZZZZ Q1 2024") {
		t.Errorf("expected the error on the page, got %s", w.Body.String())
	}
}

func TestIndex(t *testing.T) {
	router := newRouter(&fakeAnalyzer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?api_key=k1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`action="/api/v1/analyses?api_key=k1"`,
		`value="transcript"`, `value="podcast"`, `value="video"`, `value="image"`, `value="chart"`,
		`name="query"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestTeamRun(t *testing.T) {
	a := &fakeAnalyzer{result: sampleResult}
	router := newRouter(a)

	req := httptest.NewRequest(http.MethodPost, teamRunsPath, strings.NewReader(`{"query": "How is NVDA doing?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if a.query != "How is NVDA doing?" {
		t.Errorf("unexpected query %q", a.query)
	}
}

func TestTeamRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing query", `{}`, nil, http.StatusBadRequest},
		{"not configured", `{"query": "hi"}`, analysis.ErrNotConfigured, http.StatusServiceUnavailable},
		{"upstream", `{"query": "hi"}`, &analysis.UpstreamError{Service: "team", Status: 404, Message: "Team not found"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&fakeAnalyzer{result: sampleResult, err: tt.err})

			req := httptest.NewRequest(http.MethodPost, teamRunsPath, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func newAdminRouter(t *testing.T) (*gin.Engine, storage.CallRepository) {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := storage.NewCallRepository(db)
	h := NewAdminHandler(repo, zap.NewNop())

	r := gin.New()
	r.GET("/stats", h.Stats)
	r.GET("/calls/:request_id", h.Calls)
	return r, repo
}

func TestAdminStats(t *testing.T) {
	router, repo := newAdminRouter(t)
	ctx := context.Background()

	for _, call := range []*model.AnalysisCall{
		{RequestID: "r1", Task: "podcast", Provider: "gemini", Model: "flash", InputTokens: 500, OutputTokens: 120, TotalTokens: 620, Success: true},
		{RequestID: "r2", Task: "podcast", Provider: "gemini", Model: "flash", Success: false},
		{RequestID: "r3", Task: "chart", Provider: "gemini", Model: "flash", InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Success: true},
	} {
		if err := repo.Create(ctx, call); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var got struct {
		Calls  model.CallStats   `json:"calls"`
		ByTask []model.TaskCount `json:"by_task"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}

	want := model.CallStats{Total: 3, Succeeded: 2, Failed: 1, InputTokens: 510, OutputTokens: 125, TotalTokens: 635}
	if diff := cmp.Diff(want, got.Calls); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(got.ByTask) != 2 {
		t.Errorf("expected two tasks, got %+v", got.ByTask)
	}
}

func TestAdminCalls_NotFound(t *testing.T) {
	router, _ := newAdminRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/calls/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		status int
	}{
		{"no db", nil, http.StatusOK},
		{"db ok", fakePinger{}, http.StatusOK},
		{"db down", fakePinger{err: errors.New("locked")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthz", NewHealthHandler(tt.db, "gemini", "gemini-2.0-flash").Healthz)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}
