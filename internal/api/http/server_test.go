package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"homecook/videosearch/internal/domain"
	"homecook/videosearch/internal/search"
)

type fakeRecipeService struct {
	mu           sync.Mutex
	lastRequest  domain.SearchRequest
	lastLang     string
	lastServings int
	callCount    int
	err          error
	stream       []domain.RecipeResponse
}

func fakeRequest(mode domain.SearchMode, tags, tools []domain.Tag, lang string, count int, opts []search.RequestOption) domain.SearchRequest {
	request := domain.NewSearchRequest(mode, tags, tools, lang, count)
	for _, opt := range opts {
		opt(&request)
	}
	return request
}

func (f *fakeRecipeService) SearchBySelection(ctx context.Context, tags, tools []domain.Tag, lang string, opts ...search.RequestOption) (domain.RecipeResponse, error) {
	return f.search(ctx, fakeRequest(domain.SearchModeSelection, tags, tools, lang, 6, opts))
}

func (f *fakeRecipeService) SearchTrending(ctx context.Context, tags []domain.Tag, lang string, maxResults int, opts ...search.RequestOption) (domain.RecipeResponse, error) {
	return f.search(ctx, fakeRequest(domain.SearchModeTrending, tags, nil, lang, maxResults, opts))
}

func (f *fakeRecipeService) search(ctx context.Context, request domain.SearchRequest) (domain.RecipeResponse, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	f.lastRequest = request
	if f.err != nil {
		return domain.RecipeResponse{}, f.err
	}
	return domain.RecipeResponse{
		Mode:     request.Mode,
		Language: request.Language,
		Tags:     request.Tags,
		Tools:    request.Tools,
		Metric:   request.Mode.Metric(),
		Items: []domain.CandidateVideo{
			{ID: "v1", Title: strings.Join(request.Tags, " ") + " video", LikeCount: 10},
		},
		Limit: 6,
		Final: true,
	}, nil
}

func (f *fakeRecipeService) StreamBySelection(ctx context.Context, tags, tools []domain.Tag, lang string, opts ...search.RequestOption) <-chan domain.RecipeResponse {
	_ = ctx
	f.mu.Lock()
	f.callCount++
	f.lastRequest = fakeRequest(domain.SearchModeSelection, tags, tools, lang, 6, opts)
	items := append([]domain.RecipeResponse(nil), f.stream...)
	f.mu.Unlock()

	ch := make(chan domain.RecipeResponse, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func (f *fakeRecipeService) Gacha(ctx context.Context, lang string, servings int) (domain.RecipeResponse, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	f.lastLang = lang
	f.lastServings = servings
	if f.err != nil {
		return domain.RecipeResponse{}, f.err
	}
	return domain.RecipeResponse{
		Mode:   domain.SearchModeTrending,
		Tags:   []domain.Tag{"potato", "beef"},
		Metric: domain.RankMetricViewCount,
		Items:  []domain.CandidateVideo{{ID: "g1", ViewCount: 100}},
		Final:  true,
	}, nil
}

func (f *fakeRecipeService) ClientDiagnostics() []domain.ClientDiagnostics {
	return []domain.ClientDiagnostics{
		{Name: "youtube.details", BreakerState: "closed", TotalRequests: 2},
		{Name: "youtube.search", BreakerState: "closed", TotalRequests: 3, LastLatencyMS: 120},
	}
}

type fakeCatalog struct{}

func (fakeCatalog) Describe(lang string) domain.Catalog {
	return domain.Catalog{
		Language:   lang,
		Vegetables: []domain.CatalogEntry{{Key: "potato", Label: "Potato", Class: domain.TagClassVegetable}},
		Meats:      []domain.CatalogEntry{{Key: "beef", Label: "Beef", Class: domain.TagClassMeat}},
	}
}

func (fakeCatalog) Languages() []string {
	return []string{"en", "ja"}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return payload.Error.Code, payload.Error.Message
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewServer(&fakeRecipeService{}).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSearchGetParsesTagsAndTools(t *testing.T) {
	svc := &fakeRecipeService{}
	handler := NewServer(svc).Handler()

	req := httptest.NewRequest(http.MethodGet, "/recipes/search?tags=Potato,%20beef,potato&tools=oven&lang=ja&nocache=1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.Join(svc.lastRequest.Tags, ","); got != "potato,beef" {
		t.Fatalf("unexpected tags %q", got)
	}
	if got := strings.Join(svc.lastRequest.Tools, ","); got != "oven" {
		t.Fatalf("unexpected tools %q", got)
	}
	if svc.lastRequest.Mode != domain.SearchModeSelection || svc.lastRequest.Language != "ja" || !svc.lastRequest.NoCache {
		t.Fatalf("unexpected request %+v", svc.lastRequest)
	}

	var response domain.RecipeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].ID != "v1" {
		t.Fatalf("unexpected response %+v", response)
	}
}

func TestSearchPostValidatesBody(t *testing.T) {
	svc := &fakeRecipeService{}
	handler := NewServer(svc).Handler()

	body := `{"tags":["potato","pork"],"tools":["wok"],"lang":"zh-CN"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recipes/search", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastRequest.Language != "zh-CN" || len(svc.lastRequest.Tags) != 2 {
		t.Fatalf("unexpected request %+v", svc.lastRequest)
	}

	tooMany := make([]string, 33)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("%q", fmt.Sprintf("tag%d", i))
	}
	cases := map[string]string{
		"unknown field": `{"tags":["potato"],"servings":3}`,
		"empty tag":     `{"tags":["potato",""]}`,
		"too many tags": `{"tags":[` + strings.Join(tooMany, ",") + `]}`,
		"broken json":   `{"tags":`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			before := svc.callCount
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recipes/search", strings.NewReader(payload)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if code, _ := decodeError(t, rec); code != "invalid_request" {
				t.Fatalf("unexpected code %q", code)
			}
			if svc.callCount != before {
				t.Fatal("service should not be called for an invalid body")
			}
		})
	}
}

func TestSearchErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: no tags", search.ErrInvalidQuery), http.StatusBadRequest, "invalid_request"},
		{search.ErrInvalidCount, http.StatusBadRequest, "invalid_request"},
		{search.ErrInvalidConfiguration, http.StatusServiceUnavailable, "service_unavailable"},
		{fmt.Errorf("%w: search: key", search.ErrInvalidKey), http.StatusServiceUnavailable, "service_unavailable"},
		{fmt.Errorf("%w: quota", search.ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("%w: reset", search.ErrNetwork), http.StatusBadGateway, "upstream_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		svc := &fakeRecipeService{err: tt.err}
		handler := NewServer(svc).Handler()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/search?tags=potato", nil))
		if rec.Code != tt.status {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.status, rec.Code)
		}
		if code, _ := decodeError(t, rec); code != tt.code {
			t.Fatalf("%v: expected code %q, got %q", tt.err, tt.code, code)
		}
	}
}

func TestSearchMethodNotAllowed(t *testing.T) {
	handler := NewServer(&fakeRecipeService{}).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/recipes/search", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestTrendingParsesMax(t *testing.T) {
	svc := &fakeRecipeService{}
	handler := NewServer(svc).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/trending?tags=curry&max=12&lang=en", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastRequest.Mode != domain.SearchModeTrending || svc.lastRequest.DesiredCount != 12 {
		t.Fatalf("unexpected request %+v", svc.lastRequest)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/trending?tags=curry", nil))
	if svc.lastRequest.DesiredCount != defaultTrendingMax {
		t.Fatalf("expected default max, got %d", svc.lastRequest.DesiredCount)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/trending?tags=curry&max=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid max, got %d", rec.Code)
	}
}

func TestGachaPassesServings(t *testing.T) {
	svc := &fakeRecipeService{}
	handler := NewServer(svc).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/gacha?lang=ko&servings=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastLang != "ko" || svc.lastServings != 3 {
		t.Fatalf("unexpected gacha args %q %d", svc.lastLang, svc.lastServings)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/gacha", nil))
	if svc.lastServings != 0 {
		t.Fatalf("expected service default servings, got %d", svc.lastServings)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	handler := NewServer(&fakeRecipeService{}, WithCatalog(fakeCatalog{})).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/catalog?lang=ja", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Catalog   domain.Catalog `json:"catalog"`
		Languages []string       `json:"languages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Catalog.Language != "ja" || len(payload.Languages) != 2 || len(payload.Catalog.Vegetables) != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCatalogWithoutCatalogConfigured(t *testing.T) {
	handler := NewServer(&fakeRecipeService{}).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/catalog", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestClientHealthEndpoint(t *testing.T) {
	handler := NewServer(&fakeRecipeService{}).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/client/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Items []domain.ClientDiagnostics `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[1].Name != "youtube.search" {
		t.Fatalf("unexpected diagnostics %+v", payload.Items)
	}
}

func TestSearchStreamWritesPhases(t *testing.T) {
	svc := &fakeRecipeService{stream: []domain.RecipeResponse{
		{Mode: domain.SearchModeSelection, Phase: "bootstrap"},
		{Mode: domain.SearchModeSelection, Phase: "update", Items: []domain.CandidateVideo{{ID: "a"}}},
		{Mode: domain.SearchModeSelection, Phase: "done", Final: true, Items: []domain.CandidateVideo{{ID: "a"}}},
	}}
	handler := NewServer(svc).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/search/stream?tags=potato,beef", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	bootstrap := strings.Index(body, "event: bootstrap")
	update := strings.Index(body, "event: update")
	done := strings.Index(body, "event: done")
	if bootstrap < 0 || update < bootstrap || done < update {
		t.Fatalf("unexpected event order:\n%s", body)
	}
}

func TestSearchStreamReportsErrors(t *testing.T) {
	svc := &fakeRecipeService{stream: []domain.RecipeResponse{
		{Phase: "done", Final: true, Error: "invalid search query: no tags"},
	}}
	handler := NewServer(svc).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/search/stream", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "event: error") || !strings.Contains(body, "no tags") || !strings.Contains(body, "event: done") {
		t.Fatalf("unexpected stream body:\n%s", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	handler := NewServer(&fakeRecipeService{}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/search?tags=potato", nil))
	if id := rec.Header().Get(requestIDHeader); len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/recipes/search?tags=potato", nil)
	req.Header.Set(requestIDHeader, "caller-id-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if id := rec.Header().Get(requestIDHeader); id != "caller-id-1" {
		t.Fatalf("expected caller id to be echoed, got %q", id)
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	handler := NewServer(&fakeRecipeService{}, WithRateLimit(0.001, 1)).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/catalog", nil))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/search?tags=potato", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After")); err != nil || retryAfter < 1 {
		t.Fatalf("expected a positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health must bypass the limiter, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(NewServer(nil).logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recipes/search", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/health":                "/health",
		"/recipes/search":        "/recipes/search",
		"/recipes/search/stream": "/recipes/search/stream",
		"/recipes/client/health": "/recipes/client/health",
		"/favicon.ico":           "/other",
	}
	for path, want := range cases {
		if got := normalizeRoute(path); got != want {
			t.Fatalf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}
