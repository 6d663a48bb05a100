package apihttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"homecook/videosearch/internal/domain"
	"homecook/videosearch/internal/search"
)

type RecipeService interface {
	SearchBySelection(ctx context.Context, tags, tools []domain.Tag, lang string, opts ...search.RequestOption) (domain.RecipeResponse, error)
	StreamBySelection(ctx context.Context, tags, tools []domain.Tag, lang string, opts ...search.RequestOption) <-chan domain.RecipeResponse
	SearchTrending(ctx context.Context, tags []domain.Tag, lang string, maxResults int, opts ...search.RequestOption) (domain.RecipeResponse, error)
	Gacha(ctx context.Context, lang string, servings int) (domain.RecipeResponse, error)
	ClientDiagnostics() []domain.ClientDiagnostics
}

type CatalogService interface {
	Describe(lang string) domain.Catalog
	Languages() []string
}

type Server struct {
	search    RecipeService
	catalog   CatalogService
	logger    *slog.Logger
	validate  *validator.Validate
	rateRPS   float64
	rateBurst int
}

// searchPayload is the POST /recipes/search body.
type searchPayload struct {
	Tags    []string `json:"tags" validate:"max=32,dive,required,max=64"`
	Tools   []string `json:"tools" validate:"max=32,dive,required,max=64"`
	Lang    string   `json:"lang" validate:"omitempty,max=35"`
	NoCache bool     `json:"nocache"`
}

const (
	defaultTrendingMax = 10
	maxTagParamLength  = 2000
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithCatalog(catalog CatalogService) ServerOption {
	return func(s *Server) {
		s.catalog = catalog
	}
}

// WithRateLimit sets the inbound token bucket. Non-positive values keep the
// defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func NewServer(recipeService RecipeService, options ...ServerOption) *Server {
	server := &Server{
		search:    recipeService,
		logger:    slog.Default(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		rateRPS:   20,
		rateBurst: 40,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/recipes/search", s.handleSearch)
	mux.HandleFunc("/recipes/search/stream", s.handleSearchStream)
	mux.HandleFunc("/recipes/trending", s.handleTrending)
	mux.HandleFunc("/recipes/gacha", s.handleGacha)
	mux.HandleFunc("/recipes/catalog", s.handleCatalog)
	mux.HandleFunc("/recipes/client/health", s.handleClientHealth)
	traced := otelhttp.NewHandler(requestIDMiddleware(loggingMiddleware(s.logger, mux)), "recipe-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/recipes/search" {
		http.NotFound(w, r)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	var request domain.SearchRequest
	switch r.Method {
	case http.MethodGet:
		parsed, err := selectionRequestFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		request = parsed
	case http.MethodPost:
		var payload searchPayload
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := s.validate.Struct(payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", describeValidationError(err))
			return
		}
		request = domain.NewSearchRequest(domain.SearchModeSelection, payload.Tags, payload.Tools, payload.Lang, 0)
		request.NoCache = payload.NoCache
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response, err := s.search.SearchBySelection(r.Context(), request.Tags, request.Tools, request.Language, search.BypassCache(request.NoCache))
	if err != nil {
		s.logger.Warn("recipe search failed",
			slog.Any("tags", request.Tags),
			slog.Any("tools", request.Tools),
			slog.String("lang", request.Language),
			slog.String("error", err.Error()),
		)
		writeSearchError(w, err)
		return
	}
	s.logCompleted("recipe search served", request, response)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/recipes/search/stream" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}

	request, err := selectionRequestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	stream := s.search.StreamBySelection(r.Context(), request.Tags, request.Tools, request.Language, search.BypassCache(request.NoCache))
	for response := range stream {
		select {
		case <-r.Context().Done():
			return // Client disconnected
		default:
		}
		if response.Error != "" {
			_ = writeSSEEvent(w, flusher, "error", map[string]any{
				"message": response.Error,
			})
			_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
			return
		}
		event := response.Phase
		if event == "" {
			event = "update"
		}
		if err := writeSSEEvent(w, flusher, event, response); err != nil {
			return // Client disconnected
		}
	}
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/recipes/trending" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	tagsRaw := r.URL.Query().Get("tags")
	if len(tagsRaw) > maxTagParamLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "tags too long")
		return
	}
	maxResults, err := parsePositiveInt(r, "max", defaultTrendingMax)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid max")
		return
	}

	request := domain.NewSearchRequest(domain.SearchModeTrending, parseCSV(tagsRaw), nil, r.URL.Query().Get("lang"), maxResults)
	request.NoCache = parseOptionalBool(r.URL.Query().Get("nocache"))

	response, err := s.search.SearchTrending(r.Context(), request.Tags, request.Language, maxResults, search.BypassCache(request.NoCache))
	if err != nil {
		s.logger.Warn("trending search failed",
			slog.Any("tags", request.Tags),
			slog.Int("max", maxResults),
			slog.String("error", err.Error()),
		)
		writeSearchError(w, err)
		return
	}
	s.logCompleted("trending search served", request, response)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleGacha(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/recipes/gacha" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	servings, err := parsePositiveInt(r, "servings", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid servings")
		return
	}
	lang := strings.TrimSpace(r.URL.Query().Get("lang"))

	response, err := s.search.Gacha(r.Context(), lang, servings)
	if err != nil {
		s.logger.Warn("gacha draw failed", slog.String("lang", lang), slog.String("error", err.Error()))
		writeSearchError(w, err)
		return
	}
	s.logger.Info("gacha draw served",
		slog.Any("tags", response.Tags),
		slog.Int("items", len(response.Items)),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/recipes/catalog" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"catalog":   s.catalog.Describe(r.URL.Query().Get("lang")),
		"languages": s.catalog.Languages(),
	})
}

func (s *Server) handleClientHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/recipes/client/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ClientDiagnostics(),
	})
}

func (s *Server) logCompleted(message string, request domain.SearchRequest, response domain.RecipeResponse) {
	failedTasks := 0
	for _, task := range response.Tasks {
		if !task.OK {
			failedTasks++
		}
	}
	s.logger.Info(message,
		slog.String("mode", string(request.Mode)),
		slog.Any("tags", request.Tags),
		slog.Int("items", len(response.Items)),
		slog.Int("combinations", response.Combinations),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Int("failedTasks", failedTasks),
	)
}

func selectionRequestFromQuery(r *http.Request) (domain.SearchRequest, error) {
	q := r.URL.Query()
	tagsRaw := q.Get("tags")
	toolsRaw := q.Get("tools")
	if len(tagsRaw) > maxTagParamLength || len(toolsRaw) > maxTagParamLength {
		return domain.SearchRequest{}, errors.New("tags too long")
	}
	request := domain.NewSearchRequest(domain.SearchModeSelection, parseCSV(tagsRaw), parseCSV(toolsRaw), q.Get("lang"), 0)
	request.NoCache = parseOptionalBool(q.Get("nocache")) || parseOptionalBool(q.Get("noCache"))
	return request, nil
}

func writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, search.ErrInvalidCount):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrInvalidConfiguration), errors.Is(err, search.ErrInvalidKey):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, search.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, search.ErrNetwork),
		errors.Is(err, search.ErrNotFound),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
	}
}

func describeValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return "invalid request body"
	}
	first := validationErrors[0]
	field := strings.ToLower(first.Field())
	switch first.Tag() {
	case "max":
		return fmt.Sprintf("%s exceeds the maximum of %s", field, first.Param())
	case "required":
		return fmt.Sprintf("%s must not contain empty values", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
