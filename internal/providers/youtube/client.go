package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"homecook/videosearch/internal/domain"
	"homecook/videosearch/internal/metrics"
	"homecook/videosearch/internal/search"
)

const (
	defaultBaseURL      = "https://www.googleapis.com/youtube/v3"
	clientName          = "youtube"
	maxIDsPerDetails    = 50
	maxResponseBytes    = 4 << 20
	maxErrorBodySnippet = 512
	defaultFailureTrip  = 5
	defaultOpenTimeout  = 30 * time.Second
)

// Locale maps a response language onto the provider's region and relevance
// language parameters.
type Locale interface {
	Region(lang string) (region string, relevanceLanguage string)
}

type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Locale  Locale
	Logger  *slog.Logger
	// RequestsPerSecond throttles outgoing calls. Zero disables the limiter.
	RequestsPerSecond float64
	// BreakerFailures is the number of consecutive transport failures that
	// open the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Now             func() time.Time
}

// Client talks to the YouTube Data API v3 search and videos endpoints.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	locale  Locale
	logger  *slog.Logger
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	now     func() time.Time
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultFailureTrip
	}
	openTimeout := cfg.BreakerTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	c := &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		locale:  cfg.Locale,
		logger:  logger,
		now:     now,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        clientName,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			available := 1.0
			if to == gobreaker.StateOpen {
				available = 0
			}
			metrics.ClientAvailable.WithLabelValues(name).Set(available)
			logger.Warn("provider circuit breaker state changed",
				slog.String("client", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	metrics.ClientAvailable.WithLabelValues(clientName).Set(1)
	return c
}

func (c *Client) Name() string {
	return clientName
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

type apiThumbnail struct {
	URL string `json:"url"`
}

type apiSnippet struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelTitle string `json:"channelTitle"`
	PublishedAt  string `json:"publishedAt"`
	Thumbnails   struct {
		Default apiThumbnail `json:"default"`
		Medium  apiThumbnail `json:"medium"`
		High    apiThumbnail `json:"high"`
	} `json:"thumbnails"`
}

func (s apiSnippet) thumbnail() string {
	for _, candidate := range []string{s.Thumbnails.Medium.URL, s.Thumbnails.High.URL, s.Thumbnails.Default.URL} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (s apiSnippet) publishedAt() time.Time {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(s.PublishedAt))
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet apiSnippet `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID         string     `json:"id"`
		Snippet    apiSnippet `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// Search runs one keyword search and returns the raw video hits.
func (c *Client) Search(ctx context.Context, query domain.SearchQuery) ([]domain.SearchHit, error) {
	if !c.Enabled() {
		return nil, search.ErrInvalidConfiguration
	}
	text := strings.TrimSpace(query.Query)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query text", search.ErrInvalidQuery)
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", text)
	params.Set("maxResults", strconv.Itoa(min(max(query.MaxResults, 1), 50)))
	order := query.Order
	if order == "" {
		order = domain.SearchOrderRelevance
	}
	params.Set("order", string(order))
	if query.WindowMonths > 0 {
		params.Set("publishedAfter", c.now().UTC().AddDate(0, -query.WindowMonths, 0).Format(time.RFC3339))
	}
	if c.locale != nil {
		region, relevance := c.locale.Region(query.Language)
		if region != "" {
			params.Set("regionCode", region)
		}
		if relevance != "" {
			params.Set("relevanceLanguage", relevance)
		}
	}
	if query.QualityFilters {
		params.Set("videoDuration", "medium")
		params.Set("videoDefinition", "high")
	}

	body, err := c.get(ctx, "search", params)
	if err != nil {
		return nil, err
	}
	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", search.ErrNetwork, err)
	}

	hits := make([]domain.SearchHit, 0, len(payload.Items))
	for _, item := range payload.Items {
		id := strings.TrimSpace(item.ID.VideoID)
		if id == "" {
			continue
		}
		hits = append(hits, domain.SearchHit{
			ID:           id,
			Title:        CleanTitle(item.Snippet.Title),
			Description:  TruncateDescription(item.Snippet.Description),
			ThumbnailURL: item.Snippet.thumbnail(),
			ChannelName:  strings.TrimSpace(item.Snippet.ChannelTitle),
			PublishedAt:  item.Snippet.publishedAt(),
		})
	}
	return hits, nil
}

// FetchDetails looks up statistics and durations for ids, 50 per request.
// Ids the provider no longer knows are left out of the result.
func (c *Client) FetchDetails(ctx context.Context, ids []string) ([]domain.CandidateVideo, error) {
	if !c.Enabled() {
		return nil, search.ErrInvalidConfiguration
	}
	out := make([]domain.CandidateVideo, 0, len(ids))
	for start := 0; start < len(ids); start += maxIDsPerDetails {
		end := min(start+maxIDsPerDetails, len(ids))
		params := url.Values{}
		params.Set("part", "snippet,statistics,contentDetails")
		params.Set("id", strings.Join(ids[start:end], ","))

		body, err := c.get(ctx, "videos", params)
		if err != nil {
			return nil, err
		}
		var payload videosResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode videos response: %v", search.ErrNetwork, err)
		}
		for _, item := range payload.Items {
			id := strings.TrimSpace(item.ID)
			if id == "" {
				continue
			}
			video := domain.CandidateVideo{
				ID:           id,
				Title:        CleanTitle(item.Snippet.Title),
				Description:  TruncateDescription(item.Snippet.Description),
				ThumbnailURL: item.Snippet.thumbnail(),
				ChannelName:  strings.TrimSpace(item.Snippet.ChannelTitle),
				PublishedAt:  item.Snippet.publishedAt(),
				ViewCount:    parseCount(item.Statistics.ViewCount),
				LikeCount:    parseCount(item.Statistics.LikeCount),
				URL:          WatchURL(id),
				EmbedURL:     EmbedURL(id),
			}
			if seconds, ok := ParseISODuration(item.ContentDetails.Duration); ok && seconds > 0 {
				video.DurationSeconds = &seconds
				video.Duration = FormatDuration(seconds)
			}
			out = append(out, video)
		}
	}
	return out, nil
}

// parseCount reads the provider's string counters. Hidden like counts are
// absent and count as zero.
func parseCount(raw string) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// get performs one API call through the limiter and the breaker. Only
// transport failures, 5xx and throttling count against the breaker; client
// errors are classified after Execute returns.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", search.ErrNetwork, err)
		}
	}
	params.Set("key", c.apiKey)
	endpointURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	var (
		status  int
		failure error
	)
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s request: %w", search.ErrNetwork, endpoint, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s response: %w", search.ErrNetwork, endpoint, err)
		}
		status = resp.StatusCode
		if status == http.StatusOK {
			return payload, nil
		}
		failure = classifyFailure(endpoint, status, payload)
		if status == http.StatusTooManyRequests || status >= 500 {
			return nil, failure
		}
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", search.ErrNetwork, endpoint, err)
		}
		return nil, err
	}
	if status != http.StatusOK {
		return nil, failure
	}
	return body, nil
}

func classifyFailure(endpoint string, status int, body []byte) error {
	var payload errorResponse
	_ = json.Unmarshal(body, &payload)
	message := strings.TrimSpace(payload.Error.Message)
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > maxErrorBodySnippet {
			message = message[:maxErrorBodySnippet]
		}
	}

	for _, item := range payload.Error.Errors {
		switch item.Reason {
		case "keyInvalid", "keyExpired":
			return fmt.Errorf("%w: %s: %s", search.ErrInvalidKey, endpoint, message)
		case "quotaExceeded", "rateLimitExceeded", "dailyLimitExceeded", "userRateLimitExceeded":
			return fmt.Errorf("%w: %s: %s", search.ErrRateLimited, endpoint, message)
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %s", search.ErrRateLimited, endpoint, message)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s: %s", search.ErrInvalidQuery, endpoint, message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", search.ErrInvalidKey, endpoint, message)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", search.ErrNotFound, endpoint, message)
	default:
		return fmt.Errorf("%w: %s status %d: %s", search.ErrNetwork, endpoint, status, message)
	}
}
