package domain

import (
	"strings"
	"time"
)

type Tag = string

type SearchMode string

const (
	SearchModeSelection SearchMode = "selection"
	SearchModeTrending  SearchMode = "trending"
)

type RankMetric string

const (
	RankMetricLikeCount RankMetric = "likeCount"
	RankMetricViewCount RankMetric = "viewCount"
)

// Metric returns the engagement metric the mode ranks by.
func (m SearchMode) Metric() RankMetric {
	if m == SearchModeTrending {
		return RankMetricViewCount
	}
	return RankMetricLikeCount
}

type SearchOrder string

const (
	SearchOrderRelevance SearchOrder = "relevance"
	SearchOrderViewCount SearchOrder = "viewCount"
)

type TagClass string

const (
	TagClassVegetable TagClass = "vegetable"
	TagClassMeat      TagClass = "meat"
	TagClassOther     TagClass = "other"
)

type SearchRequest struct {
	Tags         []Tag
	Tools        []Tag
	Language     string
	Mode         SearchMode
	DesiredCount int
	NoCache      bool
}

// NewSearchRequest returns a normalized copy: tags trimmed, lower-cased and
// de-duplicated with first-seen order preserved.
func NewSearchRequest(mode SearchMode, tags, tools []Tag, language string, desiredCount int) SearchRequest {
	return SearchRequest{
		Tags:         NormalizeTags(tags),
		Tools:        NormalizeTags(tools),
		Language:     strings.TrimSpace(language),
		Mode:         NormalizeMode(string(mode)),
		DesiredCount: desiredCount,
	}
}

func NormalizeMode(raw string) SearchMode {
	switch SearchMode(strings.ToLower(strings.TrimSpace(raw))) {
	case SearchModeTrending:
		return SearchModeTrending
	default:
		return SearchModeSelection
	}
}

func NormalizeTags(values []Tag) []Tag {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]Tag, 0, len(values))
	for _, raw := range values {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

type Combination struct {
	Vegetable Tag   `json:"vegetable"`
	Meat      Tag   `json:"meat"`
	Residual  []Tag `json:"residual,omitempty"`
}

// Tags returns the pair followed by the residual tags.
func (c Combination) Tags() []Tag {
	out := make([]Tag, 0, 2+len(c.Residual))
	out = append(out, c.Vegetable, c.Meat)
	out = append(out, c.Residual...)
	return out
}

// SearchQuery is one remote search call.
type SearchQuery struct {
	Query          string
	Language       string
	WindowMonths   int
	MaxResults     int
	Order          SearchOrder
	QualityFilters bool
}

// SearchHit is a raw search result before the details lookup.
type SearchHit struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	ChannelName  string    `json:"channelName,omitempty"`
	PublishedAt  time.Time `json:"publishedAt"`
}

type CandidateVideo struct {
	ID              string    `json:"id" msgpack:"id"`
	Title           string    `json:"title" msgpack:"title"`
	Description     string    `json:"description,omitempty" msgpack:"description,omitempty"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty" msgpack:"thumbnailUrl,omitempty"`
	ChannelName     string    `json:"channelName,omitempty" msgpack:"channelName,omitempty"`
	PublishedAt     time.Time `json:"publishedAt" msgpack:"publishedAt"`
	DurationSeconds *int      `json:"durationSeconds,omitempty" msgpack:"durationSeconds,omitempty"`
	Duration        string    `json:"duration,omitempty" msgpack:"duration,omitempty"`
	LikeCount       int64     `json:"likeCount" msgpack:"likeCount"`
	ViewCount       int64     `json:"viewCount" msgpack:"viewCount"`
	URL             string    `json:"url,omitempty" msgpack:"url,omitempty"`
	EmbedURL        string    `json:"embedUrl,omitempty" msgpack:"embedUrl,omitempty"`
}

// MetricValue returns the video's value for the given ranking metric.
func (v CandidateVideo) MetricValue(metric RankMetric) int64 {
	if metric == RankMetricViewCount {
		return v.ViewCount
	}
	return v.LikeCount
}

type TaskStatus struct {
	Query string   `json:"query" msgpack:"query"`
	Tags  []Tag    `json:"tags,omitempty" msgpack:"tags,omitempty"`
	OK    bool     `json:"ok" msgpack:"ok"`
	Count int      `json:"count" msgpack:"count"`
	Stage string   `json:"stage,omitempty" msgpack:"stage,omitempty"`
	Path  []string `json:"path,omitempty" msgpack:"path,omitempty"`
	Error string   `json:"error,omitempty" msgpack:"error,omitempty"`
}

type RecipeResponse struct {
	Mode         SearchMode       `json:"mode" msgpack:"mode"`
	Language     string           `json:"language" msgpack:"language"`
	Tags         []Tag            `json:"tags,omitempty" msgpack:"tags,omitempty"`
	Tools        []Tag            `json:"tools,omitempty" msgpack:"tools,omitempty"`
	Metric       RankMetric       `json:"metric" msgpack:"metric"`
	Items        []CandidateVideo `json:"items" msgpack:"items"`
	Tasks        []TaskStatus     `json:"tasks" msgpack:"tasks"`
	Combinations int              `json:"combinations" msgpack:"combinations"`
	Limit        int              `json:"limit" msgpack:"limit"`
	ElapsedMS    int64            `json:"elapsedMs" msgpack:"elapsedMs"`
	Phase        string           `json:"phase,omitempty" msgpack:"phase,omitempty"`
	Final        bool             `json:"final" msgpack:"final"`
	Error        string           `json:"error,omitempty" msgpack:"error,omitempty"`
}

type CatalogEntry struct {
	Key   Tag      `json:"key"`
	Label string   `json:"label"`
	Class TagClass `json:"class"`
}

type Catalog struct {
	Language   string         `json:"language"`
	Vegetables []CatalogEntry `json:"vegetables"`
	Meats      []CatalogEntry `json:"meats"`
	Staples    []CatalogEntry `json:"staples"`
	Tools      []CatalogEntry `json:"tools"`
}

type ClientDiagnostics struct {
	Name                string     `json:"name"`
	BreakerState        string     `json:"breakerState,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
