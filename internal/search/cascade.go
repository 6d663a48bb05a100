package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"homecook/videosearch/internal/domain"
	"homecook/videosearch/internal/metrics"
	"homecook/videosearch/internal/telemetry"
)

// FallbackStage is one step of the per-query cascade. Stages only move
// forward, so a cascade makes at most three search/details round trips.
type FallbackStage int

const (
	StageRecentStrict FallbackStage = iota
	StageRecentRelaxed
	StageUnbounded
)

func (s FallbackStage) String() string {
	switch s {
	case StageRecentStrict:
		return "recent_strict"
	case StageRecentRelaxed:
		return "recent_relaxed"
	case StageUnbounded:
		return "unbounded"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// next returns the stage to try after s came up short. empty means the
// provider returned no raw hits at all, which skips the relaxed stage.
// Selection has no relaxed stage.
func (s FallbackStage) next(mode domain.SearchMode, empty bool) (FallbackStage, bool) {
	switch s {
	case StageRecentStrict:
		if empty || mode != domain.SearchModeTrending {
			return StageUnbounded, true
		}
		return StageRecentRelaxed, true
	case StageRecentRelaxed:
		return StageUnbounded, true
	default:
		return s, false
	}
}

// Policy holds the quota thresholds, recency windows and raw-hit sizing.
type Policy struct {
	SelectionLimit        int
	CombinationThreshold  int
	SmallFanOutQuota      int
	LargeFanOutQuota      int
	SelectionWindowMonths int
	TrendingWindowMonths  int
	UnboundedRawResults   int
	TrendingRawFloor      int
	MaxRawResults         int
}

func DefaultPolicy() Policy {
	return Policy{
		SelectionLimit:        6,
		CombinationThreshold:  4,
		SmallFanOutQuota:      2,
		LargeFanOutQuota:      1,
		SelectionWindowMonths: 6,
		TrendingWindowMonths:  1,
		UnboundedRawResults:   20,
		TrendingRawFloor:      20,
		MaxRawResults:         50,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.SelectionLimit <= 0 {
		p.SelectionLimit = def.SelectionLimit
	}
	if p.CombinationThreshold <= 0 {
		p.CombinationThreshold = def.CombinationThreshold
	}
	if p.SmallFanOutQuota <= 0 {
		p.SmallFanOutQuota = def.SmallFanOutQuota
	}
	if p.LargeFanOutQuota <= 0 {
		p.LargeFanOutQuota = def.LargeFanOutQuota
	}
	if p.SelectionWindowMonths <= 0 {
		p.SelectionWindowMonths = def.SelectionWindowMonths
	}
	if p.TrendingWindowMonths <= 0 {
		p.TrendingWindowMonths = def.TrendingWindowMonths
	}
	if p.UnboundedRawResults <= 0 {
		p.UnboundedRawResults = def.UnboundedRawResults
	}
	if p.TrendingRawFloor <= 0 {
		p.TrendingRawFloor = def.TrendingRawFloor
	}
	if p.MaxRawResults <= 0 {
		p.MaxRawResults = def.MaxRawResults
	}
	return p
}

// stageQuery returns the remote search parameters for one stage.
func (p Policy) stageQuery(mode domain.SearchMode, stage FallbackStage, query, lang string, maxResults int) domain.SearchQuery {
	q := domain.SearchQuery{
		Query:          query,
		Language:       lang,
		Order:          domain.SearchOrderRelevance,
		QualityFilters: true,
	}
	if mode == domain.SearchModeTrending {
		q.Order = domain.SearchOrderViewCount
		wide := max(3*maxResults, p.TrendingRawFloor)
		switch stage {
		case StageRecentStrict:
			q.WindowMonths = p.TrendingWindowMonths
			q.MaxResults = wide
		case StageRecentRelaxed:
			q.MaxResults = 2 * maxResults
		default:
			q.MaxResults = wide
			q.QualityFilters = false
		}
	} else {
		switch stage {
		case StageRecentStrict:
			q.WindowMonths = p.SelectionWindowMonths
			q.MaxResults = maxResults
		default:
			q.MaxResults = max(p.UnboundedRawResults, maxResults)
		}
	}
	q.MaxResults = min(max(q.MaxResults, 1), p.MaxRawResults)
	return q
}

type cascadeResult struct {
	Videos []domain.CandidateVideo
	Stage  FallbackStage
	Path   []FallbackStage
}

func (r cascadeResult) pathNames() []string {
	out := make([]string, 0, len(r.Path))
	for _, stage := range r.Path {
		out = append(out, stage.String())
	}
	return out
}

// runCascade walks the stages for one query until a stage surfaces at least
// maxResults videos or the unbounded stage has run. Failures before the
// unbounded stage move on to the next stage unless no stage could succeed.
func (s *Service) runCascade(ctx context.Context, mode domain.SearchMode, query, lang string, maxResults int) (cascadeResult, error) {
	result := cascadeResult{Stage: StageRecentStrict}
	stage := StageRecentStrict
	for {
		result.Stage = stage
		result.Path = append(result.Path, stage)

		videos, rawHits, err := s.runStage(ctx, mode, stage, query, lang, maxResults)
		if err != nil {
			metrics.CascadeStagesTotal.WithLabelValues(string(mode), stage.String(), "error").Inc()
			next, ok := stage.next(mode, false)
			if !ok || IsFatal(err) || ctx.Err() != nil {
				return result, err
			}
			s.logger.Warn("cascade stage failed, falling back",
				slog.String("stage", stage.String()),
				slog.String("next", next.String()),
				slog.String("query", query),
				slog.String("error", err.Error()),
			)
			stage = next
			continue
		}

		result.Videos = videos
		if len(videos) >= maxResults {
			metrics.CascadeStagesTotal.WithLabelValues(string(mode), stage.String(), "filled").Inc()
			return result, nil
		}
		metrics.CascadeStagesTotal.WithLabelValues(string(mode), stage.String(), "short").Inc()
		next, ok := stage.next(mode, rawHits == 0)
		if !ok {
			return result, nil
		}
		s.logger.Debug("cascade stage short, advancing",
			slog.String("stage", stage.String()),
			slog.String("next", next.String()),
			slog.String("query", query),
			slog.Int("rawHits", rawHits),
			slog.Int("surfaced", len(videos)),
			slog.Int("want", maxResults),
		)
		stage = next
	}
}

// runStage performs one search plus details round trip and returns the
// surfaced videos together with the raw hit count.
func (s *Service) runStage(ctx context.Context, mode domain.SearchMode, stage FallbackStage, query, lang string, maxResults int) ([]domain.CandidateVideo, int, error) {
	sq := s.policy.stageQuery(mode, stage, query, lang, maxResults)

	ctx, span := telemetry.Tracer().Start(ctx, "search.cascade.stage", trace.WithAttributes(
		attribute.String("search.mode", string(mode)),
		attribute.String("search.stage", stage.String()),
		attribute.Int("search.max_raw_results", sq.MaxResults),
		attribute.Int("search.window_months", sq.WindowMonths),
	))
	defer span.End()

	var hits []domain.SearchHit
	started := time.Now()
	err := RetryWithBackoff(ctx, s.retry, func() error {
		var callErr error
		hits, callErr = s.client.Search(ctx, sq)
		return callErr
	})
	s.recordCallResult(callSearch, query, err, time.Since(started), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, 0, err
	}

	ids := uniqueHitIDs(hits)
	span.SetAttributes(attribute.Int("search.raw_hits", len(hits)))
	if len(ids) == 0 {
		return nil, len(hits), nil
	}

	var details []domain.CandidateVideo
	started = time.Now()
	err = RetryWithBackoff(ctx, s.retry, func() error {
		var callErr error
		details, callErr = s.client.FetchDetails(ctx, ids)
		return callErr
	})
	s.recordCallResult(callDetails, query, err, time.Since(started), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "details failed")
		return nil, len(hits), err
	}

	videos := Merge(details, mode.Metric(), maxResults)
	span.SetAttributes(attribute.Int("search.surfaced", len(videos)))
	return videos, len(hits), nil
}

func uniqueHitIDs(hits []domain.SearchHit) []string {
	seen := make(map[string]struct{}, len(hits))
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.ID == "" {
			continue
		}
		if _, ok := seen[hit.ID]; ok {
			continue
		}
		seen[hit.ID] = struct{}{}
		ids = append(ids, hit.ID)
	}
	return ids
}
