package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"homecook/videosearch/internal/domain"
	"homecook/videosearch/internal/metrics"
)

const (
	callSearch  = "search"
	callDetails = "details"
)

type callHealth struct {
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

func (s *Service) recordCallResult(call, query string, err error, latency time.Duration, now time.Time) {
	if s == nil || call == "" {
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[call]
	if state == nil {
		state = &callHealth{}
		s.health[call] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		state.lastLatency = latency
		metrics.ClientRequestDuration.WithLabelValues(call).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.ClientRequestsTotal.WithLabelValues(call, "ok").Inc()
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()
	metrics.ClientRequestsTotal.WithLabelValues(call, callStatus(err, state.lastTimeout)).Inc()
}

func callStatus(err error, timeout bool) string {
	switch {
	case timeout:
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrInvalidConfiguration):
		return "unauthorized"
	case errors.Is(err, ErrInvalidQuery):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// ClientDiagnostics reports per call kind counters for the search client.
func (s *Service) ClientDiagnostics() []domain.ClientDiagnostics {
	breakerState := ""
	clientName := "client"
	if reporter, ok := s.client.(BreakerReporter); ok {
		breakerState = reporter.BreakerState()
		if name := strings.TrimSpace(reporter.Name()); name != "" {
			clientName = name
		}
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.ClientDiagnostics, 0, 2)
	for _, call := range []string{callSearch, callDetails} {
		item := domain.ClientDiagnostics{
			Name:         clientName + "." + call,
			BreakerState: breakerState,
		}
		if state := s.health[call]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}
