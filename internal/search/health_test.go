package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"homecook/videosearch/internal/domain"
)

type reportingClient struct {
	*fakeClient
	state string
}

func (c *reportingClient) Name() string         { return "youtube" }
func (c *reportingClient) BreakerState() string { return c.state }

func TestRecordCallResultTracksFailuresAndRecovery(t *testing.T) {
	svc := newTestService(&reportingClient{fakeClient: newFakeClient(), state: "closed"})
	now := time.Now()

	svc.recordCallResult(callSearch, "q1", fmt.Errorf("%w: status 503", ErrNetwork), 120*time.Millisecond, now)
	svc.recordCallResult(callSearch, "q2", context.DeadlineExceeded, 2*time.Second, now.Add(time.Second))

	diag := diagnosticsByName(svc.ClientDiagnostics())
	search := diag["youtube.search"]
	if search.ConsecutiveFailures != 2 || search.TotalFailures != 2 || search.TotalRequests != 2 {
		t.Fatalf("unexpected failure counters: %+v", search)
	}
	if !search.LastTimeout || search.TimeoutCount != 1 {
		t.Fatalf("expected timeout to be tracked: %+v", search)
	}
	if search.LastQuery != "q2" || search.LastLatencyMS != 2000 {
		t.Fatalf("unexpected last call info: %+v", search)
	}
	if search.BreakerState != "closed" {
		t.Fatalf("expected breaker state from client, got %q", search.BreakerState)
	}

	svc.recordCallResult(callSearch, "q3", nil, 50*time.Millisecond, now.Add(2*time.Second))
	search = diagnosticsByName(svc.ClientDiagnostics())["youtube.search"]
	if search.ConsecutiveFailures != 0 || search.LastError != "" || search.LastSuccessAt == nil {
		t.Fatalf("expected success to reset failure streak: %+v", search)
	}
}

func TestClientDiagnosticsListsBothCallKinds(t *testing.T) {
	client := newFakeClient(video("a", 1, 1))
	client.script = func(domain.SearchQuery) ([]domain.SearchHit, error) {
		return hits("a"), nil
	}
	svc := newTestService(client, WithCacheDisabled(true))

	if _, err := svc.SearchTrending(context.Background(), []domain.Tag{"rice"}, "en", 1); err != nil {
		t.Fatalf("search error: %v", err)
	}

	diag := diagnosticsByName(svc.ClientDiagnostics())
	if len(diag) != 2 {
		t.Fatalf("expected search and details entries, got %v", diag)
	}
	if diag["client.search"].TotalRequests != 1 || diag["client.details"].TotalRequests != 1 {
		t.Fatalf("unexpected request counters: %+v", diag)
	}
}

func TestCallStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: quota", ErrRateLimited), "rate_limited"},
		{ErrInvalidKey, "unauthorized"},
		{ErrInvalidQuery, "invalid"},
		{ErrNotFound, "not_found"},
		{ErrNetwork, "error"},
	}
	for _, tt := range tests {
		if got := callStatus(tt.err, false); got != tt.want {
			t.Errorf("callStatus(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if got := callStatus(context.DeadlineExceeded, true); got != "timeout" {
		t.Fatalf("expected timeout status, got %q", got)
	}
}

func diagnosticsByName(items []domain.ClientDiagnostics) map[string]domain.ClientDiagnostics {
	out := make(map[string]domain.ClientDiagnostics, len(items))
	for _, item := range items {
		out[item.Name] = item
	}
	return out
}
