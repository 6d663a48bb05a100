package search

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"homecook/videosearch/internal/catalog"
	"homecook/videosearch/internal/domain"
)

// fakeClient answers searches through a script function and details from a
// fixed video table.
type fakeClient struct {
	script     func(query domain.SearchQuery) ([]domain.SearchHit, error)
	videos     map[string]domain.CandidateVideo
	detailsErr error
	delay      time.Duration

	mu          sync.Mutex
	queries     []domain.SearchQuery
	searchCalls atomic.Int32
	detailCalls atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeClient(videos ...domain.CandidateVideo) *fakeClient {
	table := make(map[string]domain.CandidateVideo, len(videos))
	for _, v := range videos {
		table[v.ID] = v
	}
	return &fakeClient{videos: table}
}

func (c *fakeClient) Search(ctx context.Context, query domain.SearchQuery) ([]domain.SearchHit, error) {
	c.searchCalls.Add(1)
	current := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.maxInFlight.Load()
		if current <= peak || c.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.script == nil {
		return nil, nil
	}
	return c.script(query)
}

func (c *fakeClient) FetchDetails(ctx context.Context, ids []string) ([]domain.CandidateVideo, error) {
	c.detailCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.detailsErr != nil {
		return nil, c.detailsErr
	}
	out := make([]domain.CandidateVideo, 0, len(ids))
	for _, id := range ids {
		if v, ok := c.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *fakeClient) recorded() []domain.SearchQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SearchQuery(nil), c.queries...)
}

func video(id string, likes, views int64) domain.CandidateVideo {
	return domain.CandidateVideo{ID: id, Title: "video " + id, LikeCount: likes, ViewCount: views}
}

func hits(ids ...string) []domain.SearchHit {
	out := make([]domain.SearchHit, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.SearchHit{ID: id, Title: "video " + id})
	}
	return out
}

func idsOf(items []domain.CandidateVideo) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func queryHas(query domain.SearchQuery, words ...string) bool {
	for _, word := range words {
		if !strings.Contains(query.Query, word) {
			return false
		}
	}
	return true
}

func newTestService(client SearchClient, opts ...ServiceOption) *Service {
	return NewService(client, catalog.Default(), 2*time.Second, opts...)
}
