package search

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"homecook/videosearch/internal/domain"
	"homecook/videosearch/internal/metrics"
)

const (
	defaultCacheTTL            = 30 * time.Minute
	defaultStaleTTL            = 90 * time.Minute
	defaultWarmInterval        = 10 * time.Minute
	defaultWarmTopQueries      = 8
	defaultCacheMaxEntries     = 400
	defaultPopularMaxEntries   = 200
	maxConcurrentWarmRefreshes = 2 // every refresh costs provider quota
)

// CacheBackend is a shared store for ranked responses that outlives the
// in-memory cache (Redis or a local Badger directory).
type CacheBackend interface {
	Get(ctx context.Context, key string) (domain.RecipeResponse, bool, error)
	Set(ctx context.Context, key string, response domain.RecipeResponse, ttl time.Duration) error
}

type searchWarmerConfig struct {
	cacheTTL          time.Duration
	staleTTL          time.Duration
	warmInterval      time.Duration
	warmTopQueries    int
	cacheMaxEntries   int
	popularMaxEntries int
}

type cachedRecipeResponse struct {
	response    domain.RecipeResponse
	updatedAt   time.Time
	expiresAt   time.Time
	staleUntil  time.Time
	refreshing  bool
	refreshOnce sync.Once
}

type popularRequest struct {
	request  domain.SearchRequest
	hits     int
	lastSeen time.Time
	lastWarm time.Time
}

type warmSpec struct {
	key     string
	request domain.SearchRequest
}

func defaultSearchWarmerConfig() searchWarmerConfig {
	return searchWarmerConfig{
		cacheTTL:          defaultCacheTTL,
		staleTTL:          defaultStaleTTL,
		warmInterval:      defaultWarmInterval,
		warmTopQueries:    defaultWarmTopQueries,
		cacheMaxEntries:   defaultCacheMaxEntries,
		popularMaxEntries: defaultPopularMaxEntries,
	}
}

func (s *Service) runWarmer(ctx context.Context) {
	ticker := time.NewTicker(s.warmerCfg.warmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWarmCycle(ctx)
		}
	}
}

func (s *Service) runWarmCycle(ctx context.Context) {
	now := time.Now()
	specs := s.collectWarmSpecs(now)
	if len(specs) == 0 {
		return
	}

	sem := semaphore.NewWeighted(maxConcurrentWarmRefreshes)
	var wg sync.WaitGroup

	for _, spec := range specs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		wg.Add(1)
		go func(spec warmSpec) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				s.cacheClearRefreshing(spec.key)
				return
			}
			defer sem.Release(1)

			refreshCtx, cancel := context.WithTimeout(ctx, s.timeout+2*time.Second)
			defer cancel()

			if _, err := s.searchNoCache(refreshCtx, spec.request); err != nil {
				s.logger.Debug("cache warm refresh failed", slog.String("key", spec.key), slog.String("error", err.Error()))
				s.cacheClearRefreshing(spec.key)
			}
		}(spec)
	}

	wg.Wait()
}

func (s *Service) collectWarmSpecs(now time.Time) []warmSpec {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if len(s.popular) == 0 {
		return nil
	}

	keys := make([]string, 0, len(s.popular))
	for key := range s.popular {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		left := s.popular[keys[i]]
		right := s.popular[keys[j]]
		if left.hits != right.hits {
			return left.hits > right.hits
		}
		return left.lastSeen.After(right.lastSeen)
	})

	limit := s.warmerCfg.warmTopQueries
	if limit <= 0 {
		limit = defaultWarmTopQueries
	}
	if len(keys) < limit {
		limit = len(keys)
	}

	specs := make([]warmSpec, 0, limit)
	for _, key := range keys[:limit] {
		pop := s.popular[key]
		if pop == nil {
			continue
		}
		if !pop.lastWarm.IsZero() && now.Sub(pop.lastWarm) < s.warmerCfg.warmInterval/2 {
			continue
		}
		if cacheEntry, ok := s.cache[key]; ok && now.Before(cacheEntry.expiresAt) {
			continue
		}
		pop.lastWarm = now
		if cacheEntry := s.cache[key]; cacheEntry != nil {
			cacheEntry.refreshing = true
		}
		specs = append(specs, warmSpec{key: key, request: cloneSearchRequest(pop.request)})
	}
	return specs
}

func (s *Service) cacheLookup(key string, now time.Time) (domain.RecipeResponse, bool, bool) {
	if s.backend != nil {
		resp, found, err := s.backend.Get(context.Background(), key)
		if err != nil {
			s.logger.Debug("cache backend get failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemoryOnly(key, resp, now)
			return resp, true, false
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.RecipeResponse{}, false, false
	}

	if now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return cloneRecipeResponse(entry.response), true, false
	}

	if now.Before(entry.staleUntil) {
		metrics.CacheHitsTotal.Inc()
		// One refresh per stale period, even when requests pile up.
		needsRefresh := false
		entry.refreshOnce.Do(func() {
			needsRefresh = true
			entry.refreshing = true
		})
		return cloneRecipeResponse(entry.response), true, needsRefresh
	}

	metrics.CacheMissesTotal.Inc()
	delete(s.cache, key)
	delete(s.popular, key)
	return domain.RecipeResponse{}, false, false
}

// cacheStore keeps complete, non-empty rankings only. An empty ranking or a
// failed task usually means the provider was failing or the deadline cut the
// fan-out short, and the next request should search again. Reports whether
// the response was stored.
func (s *Service) cacheStore(key string, response domain.RecipeResponse, now time.Time) bool {
	if len(response.Items) == 0 || !responseComplete(response) {
		return false
	}
	cacheTTL, _ := s.cacheTTLs()

	if s.backend != nil {
		if err := s.backend.Set(context.Background(), key, response, cacheTTL); err != nil {
			s.logger.Debug("cache backend set failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	s.cacheStoreMemoryOnly(key, response, now)
	return true
}

func responseComplete(response domain.RecipeResponse) bool {
	for _, task := range response.Tasks {
		if !task.OK {
			return false
		}
	}
	return true
}

func (s *Service) cacheStoreMemoryOnly(key string, response domain.RecipeResponse, now time.Time) {
	cacheTTL, staleTTL := s.cacheTTLs()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedRecipeResponse{
		response:   cloneRecipeResponse(response),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
	}
	s.trimCacheLocked(now)
}

func (s *Service) cacheTTLs() (time.Duration, time.Duration) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	staleTTL := s.warmerCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}
	return cacheTTL, staleTTL
}

func (s *Service) cacheClearRefreshing(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if entry := s.cache[key]; entry != nil {
		entry.refreshing = false
	}
}

func (s *Service) markPopular(key string, request domain.SearchRequest, now time.Time) {
	if request.NoCache {
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	pop, ok := s.popular[key]
	if !ok {
		s.popular[key] = &popularRequest{
			request:  cloneSearchRequest(request),
			hits:     1,
			lastSeen: now,
		}
	} else {
		pop.hits++
		pop.lastSeen = now
		pop.request = cloneSearchRequest(request)
	}

	limit := s.warmerCfg.popularMaxEntries
	if limit <= 0 {
		limit = defaultPopularMaxEntries
	}
	if len(s.popular) <= limit {
		return
	}

	// Drop the least popular, oldest requests.
	type pair struct {
		key   string
		value *popularRequest
	}
	items := make([]pair, 0, len(s.popular))
	for popKey, value := range s.popular {
		items = append(items, pair{key: popKey, value: value})
	}
	sort.Slice(items, func(i, j int) bool {
		left := items[i].value
		right := items[j].value
		if left.hits != right.hits {
			return left.hits < right.hits
		}
		return left.lastSeen.Before(right.lastSeen)
	})
	for i := 0; i < len(items)-limit; i++ {
		delete(s.popular, items[i].key)
	}
}

func (s *Service) trimCacheLocked(now time.Time) {
	maxEntries := s.warmerCfg.cacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}

	for key, entry := range s.cache {
		if now.After(entry.staleUntil) {
			delete(s.cache, key)
		}
	}

	if len(s.cache) <= maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedRecipeResponse
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-maxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneRecipeResponse(response domain.RecipeResponse) domain.RecipeResponse {
	cloned := response
	cloned.Tags = append([]domain.Tag(nil), response.Tags...)
	cloned.Tools = append([]domain.Tag(nil), response.Tools...)
	if response.Items != nil {
		cloned.Items = make([]domain.CandidateVideo, len(response.Items))
		for i, item := range response.Items {
			copied := item
			if item.DurationSeconds != nil {
				value := *item.DurationSeconds
				copied.DurationSeconds = &value
			}
			cloned.Items[i] = copied
		}
	}
	if response.Tasks != nil {
		cloned.Tasks = make([]domain.TaskStatus, len(response.Tasks))
		for i, task := range response.Tasks {
			copied := task
			copied.Tags = append([]domain.Tag(nil), task.Tags...)
			copied.Path = append([]string(nil), task.Path...)
			cloned.Tasks[i] = copied
		}
	}
	return cloned
}

func cloneSearchRequest(request domain.SearchRequest) domain.SearchRequest {
	cloned := request
	cloned.Tags = append([]domain.Tag(nil), request.Tags...)
	cloned.Tools = append([]domain.Tag(nil), request.Tools...)
	return cloned
}

// buildRecipeCacheKey keys on the normalized request. Tag order is kept
// because it decides the composed query text.
func buildRecipeCacheKey(prepared preparedSearch) string {
	request := prepared.request
	return strings.Join([]string{
		"m=" + string(request.Mode),
		"lang=" + request.Language,
		"t=" + strings.Join(request.Tags, ","),
		"k=" + strings.Join(request.Tools, ","),
		"n=" + strconv.Itoa(prepared.limit),
	}, "|")
}
