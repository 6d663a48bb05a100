package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"homecook/videosearch/internal/domain"
	"homecook/videosearch/internal/metrics"
)

const (
	maxRequestTags       = 32
	defaultGachaServings = 4
	minGachaTags         = 2
	maxGachaTags         = 4
)

type searchTask struct {
	tags       []domain.Tag
	query      string
	maxResults int
}

type preparedSearch struct {
	request      domain.SearchRequest
	tasks        []searchTask
	combinations int
	limit        int
}

// RequestOption adjusts a request built by the named entry points.
type RequestOption func(*domain.SearchRequest)

// BypassCache skips the response cache for the request when bypass is set.
func BypassCache(bypass bool) RequestOption {
	return func(request *domain.SearchRequest) {
		request.NoCache = request.NoCache || bypass
	}
}

// SearchBySelection recommends videos for a set of ingredient and kitchenware
// tags, ranked by likes and capped at the selection limit.
func (s *Service) SearchBySelection(ctx context.Context, tags, tools []domain.Tag, lang string, opts ...RequestOption) (domain.RecipeResponse, error) {
	return s.Search(ctx, s.selectionRequest(tags, tools, lang, opts))
}

// StreamBySelection is SearchBySelection delivered as snapshots.
func (s *Service) StreamBySelection(ctx context.Context, tags, tools []domain.Tag, lang string, opts ...RequestOption) <-chan domain.RecipeResponse {
	return s.SearchStream(ctx, s.selectionRequest(tags, tools, lang, opts))
}

// SearchTrending runs a single view-count ranked cascade over tags.
func (s *Service) SearchTrending(ctx context.Context, tags []domain.Tag, lang string, maxResults int, opts ...RequestOption) (domain.RecipeResponse, error) {
	request := domain.NewSearchRequest(domain.SearchModeTrending, tags, nil, lang, maxResults)
	applyRequestOptions(&request, opts)
	return s.Search(ctx, request)
}

func (s *Service) selectionRequest(tags, tools []domain.Tag, lang string, opts []RequestOption) domain.SearchRequest {
	request := domain.NewSearchRequest(domain.SearchModeSelection, tags, tools, lang, s.policy.SelectionLimit)
	applyRequestOptions(&request, opts)
	return request
}

func applyRequestOptions(request *domain.SearchRequest, opts []RequestOption) {
	for _, opt := range opts {
		if opt != nil {
			opt(request)
		}
	}
}

// Gacha draws a few random tags from the gacha pool and searches trending
// videos for them. Draws are never cached.
func (s *Service) Gacha(ctx context.Context, lang string, servings int) (domain.RecipeResponse, error) {
	if servings <= 0 {
		servings = defaultGachaServings
	}
	request := domain.NewSearchRequest(domain.SearchModeTrending, s.drawGachaTags(), nil, lang, servings)
	request.NoCache = true
	return s.Search(ctx, request)
}

func (s *Service) drawGachaTags() []domain.Tag {
	pool := s.vocab.GachaPool()
	if len(pool) == 0 {
		return nil
	}

	s.randMu.Lock()
	defer s.randMu.Unlock()

	count := minGachaTags + s.rand.IntN(maxGachaTags-minGachaTags+1)
	if count > len(pool) {
		count = len(pool)
	}
	s.rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:count]
}

func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.RecipeResponse, error) {
	prepared, err := s.prepareSearch(request)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	if s.cacheDisabled || prepared.request.NoCache {
		return s.executePreparedSearch(ctx, prepared, nil)
	}

	startedAt := time.Now()
	cacheKey := buildRecipeCacheKey(prepared)

	if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
		s.markPopular(cacheKey, prepared.request, startedAt)
		if needsRefresh {
			s.refreshCacheAsync(cacheKey, prepared)
		}
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	response, err := s.executePreparedSearch(ctx, prepared, nil)
	if err != nil {
		return domain.RecipeResponse{}, err
	}
	s.cacheStore(cacheKey, response, time.Now())
	s.markPopular(cacheKey, prepared.request, time.Now())
	return response, nil
}

func (s *Service) searchNoCache(ctx context.Context, request domain.SearchRequest) (domain.RecipeResponse, error) {
	prepared, err := s.prepareSearch(request)
	if err != nil {
		return domain.RecipeResponse{}, err
	}

	response, err := s.executePreparedSearch(ctx, prepared, nil)
	if err != nil {
		return domain.RecipeResponse{}, err
	}
	cacheKey := buildRecipeCacheKey(prepared)
	if !s.cacheStore(cacheKey, response, time.Now()) {
		s.cacheClearRefreshing(cacheKey)
	}
	return response, nil
}

func (s *Service) refreshCacheAsync(cacheKey string, prepared preparedSearch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout+2*time.Second)
		defer cancel()
		response, err := s.executePreparedSearch(ctx, prepared, nil)
		if err != nil {
			s.cacheClearRefreshing(cacheKey)
			return
		}
		if !s.cacheStore(cacheKey, response, time.Now()) {
			s.cacheClearRefreshing(cacheKey)
		}
	}()
}

func (s *Service) prepareSearch(request domain.SearchRequest) (preparedSearch, error) {
	if s.client == nil || s.vocab == nil {
		return preparedSearch{}, ErrInvalidConfiguration
	}

	mode := domain.NormalizeMode(string(request.Mode))
	lang, _ := s.vocab.ResolveLanguage(request.Language)
	normalized := domain.SearchRequest{
		Tags:         domain.NormalizeTags(request.Tags),
		Tools:        domain.NormalizeTags(request.Tools),
		Language:     lang,
		Mode:         mode,
		DesiredCount: request.DesiredCount,
		NoCache:      request.NoCache,
	}

	total := len(normalized.Tags) + len(normalized.Tools)
	if total == 0 {
		return preparedSearch{}, fmt.Errorf("%w: at least one tag or tool is required", ErrInvalidQuery)
	}
	if total > maxRequestTags {
		return preparedSearch{}, fmt.Errorf("%w: at most %d tags and tools are allowed", ErrInvalidQuery, maxRequestTags)
	}

	if mode == domain.SearchModeSelection && normalized.DesiredCount <= 0 {
		normalized.DesiredCount = s.policy.SelectionLimit
	}
	if normalized.DesiredCount < 1 || normalized.DesiredCount > s.policy.MaxRawResults {
		return preparedSearch{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidCount, s.policy.MaxRawResults)
	}

	prepared := preparedSearch{
		request: normalized,
		limit:   normalized.DesiredCount,
	}

	if mode == domain.SearchModeSelection {
		combinations, _ := ExpandCombinations(s.vocab, normalized.Tags)
		if len(combinations) > 0 {
			quota := s.policy.CombinationQuota(len(combinations))
			prepared.combinations = len(combinations)
			prepared.tasks = make([]searchTask, 0, len(combinations))
			for _, combination := range combinations {
				tags := combination.Tags()
				prepared.tasks = append(prepared.tasks, searchTask{
					tags:       tags,
					query:      ComposeQuery(s.vocab, tags, normalized.Tools, lang),
					maxResults: quota,
				})
			}
			return prepared, nil
		}
	}

	prepared.tasks = []searchTask{{
		tags:       normalized.Tags,
		query:      ComposeQuery(s.vocab, normalized.Tags, normalized.Tools, lang),
		maxResults: normalized.DesiredCount,
	}}
	return prepared, nil
}

// executePreparedSearch runs every task's cascade concurrently and merges the
// survivors. A failed task never cancels its siblings. onUpdate, when set,
// receives the running ranking after each task finishes.
func (s *Service) executePreparedSearch(ctx context.Context, prepared preparedSearch, onUpdate func(domain.RecipeResponse)) (domain.RecipeResponse, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	mode := prepared.request.Mode
	lang := prepared.request.Language
	startedAt := time.Now()
	statuses := make([]domain.TaskStatus, len(prepared.tasks))
	for i, task := range prepared.tasks {
		statuses[i] = domain.TaskStatus{Query: task.query, Tags: task.tags}
	}
	metrics.CombinationsPerRequest.WithLabelValues(string(mode)).Observe(float64(len(prepared.tasks)))

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		candidates []domain.CandidateVideo
		failures   []error
	)
	var sem *semaphore.Weighted
	if s.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(s.maxConcurrency))
	}

	for i, task := range prepared.tasks {
		wg.Add(1)
		go func(index int, task searchTask) {
			defer wg.Done()

			var (
				result cascadeResult
				err    error
				ran    bool
			)
			if sem != nil {
				if err = sem.Acquire(runCtx, 1); err == nil {
					defer sem.Release(1)
				}
			}
			if err == nil {
				ran = true
				result, err = s.runCascade(runCtx, mode, task.query, lang, task.maxResults)
			}

			status := domain.TaskStatus{
				Query: task.query,
				Tags:  task.tags,
				OK:    err == nil,
			}
			if ran {
				status.Stage = result.Stage.String()
				status.Path = result.pathNames()
			}
			if err != nil {
				status.Error = err.Error()
				s.logger.Warn("search task failed",
					slog.String("query", task.query),
					slog.String("stage", status.Stage),
					slog.String("error", err.Error()),
				)
			} else {
				status.Count = len(result.Videos)
			}

			mu.Lock()
			statuses[index] = status
			if err != nil {
				failures = append(failures, err)
			} else {
				candidates = append(candidates, result.Videos...)
			}
			var snapshot domain.RecipeResponse
			if onUpdate != nil {
				snapshot = s.buildSnapshot(prepared, candidates, statuses, startedAt)
			}
			mu.Unlock()

			if onUpdate != nil {
				onUpdate(snapshot)
			}
		}(i, task)
	}
	wg.Wait()

	response := s.buildSnapshot(prepared, candidates, statuses, startedAt)
	response.Final = true

	s.logger.Info("recipe search completed",
		slog.String("mode", string(mode)),
		slog.String("language", lang),
		slog.Int("tasks", len(prepared.tasks)),
		slog.Int("failed", len(failures)),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(response.Items)),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)

	if len(candidates) == 0 {
		for _, failure := range failures {
			if !IsTransient(failure) {
				return response, fmt.Errorf("every search task failed: %w", failure)
			}
		}
	}
	return response, nil
}

func (s *Service) buildSnapshot(
	prepared preparedSearch,
	candidates []domain.CandidateVideo,
	statuses []domain.TaskStatus,
	startedAt time.Time,
) domain.RecipeResponse {
	request := prepared.request
	statusesCopy := make([]domain.TaskStatus, len(statuses))
	copy(statusesCopy, statuses)

	return domain.RecipeResponse{
		Mode:         request.Mode,
		Language:     request.Language,
		Tags:         append([]domain.Tag(nil), request.Tags...),
		Tools:        append([]domain.Tag(nil), request.Tools...),
		Metric:       request.Mode.Metric(),
		Items:        Merge(candidates, request.Mode.Metric(), prepared.limit),
		Tasks:        statusesCopy,
		Combinations: prepared.combinations,
		Limit:        prepared.limit,
		ElapsedMS:    time.Since(startedAt).Milliseconds(),
	}
}

// SearchStream emits a bootstrap snapshot, one update per finished task and a
// final response. Validation failures produce a single final response with
// Error set.
func (s *Service) SearchStream(ctx context.Context, request domain.SearchRequest) <-chan domain.RecipeResponse {
	ch := make(chan domain.RecipeResponse, 8)

	prepared, err := s.prepareSearch(request)
	if err != nil {
		ch <- domain.RecipeResponse{
			Mode:  domain.NormalizeMode(string(request.Mode)),
			Phase: "done",
			Final: true,
			Error: err.Error(),
		}
		close(ch)
		return ch
	}

	if !s.cacheDisabled && !prepared.request.NoCache {
		startedAt := time.Now()
		cacheKey := buildRecipeCacheKey(prepared)
		if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
			s.markPopular(cacheKey, prepared.request, startedAt)
			if needsRefresh {
				s.refreshCacheAsync(cacheKey, prepared)
			}
			cached.ElapsedMS = time.Since(startedAt).Milliseconds()
			cached.Phase = "done"
			cached.Final = true
			ch <- cached
			close(ch)
			return ch
		}
	}

	go s.executeStreamSearch(ctx, prepared, ch)
	return ch
}

func (s *Service) executeStreamSearch(ctx context.Context, prepared preparedSearch, ch chan<- domain.RecipeResponse) {
	defer close(ch)

	send := func(response domain.RecipeResponse) {
		select {
		case ch <- response:
		case <-ctx.Done():
		}
	}

	bootstrap := s.buildSnapshot(prepared, nil, nil, time.Now())
	bootstrap.Tasks = make([]domain.TaskStatus, 0, len(prepared.tasks))
	for _, task := range prepared.tasks {
		bootstrap.Tasks = append(bootstrap.Tasks, domain.TaskStatus{Query: task.query, Tags: task.tags})
	}
	bootstrap.Phase = "bootstrap"
	send(bootstrap)

	final, err := s.executePreparedSearch(ctx, prepared, func(snapshot domain.RecipeResponse) {
		snapshot.Phase = "update"
		send(snapshot)
	})
	final.Phase = "done"
	final.Final = true
	if err != nil {
		final.Error = err.Error()
	} else if !s.cacheDisabled && !prepared.request.NoCache {
		cacheKey := buildRecipeCacheKey(prepared)
		s.cacheStore(cacheKey, final, time.Now())
		s.markPopular(cacheKey, prepared.request, time.Now())
	}
	send(final)
}
