package search

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"homecook/videosearch/internal/domain"
)

// SearchClient is the remote video provider: a keyword search followed by a
// statistics lookup for the returned ids.
type SearchClient interface {
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.SearchHit, error)
	FetchDetails(ctx context.Context, ids []string) ([]domain.CandidateVideo, error)
}

// BreakerReporter is an optional interface for clients that guard calls with
// a circuit breaker and can report its state for diagnostics.
type BreakerReporter interface {
	Name() string
	BreakerState() string
}

// Vocabulary classifies tags and supplies localized query terms.
type Vocabulary interface {
	Classify(tag domain.Tag) domain.TagClass
	Localize(tag domain.Tag, lang string) string
	CookingKeywords(lang string) string
	ResolveLanguage(raw string) (string, bool)
	GachaPool() []domain.Tag
}

type Service struct {
	client         SearchClient
	vocab          Vocabulary
	policy         Policy
	timeout        time.Duration
	maxConcurrency int
	retry          RetryConfig
	logger         *slog.Logger
	randMu         sync.Mutex
	rand           *rand.Rand
	cacheDisabled  bool
	cacheMu        sync.RWMutex
	cache          map[string]*cachedRecipeResponse
	popular        map[string]*popularRequest
	warmerCfg      searchWarmerConfig
	warmerRun      atomic.Bool
	backend        CacheBackend
	healthMu       sync.Mutex
	health         map[string]*callHealth
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPolicy(policy Policy) ServiceOption {
	return func(s *Service) {
		s.policy = policy.withDefaults()
	}
}

// WithMaxConcurrency bounds how many combination tasks run at once. Zero
// leaves the fan-out unbounded.
func WithMaxConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.maxConcurrency = n
		}
	}
}

func WithRetry(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retry = cfg
	}
}

// WithRandom replaces the gacha tag source. Tests pass a seeded generator.
func WithRandom(r *rand.Rand) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.rand = r
		}
	}
}

func WithCacheBackend(backend CacheBackend) ServiceOption {
	return func(s *Service) {
		s.backend = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.warmerCfg.cacheTTL = ttl
			s.warmerCfg.staleTTL = ttl * 3
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func NewService(client SearchClient, vocab Vocabulary, timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	svc := &Service{
		client:         client,
		vocab:          vocab,
		policy:         DefaultPolicy(),
		timeout:        timeout,
		maxConcurrency: 8,
		retry:          RetryConfig{MaxAttempts: 1},
		logger:         slog.Default(),
		rand:           rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		cache:          make(map[string]*cachedRecipeResponse),
		popular:        make(map[string]*popularRequest),
		warmerCfg:      defaultSearchWarmerConfig(),
		health:         make(map[string]*callHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) StartBackground(ctx context.Context) {
	if s.warmerRun.CompareAndSwap(false, true) {
		go s.runWarmer(ctx)
	}
}

func (s *Service) Policy() Policy {
	return s.policy
}
