package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"componentsearch/searchservice/internal/domain"
)

// Service is the caller of the Orchestrator: it owns query validation, the
// read-through result cache and the cache warmer.
type Service struct {
	orchestrator  *Orchestrator
	cfg           domain.ProviderConfig
	timeout       time.Duration
	cacheDisabled bool
	cacheMu       sync.RWMutex
	cache         map[string]*cachedSearchResponse
	popular       map[string]*popularQuery
	warmerCfg     searchWarmerConfig
	warmerRun     atomic.Bool
	redisCache    *RedisCacheBackend
	logger        *slog.Logger
}

type ServiceOption func(*Service)

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
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

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(orchestrator *Orchestrator, cfg domain.ProviderConfig, opts ...ServiceOption) *Service {
	if orchestrator == nil {
		orchestrator = NewOrchestrator(nil)
	}
	svc := &Service{
		orchestrator: orchestrator,
		cfg:          cfg,
		timeout:      orchestrator.RunBudget(),
		cache:        make(map[string]*cachedSearchResponse),
		popular:      make(map[string]*popularQuery),
		warmerCfg:    defaultSearchWarmerConfig(),
		logger:       slog.Default(),
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

func (s *Service) Providers() []domain.ProviderInfo {
	return s.orchestrator.Providers(s.cfg)
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	return s.orchestrator.Diagnostics(s.cfg)
}

func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	query, err := prepareQuery(request.Query)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	if query == "" {
		return emptyResponse(), nil
	}

	if s.cacheDisabled || request.NoCache {
		return s.execute(ctx, query), nil
	}

	startedAt := time.Now()
	cacheKey := buildSearchCacheKey(query, s.cfg.Fingerprint())

	if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
		// Hits count towards popularity so the warmer keeps hot queries fresh.
		s.markPopular(cacheKey, query, startedAt)
		if needsRefresh {
			s.refreshCacheAsync(cacheKey, query)
		}
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		cached.Cached = true
		return cached, nil
	}

	response := s.execute(ctx, query)
	s.storeIfComplete(cacheKey, response, time.Now())
	s.markPopular(cacheKey, query, time.Now())
	return response, nil
}

// SearchStream emits a snapshot per settled provider and closes the channel
// after the final one. Cache hits produce a single final snapshot.
func (s *Service) SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchResponse, error) {
	query, err := prepareQuery(request.Query)
	if err != nil {
		return nil, err
	}
	ch := make(chan domain.SearchResponse, 8)

	if query == "" {
		ch <- emptyResponse()
		close(ch)
		return ch, nil
	}

	cacheKey := buildSearchCacheKey(query, s.cfg.Fingerprint())
	if !s.cacheDisabled && !request.NoCache {
		startedAt := time.Now()
		if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
			s.markPopular(cacheKey, query, startedAt)
			if needsRefresh {
				s.refreshCacheAsync(cacheKey, query)
			}
			cached.ElapsedMS = time.Since(startedAt).Milliseconds()
			cached.Cached = true
			cached.Phase = PhaseDone
			cached.Final = true
			ch <- cached
			close(ch)
			return ch, nil
		}
	}

	go s.executeStream(ctx, query, cacheKey, ch)
	return ch, nil
}

func (s *Service) executeStream(ctx context.Context, query, cacheKey string, ch chan<- domain.SearchResponse) {
	defer close(ch)

	startedAt := time.Now()
	var final domain.SearchResponse
	s.orchestrator.Stream(ctx, query, s.cfg, func(update StreamUpdate) {
		snapshot := buildResponse(query, update.Result, startedAt)
		snapshot.Phase = update.Phase
		snapshot.Provider = update.Provider
		snapshot.Final = update.Phase == PhaseDone
		if snapshot.Final {
			final = snapshot
		}
		select {
		case ch <- snapshot:
		case <-ctx.Done():
		}
	})

	s.storeIfComplete(cacheKey, final, time.Now())
	s.markPopular(cacheKey, query, time.Now())
}

func (s *Service) execute(ctx context.Context, query string) domain.SearchResponse {
	startedAt := time.Now()
	result := s.orchestrator.Orchestrate(ctx, query, s.cfg)
	return buildResponse(query, result, startedAt)
}

func (s *Service) searchNoCache(ctx context.Context, query string) domain.SearchResponse {
	response := s.execute(ctx, query)
	s.storeIfComplete(buildSearchCacheKey(query, s.cfg.Fingerprint()), response, time.Now())
	return response
}

func (s *Service) refreshCacheAsync(cacheKey, query string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		response := s.execute(ctx, query)
		s.storeIfComplete(cacheKey, response, time.Now())
	}()
}

// storeIfComplete caches only results where every provider answered, so a
// transient provider failure is not served for a whole TTL.
func (s *Service) storeIfComplete(cacheKey string, response domain.SearchResponse, now time.Time) {
	if s.cacheDisabled {
		return
	}
	for _, summary := range response.Providers {
		if summary.Status != domain.OutcomeOK {
			s.logger.Debug("search result not cached",
				slog.String("query", response.Query),
				slog.String("provider", summary.Provider),
				slog.String("reason", summary.Message),
			)
			s.cacheClearRefreshing(cacheKey)
			return
		}
	}
	s.cacheStore(cacheKey, response, now)
}

func prepareQuery(raw string) (string, error) {
	query := NormalizeQuery(raw)
	if utf8.RuneCountInString(query) > maxQueryRunes {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidQuery, maxQueryRunes)
	}
	return query, nil
}

func buildResponse(query string, result domain.OrchestrationResult, startedAt time.Time) domain.SearchResponse {
	return domain.SearchResponse{
		Query:     query,
		Rows:      result.Rows,
		Providers: result.Providers,
		TotalRows: len(result.Rows),
		ElapsedMS: time.Since(startedAt).Milliseconds(),
		Phase:     PhaseDone,
		Final:     true,
	}
}

func emptyResponse() domain.SearchResponse {
	result := emptyResult()
	return domain.SearchResponse{
		Rows:      result.Rows,
		Providers: result.Providers,
		Phase:     PhaseDone,
		Final:     true,
	}
}
