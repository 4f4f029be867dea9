package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/metrics"
)

const (
	DefaultProviderTimeout = 9500 * time.Millisecond
	DefaultResultLimit     = 60
	manualProvider         = "manual"
	runBudgetHeadroom      = 2 * time.Second
	tracerName             = "componentsearch/searchservice/internal/search"
)

// Orchestrator fans a query out to the configured providers, merges their
// rows with the curated catalog and returns one ranked list.
type Orchestrator struct {
	providers   []Provider
	catalog     Catalog
	conv        domain.RateConverter
	timeout     time.Duration
	concurrency int
	limit       int
	logger      *slog.Logger
	tracer      trace.Tracer
	health      *healthTracker
}

type Option func(*Orchestrator)

func WithCatalog(catalog Catalog) Option {
	return func(o *Orchestrator) {
		o.catalog = catalog
	}
}

func WithRateConverter(conv domain.RateConverter) Option {
	return func(o *Orchestrator) {
		o.conv = conv
	}
}

func WithProviderTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

func WithConcurrency(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.concurrency = limit
		}
	}
}

func WithResultLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.limit = limit
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewOrchestrator(providers []Provider, opts ...Option) *Orchestrator {
	registered := make([]Provider, 0, len(providers))
	seen := make(map[string]struct{}, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := providerName(provider)
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		registered = append(registered, provider)
	}

	o := &Orchestrator{
		providers:   registered,
		timeout:     DefaultProviderTimeout,
		concurrency: defaultConcurrency,
		limit:       DefaultResultLimit,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		health:      newHealthTracker(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunBudget bounds a whole run: every scheduling wave may take a full
// provider timeout before the next one starts.
func (o *Orchestrator) RunBudget() time.Duration {
	concurrency := o.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	waves := (len(o.providers) + concurrency - 1) / concurrency
	if waves < 1 {
		waves = 1
	}
	return time.Duration(waves)*o.timeout + runBudgetHeadroom
}

// Orchestrate runs one search. It never fails: provider problems are
// reported in the summaries. An empty query returns an empty result without
// calling any provider.
func (o *Orchestrator) Orchestrate(ctx context.Context, query string, cfg domain.ProviderConfig) domain.OrchestrationResult {
	return o.run(ctx, query, cfg, nil)
}

type runState struct {
	query        string
	logger       *slog.Logger
	startedAt    time.Time
	manualRows   []domain.CanonicalRow
	manualStatus *domain.ProviderSummary
}

// progressFunc observes a run: once with index -1 before any provider
// settles, then once per settled provider. Calls are serialized.
type progressFunc func(state runState, index int, settled []Settled, done []bool)

func (o *Orchestrator) run(ctx context.Context, query string, cfg domain.ProviderConfig, observer progressFunc) domain.OrchestrationResult {
	q := NormalizeQuery(query)
	if q == "" {
		return emptyResult()
	}

	state := runState{
		query:     q,
		logger:    o.logger.With(slog.String("runId", uuid.NewString()), slog.String("query", q)),
		startedAt: time.Now(),
	}
	tasks := o.buildTasks(q, cfg, state.logger)
	state.manualRows, state.manualStatus = o.lookupCatalog(ctx, q, state.logger)
	state.logger.Info("search started", slog.Int("providers", len(tasks)))

	var onSettle func(int, Settled)
	if observer != nil {
		settled := make([]Settled, len(tasks))
		done := make([]bool, len(tasks))
		for i, task := range tasks {
			settled[i].Provider = task.Provider
		}
		observer(state, -1, settled, done)
		var mu sync.Mutex
		onSettle = func(index int, s Settled) {
			mu.Lock()
			defer mu.Unlock()
			settled[index] = s
			done[index] = true
			observer(state, index, settled, done)
		}
	}

	results := Schedule(ctx, tasks, o.concurrency, onSettle)
	all := make([]bool, len(results))
	for i := range all {
		all[i] = true
	}
	result, collapsed := o.assemble(state, results, all)
	metrics.DedupCollapsedTotal.Add(float64(collapsed))

	elapsed := time.Since(state.startedAt)
	metrics.OrchestrationDuration.Observe(elapsed.Seconds())
	failed := 0
	for _, summary := range result.Providers {
		if summary.Status != domain.OutcomeOK {
			failed++
		}
	}
	state.logger.Info("search completed",
		slog.Int("rows", len(result.Rows)),
		slog.Int("providers", len(result.Providers)),
		slog.Int("failed", failed),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return result
}

func (o *Orchestrator) buildTasks(query string, cfg domain.ProviderConfig, logger *slog.Logger) []Task {
	tasks := make([]Task, 0, len(o.providers))
	for _, provider := range o.providers {
		if !provider.Configured(cfg) {
			continue
		}
		current := provider
		tasks = append(tasks, Task{
			Provider: providerName(current),
			Run: func(ctx context.Context) domain.ProviderOutcome {
				return o.runTask(ctx, current, query, cfg, logger)
			},
		})
	}
	return tasks
}

func (o *Orchestrator) lookupCatalog(ctx context.Context, query string, logger *slog.Logger) ([]domain.CanonicalRow, *domain.ProviderSummary) {
	if o.catalog == nil {
		return nil, nil
	}
	startedAt := time.Now()
	rows, err := o.catalog.Lookup(ctx, query)
	elapsed := time.Since(startedAt).Milliseconds()
	if err != nil {
		logger.Warn("catalog lookup failed", slog.String("error", err.Error()))
		return nil, &domain.ProviderSummary{
			Provider:  manualProvider,
			Status:    domain.OutcomeError,
			ElapsedMS: &elapsed,
			Message:   err.Error(),
		}
	}
	rows = sealRows(rows, manualProvider)
	if len(rows) == 0 {
		return nil, nil
	}
	total := len(rows)
	return rows, &domain.ProviderSummary{
		Provider:  manualProvider,
		Status:    domain.OutcomeOK,
		Total:     &total,
		ElapsedMS: &elapsed,
		UsedQuery: query,
	}
}

// assemble builds the result from the settled outcomes marked in include and
// reports how many rows the deduplicator collapsed.
func (o *Orchestrator) assemble(state runState, settled []Settled, include []bool) (domain.OrchestrationResult, int) {
	summaries := make([]domain.ProviderSummary, 0, len(settled)+1)
	rows := make([]domain.CanonicalRow, 0, len(state.manualRows))
	if state.manualStatus != nil {
		summaries = append(summaries, *state.manualStatus)
	}
	rows = append(rows, state.manualRows...)

	for i, s := range settled {
		if !include[i] {
			continue
		}
		summaries = append(summaries, summarize(s))
		if s.Outcome.OK() {
			rows = append(rows, s.Outcome.Rows...)
		}
	}

	deduped := Dedupe(rows)
	ranked := Rank(deduped, state.query)
	if o.limit > 0 && len(ranked) > o.limit {
		ranked = ranked[:o.limit]
	}
	for i := range ranked {
		ranked[i] = ranked[i].Clone()
	}
	return domain.OrchestrationResult{Rows: ranked, Providers: summaries}, len(rows) - len(deduped)
}

func summarize(s Settled) domain.ProviderSummary {
	elapsed := s.Outcome.Meta.ElapsedMS
	summary := domain.ProviderSummary{
		Provider:  s.Provider,
		Status:    s.Outcome.Status,
		ElapsedMS: &elapsed,
	}
	if s.Outcome.OK() {
		total := s.Outcome.Meta.TotalRows
		summary.Total = &total
		summary.UsedQuery = s.Outcome.Meta.UsedQuery
		return summary
	}
	summary.Status = domain.OutcomeError
	summary.Message = s.Outcome.Message
	return summary
}

// Providers lists registered providers with their enabled state under cfg.
func (o *Orchestrator) Providers(cfg domain.ProviderConfig) []domain.ProviderInfo {
	items := make([]domain.ProviderInfo, 0, len(o.providers))
	for _, provider := range o.providers {
		info := provider.Info()
		info.Name = providerName(provider)
		if info.Label == "" {
			info.Label = info.Name
		}
		info.Enabled = provider.Configured(cfg)
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (o *Orchestrator) Diagnostics(cfg domain.ProviderConfig) []domain.ProviderDiagnostics {
	return o.health.diagnostics(o.Providers(cfg))
}

func providerName(provider Provider) string {
	return strings.ToLower(strings.TrimSpace(provider.Name()))
}

func emptyResult() domain.OrchestrationResult {
	return domain.OrchestrationResult{
		Rows:      []domain.CanonicalRow{},
		Providers: []domain.ProviderSummary{},
	}
}
