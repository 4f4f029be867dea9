package currency

import (
	"context"
	"log/slog"
	"time"

	"componentsearch/searchservice/internal/metrics"
)

const defaultRefreshInterval = 6 * time.Hour

type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, bool, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

type Refresher struct {
	table    *Table
	fetcher  Fetcher
	store    SnapshotStore
	interval time.Duration
	logger   *slog.Logger
}

type RefresherOption func(*Refresher)

func WithSnapshotStore(store SnapshotStore) RefresherOption {
	return func(r *Refresher) {
		r.store = store
	}
}

func WithRefreshInterval(interval time.Duration) RefresherOption {
	return func(r *Refresher) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

func WithRefresherLogger(logger *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRefresher(table *Table, fetcher Fetcher, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		table:    table,
		fetcher:  fetcher,
		interval: defaultRefreshInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore loads the persisted snapshot, if any, into the table.
func (r *Refresher) Restore(ctx context.Context) bool {
	if r.store == nil {
		return false
	}
	snapshot, ok, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn("currency snapshot load failed", slog.String("error", err.Error()))
		return false
	}
	if !ok {
		return false
	}
	r.table.Replace(snapshot)
	r.logger.Info("currency rates restored",
		slog.String("source", snapshot.Source),
		slog.Time("updatedAt", snapshot.UpdatedAt),
		slog.Int("currencies", len(snapshot.Rates)),
	)
	return true
}

// Refresh fetches a fresh snapshot. On failure the table keeps its current
// rates.
func (r *Refresher) Refresh(ctx context.Context) error {
	snapshot, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.logger.Warn("currency refresh failed", slog.String("error", err.Error()))
		return err
	}
	r.table.Replace(snapshot)
	metrics.CurrencyRatesUpdated.Set(float64(snapshot.UpdatedAt.Unix()))
	if r.store != nil {
		if err := r.store.Save(ctx, snapshot); err != nil {
			r.logger.Warn("currency snapshot save failed", slog.String("error", err.Error()))
		}
	}
	r.logger.Info("currency rates updated",
		slog.String("source", snapshot.Source),
		slog.Int("currencies", len(snapshot.Rates)),
	)
	return nil
}

// Run restores, refreshes once, then refreshes on every interval tick until
// ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.Restore(ctx)
	r.refreshWithTimeout(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshWithTimeout(ctx)
		}
	}
}

func (r *Refresher) refreshWithTimeout(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_ = r.Refresh(refreshCtx)
}
