package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"componentsearch/searchservice/internal/domain"
)

var ErrInvalidQuery = errors.New("invalid query")

// Provider is one upstream component source. Search returns the provider's
// raw payload; the payload's Normalize method is its row normalizer.
type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Configured(cfg domain.ProviderConfig) bool
	Search(ctx context.Context, query string, cfg domain.ProviderConfig) (domain.Payload, error)
}

// QueryReporter is implemented by payloads whose provider searched with a
// rewritten query (prefixes, keyword syntax).
type QueryReporter interface {
	UsedQuery() string
}

// Catalog is the curated local product list queried alongside providers.
type Catalog interface {
	Lookup(ctx context.Context, query string) ([]domain.CanonicalRow, error)
}

// TimeoutError is the cause attached to a provider task deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Provider timeout after %dms", e.Timeout.Milliseconds())
}

// PanicError is a recovered panic from a provider call or normalizer.
type PanicError struct {
	Stage string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Stage, e.Value)
}

const (
	stageFetch     = "provider call"
	stageNormalize = "normalizer"
)
