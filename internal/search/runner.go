package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/metrics"
)

type fetchResult struct {
	payload domain.Payload
	err     error
}

// runTask executes one provider call under its own deadline and normalizes
// the payload. It never panics and never returns an error: every failure
// becomes an error outcome.
func (o *Orchestrator) runTask(ctx context.Context, provider Provider, query string, cfg domain.ProviderConfig, logger *slog.Logger) domain.ProviderOutcome {
	name := providerName(provider)
	startedAt := time.Now()

	ctx, span := o.tracer.Start(ctx, "provider.search", trace.WithAttributes(
		attribute.String("provider", name),
		attribute.String("query", query),
	))
	defer span.End()

	timeoutErr := &TimeoutError{Timeout: o.timeout}
	runCtx, cancel := context.WithTimeoutCause(ctx, o.timeout, timeoutErr)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- fetchResult{err: &PanicError{Stage: stageFetch, Value: recovered}}
			}
		}()
		payload, err := provider.Search(runCtx, query, cfg)
		done <- fetchResult{payload: payload, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-runCtx.Done():
		res.err = context.Cause(runCtx)
	}
	if res.err != nil && runCtx.Err() != nil && errors.Is(context.Cause(runCtx), timeoutErr) {
		res.err = timeoutErr
	}

	var rows []domain.CanonicalRow
	if res.err == nil {
		rows, res.err = o.normalize(res.payload)
	}
	elapsed := time.Since(startedAt)
	outcome := domain.ProviderOutcome{Meta: domain.OutcomeMeta{ElapsedMS: elapsed.Milliseconds()}}

	status := "ok"
	if res.err != nil {
		outcome.Status = domain.OutcomeError
		outcome.Message = res.err.Error()
		status = failureKind(res.err, timeoutErr)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, outcome.Message)

		attrs := []any{
			slog.String("provider", name),
			slog.String("kind", status),
			slog.Int64("elapsedMs", elapsed.Milliseconds()),
			slog.String("error", outcome.Message),
		}
		var panicErr *PanicError
		if errors.As(res.err, &panicErr) && panicErr.Stage == stageNormalize {
			logger.Error("normalizer crashed", attrs...)
		} else {
			logger.Warn("provider failed", attrs...)
		}
	} else {
		rows = sealRows(rows, name)
		outcome.Status = domain.OutcomeOK
		outcome.Rows = rows
		outcome.Meta.TotalRows = len(rows)
		outcome.Meta.UsedQuery = query
		if reporter, ok := res.payload.(QueryReporter); ok {
			if used := strings.TrimSpace(reporter.UsedQuery()); used != "" {
				outcome.Meta.UsedQuery = used
			}
		}
		metrics.ProviderRows.WithLabelValues(name).Observe(float64(len(rows)))
		logger.Debug("provider completed",
			slog.String("provider", name),
			slog.Int("rows", len(rows)),
			slog.Int64("elapsedMs", elapsed.Milliseconds()),
		)
	}

	span.SetAttributes(attribute.String("status", status), attribute.Int("rows", len(outcome.Rows)))
	metrics.ProviderRequestsTotal.WithLabelValues(name, status).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	o.health.record(name, query, status, res.err, elapsed, len(outcome.Rows), time.Now())
	return outcome
}

func (o *Orchestrator) normalize(payload domain.Payload) (rows []domain.CanonicalRow, err error) {
	if payload == nil {
		return []domain.CanonicalRow{}, nil
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			rows = nil
			err = &PanicError{Stage: stageNormalize, Value: recovered}
		}
	}()
	return payload.Normalize(o.conv), nil
}

// sealRows drops rows without an mpn, stamps the provider name on rows that
// left source empty and keeps one row per mpn for this provider.
func sealRows(rows []domain.CanonicalRow, source string) []domain.CanonicalRow {
	out := make([]domain.CanonicalRow, 0, len(rows))
	for _, row := range rows {
		row.MPN = strings.TrimSpace(row.MPN)
		if row.MPN == "" {
			continue
		}
		if strings.TrimSpace(row.Source) == "" {
			row.Source = source
		}
		if row.Regions == nil {
			row.Regions = []domain.Region{}
		}
		out = append(out, row)
	}
	return Dedupe(out)
}

func failureKind(err, timeoutErr error) string {
	var panicErr *PanicError
	switch {
	case errors.Is(err, timeoutErr):
		return "timeout"
	case errors.As(err, &panicErr):
		return "panic"
	default:
		return "error"
	}
}
