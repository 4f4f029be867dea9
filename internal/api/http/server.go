package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"componentsearch/searchservice/internal/catalog"
	"componentsearch/searchservice/internal/currency"
	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchResponse, error)
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

// CacheInvalidator is implemented by search services that cache results.
// Catalog edits invalidate those results.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

type CatalogService interface {
	Get(ctx context.Context, mpn string) (catalog.Product, error)
	Upsert(ctx context.Context, p catalog.Product) error
	Deactivate(ctx context.Context, mpn string) error
}

type RatesSource interface {
	Snapshot() currency.Snapshot
}

type Server struct {
	search    SearchService
	catalog   CatalogService
	rates     RatesSource
	logger    *slog.Logger
	rateLimit float64
	rateBurst int
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithCatalog(store CatalogService) ServerOption {
	return func(s *Server) {
		s.catalog = store
	}
}

func WithRates(rates RatesSource) ServerOption {
	return func(s *Server) {
		s.rates = rates
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateLimit = rps
			s.rateBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		logger:    slog.Default(),
		rateLimit: 50,
		rateBurst: 100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/providers", s.handleProviders)
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/search/stream", s.handleSearchStream)
	mux.HandleFunc("/search/rates", s.handleRates)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/catalog/products", s.handleCatalogProducts)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "component-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateLimit, s.rateBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	request := parseSearchRequest(r)
	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(request.Query, 80)),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, search.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}

	failedProviders := failedProviderNames(response.Providers)
	s.logger.Info("search completed",
		slog.String("query", truncate(response.Query, 80)),
		slog.Int("totalRows", response.TotalRows),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Bool("cached", response.Cached),
		slog.Int("failedProviders", len(failedProviders)),
	)
	if len(failedProviders) > 0 {
		s.logger.Warn("search providers partially failed",
			slog.String("query", truncate(response.Query, 80)),
			slog.Any("failedProviders", failedProviders),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/stream" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}

	request := parseSearchRequest(r)
	ch, err := s.search.SearchStream(r.Context(), request)
	if err != nil {
		if errors.Is(err, search.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for response := range ch {
		select {
		case <-r.Context().Done():
			return // Client disconnected
		default:
		}
		event := response.Phase
		if event == "" {
			event = search.PhaseUpdate
		}
		if err := writeSSEEvent(w, flusher, event, response); err != nil {
			return // Client disconnected
		}
	}
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.search.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ProviderDiagnostics(),
	})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/rates" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rates == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "currency rates are not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.rates.Snapshot())
}

func (s *Server) handleCatalogProducts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/catalog/products" {
		http.NotFound(w, r)
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "manual catalog is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		mpn := strings.TrimSpace(r.URL.Query().Get("mpn"))
		if mpn == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "mpn is required")
			return
		}
		product, err := s.catalog.Get(r.Context(), mpn)
		if err != nil {
			s.writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPut:
		var product catalog.Product
		if err := decodeJSONBody(r, &product); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if strings.TrimSpace(product.MPN) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "mpn is required")
			return
		}
		if err := s.catalog.Upsert(r.Context(), product); err != nil {
			s.writeCatalogError(w, err)
			return
		}
		s.invalidateSearchCache(r.Context())
		stored, err := s.catalog.Get(r.Context(), product.MPN)
		if err != nil {
			s.writeCatalogError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stored)
	case http.MethodDelete:
		mpn := strings.TrimSpace(r.URL.Query().Get("mpn"))
		if mpn == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "mpn is required")
			return
		}
		if err := s.catalog.Deactivate(r.Context(), mpn); err != nil {
			s.writeCatalogError(w, err)
			return
		}
		s.invalidateSearchCache(r.Context())
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) invalidateSearchCache(ctx context.Context) {
	if invalidator, ok := s.search.(CacheInvalidator); ok {
		invalidator.InvalidateCache(ctx)
	}
}

func (s *Server) writeCatalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.logger.Error("catalog request failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal_error", "catalog request failed")
}

func parseSearchRequest(r *http.Request) domain.SearchRequest {
	q := r.URL.Query()
	return domain.SearchRequest{
		Query:   q.Get("q"),
		NoCache: parseOptionalBool(q.Get("nocache")) || parseOptionalBool(q.Get("noCache")),
	}
}

func failedProviderNames(summaries []domain.ProviderSummary) []string {
	failed := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		if summary.Status != domain.OutcomeOK {
			failed = append(failed, summary.Provider)
		}
	}
	return failed
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
