package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apihttp "componentsearch/searchservice/internal/api/http"
	"componentsearch/searchservice/internal/app"
	"componentsearch/searchservice/internal/catalog"
	"componentsearch/searchservice/internal/currency"
	"componentsearch/searchservice/internal/metrics"
	"componentsearch/searchservice/internal/providers/chipdip"
	"componentsearch/searchservice/internal/providers/common"
	"componentsearch/searchservice/internal/providers/digikey"
	"componentsearch/searchservice/internal/providers/farnell"
	"componentsearch/searchservice/internal/providers/mouser"
	"componentsearch/searchservice/internal/providers/tme"
	"componentsearch/searchservice/internal/search"
	"componentsearch/searchservice/internal/telemetry"
)

const serviceName = "component-search"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, "")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	providerCfg := cfg.ProviderConfig()
	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("providerTimeout", cfg.ProviderTimeout),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Int("resultLimit", cfg.ResultLimit),
		slog.String("providers", providerCfg.Fingerprint()),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasCatalog", strings.TrimSpace(cfg.CatalogPath) != ""),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(rootCtx, cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	rates := currency.NewTable()
	refresher := buildRefresher(cfg, rates, redisClient, logger)
	refresher.Restore(rootCtx)
	go refresher.Run(rootCtx)

	orchestratorOpts := []search.Option{
		search.WithRateConverter(rates),
		search.WithProviderTimeout(cfg.ProviderTimeout),
		search.WithConcurrency(cfg.Concurrency),
		search.WithResultLimit(cfg.ResultLimit),
		search.WithLogger(logger),
	}
	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithRates(rates),
	}
	if store := openCatalog(cfg.CatalogPath, logger); store != nil {
		defer store.Close()
		orchestratorOpts = append(orchestratorOpts, search.WithCatalog(store))
		serverOpts = append(serverOpts, apihttp.WithCatalog(store))
	}

	orchestrator := search.NewOrchestrator(buildProviders(cfg, logger), orchestratorOpts...)
	searchService := search.NewService(orchestrator, providerCfg, buildServiceOptions(cfg, redisClient, logger)...)
	searchService.StartBackground(rootCtx)

	handler := apihttp.NewServer(searchService, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Zero unless configured: /search/stream holds the connection for a whole run.
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("component search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("providerTimeout", cfg.ProviderTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("component search service stopped")
}

func buildProviders(cfg app.Config, logger *slog.Logger) []search.Provider {
	// The HTTP client timeout backs up the per-task deadline.
	httpClient := common.NewHTTPClient(cfg.ProviderTimeout + 2*time.Second)
	return []search.Provider{
		mouser.NewProvider(mouser.Config{
			HTTPClient: httpClient,
			UserAgent:  cfg.UserAgent,
		}),
		digikey.NewProvider(digikey.Config{
			Endpoint:   cfg.DigiKeyAPIBase,
			HTTPClient: httpClient,
			UserAgent:  cfg.UserAgent,
		}),
		tme.NewProvider(tme.Config{
			Country:    cfg.TMECountry,
			HTTPClient: httpClient,
			UserAgent:  cfg.UserAgent,
			Logger:     logger,
		}),
		farnell.NewProvider(farnell.Config{
			HTTPClient: httpClient,
			UserAgent:  cfg.UserAgent,
		}),
		chipdip.NewProvider(chipdip.Config{
			Endpoint:   cfg.ChipDipEndpoint,
			HTTPClient: httpClient,
			UserAgent:  cfg.UserAgent,
		}),
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func connectRedis(ctx context.Context, redisURL string, logger *slog.Logger) *redis.Client {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory state only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory state only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildServiceOptions(cfg app.Config, redisClient *redis.Client, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{search.WithServiceLogger(logger)}

	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
		return opts
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}
	if redisClient != nil {
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}
	return opts
}

func buildRefresher(cfg app.Config, rates *currency.Table, redisClient *redis.Client, logger *slog.Logger) *currency.Refresher {
	fetcher := currency.NewCBRClient(common.NewHTTPClient(10*time.Second), cfg.CurrencyRatesURL)
	opts := []currency.RefresherOption{
		currency.WithRefreshInterval(cfg.CurrencyRefresh),
		currency.WithRefresherLogger(logger),
	}
	if redisClient != nil {
		opts = append(opts, currency.WithSnapshotStore(currency.NewRedisRateStore(redisClient, "")))
	}
	return currency.NewRefresher(rates, fetcher, opts...)
}

func openCatalog(path string, logger *slog.Logger) *catalog.Store {
	if strings.TrimSpace(path) == "" {
		logger.Info("manual catalog not configured")
		return nil
	}
	store, err := catalog.Open(path)
	if err != nil {
		logger.Warn("manual catalog disabled", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	logger.Info("manual catalog opened", slog.String("path", path))
	return store
}
