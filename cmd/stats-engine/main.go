package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/respstack/respstats/internal/cache"
	"github.com/respstack/respstats/internal/config"
	"github.com/respstack/respstats/internal/derive"
	"github.com/respstack/respstats/internal/engine"
	"github.com/respstack/respstats/internal/geo"
	"github.com/respstack/respstats/internal/metrics"
	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/reconcile"
	"github.com/respstack/respstats/internal/services"
	"github.com/respstack/respstats/internal/sources"
	"github.com/respstack/respstats/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting stats-engine", slog.Int("sources", len(cfg.Sources)))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	errs := models.NewErrorLog()

	groups, err := buildGroups(cfg, logger)
	if err != nil {
		logger.Error("failed to build sources", slog.Any("error", err))
		os.Exit(1)
	}

	enricher, err := buildEnricher(cfg, logger)
	if err != nil {
		logger.Error("failed to build geo enricher", slog.Any("error", err))
		os.Exit(1)
	}

	hook, err := engine.NewScriptHook(cfg.Script.Path, logger)
	if err != nil {
		logger.Error("failed to load script", slog.String("path", cfg.Script.Path), slog.Any("error", err))
		os.Exit(1)
	}

	pack, err := engine.NewReportPack(cfg.Reports.Path, logger)
	if err != nil {
		logger.Error("failed to load report pack", slog.String("path", cfg.Reports.Path), slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(logger, groups, derive.NewEngine(logger, errs), enricher, hook, errs)
	if start, end, ok, err := cfg.Pipeline.Window(); err != nil {
		logger.Error("invalid load window", slog.Any("error", err))
		os.Exit(1)
	} else if ok {
		pipeline.SetWindow(start, end)
	}
	pipeline.SetProgress(func(ev engine.Progress) {
		logger.Info("progress",
			slog.String("stage", ev.Stage),
			slog.Int("processed", ev.Processed),
			slog.Int("total", ev.Total),
		)
	}, cfg.Pipeline.ProgressInterval)

	service := services.NewStatsService(logger, pipeline, pack)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Metrics.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Metrics.Address))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
			}
		}()
	}

	out, runErr := service.Run(ctx)
	if runErr != nil {
		logger.Error("run failed", slog.Any("error", runErr))
	} else {
		printOutput(out)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Metrics.GracefulTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}

	logger.Info("stats-engine stopped")
	if runErr != nil {
		os.Exit(1)
	}
}

func buildGroups(cfg *config.Config, logger *slog.Logger) ([]reconcile.SourceMappings, error) {
	groups := make([]reconcile.SourceMappings, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		var src sources.Source
		switch sc.Type {
		case "csv":
			src = sources.NewCSVSource(sc.Name, sc.Path, sc.IDColumn, sc.ResponseIDColumn, sc.TimeColumn, ',', logger)
		case "http":
			src = sources.NewHTTPSource(sc.Name, sc.URL, sc.IDColumn, sc.ResponseIDColumn, sc.TimeColumn, sc.Timeout, logger)
		default:
			return nil, fmt.Errorf("source %s: unknown type %q", sc.Name, sc.Type)
		}

		mappings := make([]reconcile.FieldMapping, 0, len(sc.Mappings))
		for _, mc := range sc.Mappings {
			kind, err := mappingKind(mc.Kind)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", sc.Name, err)
			}
			mappings = append(mappings, reconcile.FieldMapping{Field: mc.Field, Column: mc.Column, Kind: kind})
		}
		groups = append(groups, reconcile.SourceMappings{Source: src, Mappings: mappings})
	}
	return groups, nil
}

func mappingKind(s string) (reconcile.MappingKind, error) {
	switch strings.ToLower(s) {
	case "", "incident_field":
		return reconcile.IncidentField, nil
	case "incident_attr":
		return reconcile.IncidentAttr, nil
	case "response_attr":
		return reconcile.ResponseAttr, nil
	case "benchmark":
		return reconcile.Benchmark, nil
	default:
		return 0, fmt.Errorf("unknown mapping kind %q", s)
	}
}

func buildEnricher(cfg *config.Config, logger *slog.Logger) (*geo.Enricher, error) {
	if cfg.Geo.RegionsPath == "" {
		return nil, nil
	}
	regions, err := geo.LoadRegionSource(cfg.Geo.RegionsPath)
	if err != nil {
		return nil, err
	}

	mappings := make([]geo.AttributeMapping, 0, len(cfg.Geo.Mappings))
	for _, mc := range cfg.Geo.Mappings {
		target, err := geoTarget(mc.Target)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, geo.AttributeMapping{Attribute: mc.Attribute, Target: target, Field: mc.Field})
	}

	lookupCache, err := buildGeoCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	return geo.NewEnricher(logger, []geo.Source{regions}, mappings, lookupCache, cfg.Pipeline.Workers), nil
}

func buildGeoCache(cfg *config.Config, logger *slog.Logger) (geo.Cache, error) {
	switch cfg.Geo.Cache {
	case "", "none":
		return geo.NoopCache{}, nil
	case "memory":
		return geo.NewMemoryCache(), nil
	case "valkey":
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Geo.Valkey.Addr,
			Username:     cfg.Geo.Valkey.Username,
			Password:     cfg.Geo.Valkey.Password,
			DB:           cfg.Geo.Valkey.DB,
			DialTimeout:  cfg.Geo.Valkey.DialTimeout,
			ReadTimeout:  cfg.Geo.Valkey.ReadTimeout,
			WriteTimeout: cfg.Geo.Valkey.WriteTimeout,
			MaxRetries:   cfg.Geo.Valkey.MaxRetries,
			TLS:          cfg.Geo.Valkey.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, continuing without it", slog.Any("error", err))
			return geo.NoopCache{}, nil
		}
		return geo.NewProviderCache(provider, cfg.Geo.CacheTTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown geo cache backend %q", cfg.Geo.Cache)
	}
}

func geoTarget(s string) (geo.TargetKind, error) {
	switch strings.ToLower(s) {
	case "", "incident":
		return geo.TargetIncident, nil
	case "responses":
		return geo.TargetResponses, nil
	case "timings":
		return geo.TargetTimings, nil
	default:
		return 0, fmt.Errorf("unknown geo target %q", s)
	}
}

func printOutput(out *services.RunOutput) {
	fmt.Printf("run %s: %d incidents from %d records (%d load errors)\n",
		out.Summary.RunID, out.Summary.Incidents, out.Summary.Records, len(out.Errors))

	for _, report := range out.Reports {
		fmt.Printf("\n%s (%s", report.Name, report.Measure)
		if report.Calculation != "" {
			fmt.Printf(" / %s", report.Calculation)
		}
		fmt.Println(")")
		for _, row := range report.Rows {
			keys := make([]string, len(row.Keys))
			for i, k := range row.Keys {
				keys[i] = k.String()
			}
			if row.Result.Reduced {
				fmt.Printf("  %-24s %10.2f  (n=%d)\n", strings.Join(keys, " / "), row.Result.Value, row.Count)
			} else {
				fmt.Printf("  %-24s %v\n", strings.Join(keys, " / "), row.Result.Values)
			}
		}
	}

	if len(out.Errors) > 0 {
		counts := make(map[string]int)
		for _, e := range out.Errors {
			counts[string(e.Kind)]++
		}
		fmt.Println("\nload errors:")
		for kind, n := range counts {
			fmt.Printf("  %-24s %d\n", kind, n)
		}
	}
}
