package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/respstack/respstats/internal/engine"
	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/utils"
)

// RunOutput bundles everything one pipeline run produces.
type RunOutput struct {
	Summary   *engine.RunSummary
	Incidents *models.IncidentSet
	Reports   []engine.ReportResult
	Errors    []models.LoadError
}

// StatsService is the facade callers drive: one call loads the incident
// model and executes the configured report pack against it.
type StatsService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	reports   *engine.ReportPack
	latencies *utils.LatencyTracker
}

// NewStatsService constructs the service facade. The report pack may be nil,
// in which case runs produce the incident model only.
func NewStatsService(logger *slog.Logger, pipeline *engine.Pipeline, reports *engine.ReportPack) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{
		logger:    logger,
		pipeline:  pipeline,
		reports:   reports,
		latencies: utils.NewLatencyTracker(64),
	}
}

// Run executes the pipeline and the report pack. Load errors never fail the
// run; they come back on the output for the caller to inspect.
func (s *StatsService) Run(ctx context.Context) (*RunOutput, error) {
	if s.pipeline == nil {
		return nil, utils.NewAppError("services.Run", "pipeline not configured", nil)
	}

	start := time.Now()
	summary, set, err := s.pipeline.Run(ctx)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("pipeline run failed", slog.Any("error", err))
		return nil, utils.NewAppError("services.Run", "pipeline run failed", err)
	}

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 5 && count%5 == 0 {
		s.logger.Info("run latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	results, err := s.reports.Run(set.All())
	if err != nil {
		s.logger.Error("report execution failed", slog.Any("error", err))
		return nil, err
	}

	return &RunOutput{
		Summary:   summary,
		Incidents: set,
		Reports:   results,
		Errors:    s.pipeline.Errors().All(),
	}, nil
}

// LatencyP95 returns the current p95 run latency.
func (s *StatsService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
