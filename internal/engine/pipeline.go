package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/respstack/respstats/internal/geo"
	"github.com/respstack/respstats/internal/metrics"
	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/reconcile"
)

// Pipeline stage names, in execution order.
const (
	StageReconcile = "reconcile"
	StageDerive    = "derive"
	StageGeo       = "geo"
	StageScript    = "script"
)

// Progress reports how far a stage has advanced. Total is zero when the
// stage cannot estimate its extent up front.
type Progress struct {
	RunID     string
	Stage     string
	Processed int
	Total     int
}

// RunSummary describes one completed pipeline run.
type RunSummary struct {
	RunID          string
	Incidents      int
	Records        int
	SourcesRead    int
	SourcesSkipped int
	Enriched       int
	Scripted       int
	LoadErrors     int
	StageDurations map[string]time.Duration
	Duration       time.Duration
}

// Deriver walks an incident set and stamps derived timings onto it.
type Deriver interface {
	Derive(ctx context.Context, set *models.IncidentSet)
}

// Pipeline orchestrates the load flow: reconcile sources into incidents,
// derive timings, enrich with geography, then run the optional script hook.
type Pipeline struct {
	logger   *slog.Logger
	groups   []reconcile.SourceMappings
	deriver  Deriver
	enricher *geo.Enricher
	hook     *ScriptHook
	errs     *models.ErrorLog

	reconciler *reconcile.Reconciler

	progress         func(Progress)
	progressInterval time.Duration
	lastProgress     time.Time
}

// NewPipeline constructs a pipeline over the given source groups. The
// enricher and hook are optional; their stages are skipped when nil.
func NewPipeline(
	logger *slog.Logger,
	groups []reconcile.SourceMappings,
	deriver Deriver,
	enricher *geo.Enricher,
	hook *ScriptHook,
	errs *models.ErrorLog,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if errs == nil {
		errs = models.NewErrorLog()
	}
	return &Pipeline{
		logger:           logger,
		groups:           groups,
		deriver:          deriver,
		enricher:         enricher,
		hook:             hook,
		errs:             errs,
		reconciler:       reconcile.NewReconciler(logger, errs),
		progressInterval: 500 * time.Millisecond,
	}
}

// SetWindow restricts source reads to [start, end].
func (p *Pipeline) SetWindow(start, end time.Time) {
	p.reconciler.SetWindow(start, end)
}

// SetProgress installs a progress callback, invoked at most once per
// interval per stage plus once at each stage boundary.
func (p *Pipeline) SetProgress(fn func(Progress), interval time.Duration) {
	p.progress = fn
	if interval > 0 {
		p.progressInterval = interval
	}
}

// Errors returns the shared load-error log.
func (p *Pipeline) Errors() *models.ErrorLog { return p.errs }

// Run executes every stage in order and returns the populated incident set.
// Cancellation between stages and between units of work returns ctx.Err();
// the summary still reflects the work completed before the stop.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, *models.IncidentSet, error) {
	runID := uuid.NewString()
	started := time.Now()
	summary := &RunSummary{
		RunID:          runID,
		StageDurations: make(map[string]time.Duration),
	}

	p.logger.Info("pipeline run starting",
		slog.String("run_id", runID),
		slog.Int("sources", len(p.groups)),
	)

	if err := p.runReconcile(ctx, runID, summary); err != nil {
		return p.finish(summary, started, err)
	}
	if err := p.runDerive(ctx, runID, summary); err != nil {
		return p.finish(summary, started, err)
	}
	if err := p.runGeo(ctx, runID, summary); err != nil {
		return p.finish(summary, started, err)
	}
	if err := p.runScript(ctx, runID, summary); err != nil {
		return p.finish(summary, started, err)
	}

	return p.finish(summary, started, nil)
}

func (p *Pipeline) finish(summary *RunSummary, started time.Time, err error) (*RunSummary, *models.IncidentSet, error) {
	set := p.reconciler.Incidents()
	summary.Incidents = set.Len()
	summary.LoadErrors = p.errs.Len()
	summary.Duration = time.Since(started)

	for kind, n := range p.errs.CountByKind() {
		metrics.AddLoadErrors(string(kind), n)
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveRun(outcome)

	p.logger.Info("pipeline run finished",
		slog.String("run_id", summary.RunID),
		slog.String("outcome", outcome),
		slog.Int("incidents", summary.Incidents),
		slog.Int("records", summary.Records),
		slog.Int("load_errors", summary.LoadErrors),
		slog.Duration("duration", summary.Duration),
	)

	return summary, set, err
}

func (p *Pipeline) runReconcile(ctx context.Context, runID string, summary *RunSummary) error {
	stageStart := time.Now()
	defer func() { p.observeStage(summary, StageReconcile, stageStart) }()

	for i, group := range p.groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats := p.reconciler.Reconcile(ctx, []reconcile.SourceMappings{group})
		summary.Records += stats.Records
		summary.SourcesRead += stats.SourcesRead
		summary.SourcesSkipped += stats.SourcesSkipped
		metrics.AddRecords(stats.Records)

		p.emitProgress(Progress{RunID: runID, Stage: StageReconcile, Processed: i + 1, Total: len(p.groups)}, i+1 == len(p.groups))
	}
	return ctx.Err()
}

func (p *Pipeline) runDerive(ctx context.Context, runID string, summary *RunSummary) error {
	if p.deriver == nil {
		return ctx.Err()
	}
	stageStart := time.Now()
	defer func() { p.observeStage(summary, StageDerive, stageStart) }()

	set := p.reconciler.Incidents()
	p.deriver.Derive(ctx, set)
	p.emitProgress(Progress{RunID: runID, Stage: StageDerive, Processed: set.Len(), Total: set.Len()}, true)
	return ctx.Err()
}

func (p *Pipeline) runGeo(ctx context.Context, runID string, summary *RunSummary) error {
	if p.enricher == nil {
		return ctx.Err()
	}
	stageStart := time.Now()
	defer func() { p.observeStage(summary, StageGeo, stageStart) }()

	set := p.reconciler.Incidents()
	enriched := p.enricher.Enrich(ctx, set)
	summary.Enriched = enriched
	metrics.AddEnriched(enriched)
	p.emitProgress(Progress{RunID: runID, Stage: StageGeo, Processed: enriched, Total: set.Len()}, true)
	return ctx.Err()
}

func (p *Pipeline) runScript(ctx context.Context, runID string, summary *RunSummary) error {
	if p.hook == nil {
		return ctx.Err()
	}
	stageStart := time.Now()
	defer func() { p.observeStage(summary, StageScript, stageStart) }()

	set := p.reconciler.Incidents()
	total := set.Len()
	for i, inc := range set.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.hook.Process(inc, p.errs) {
			summary.Scripted++
		}
		p.emitProgress(Progress{RunID: runID, Stage: StageScript, Processed: i + 1, Total: total}, i+1 == total)
	}
	return ctx.Err()
}

func (p *Pipeline) observeStage(summary *RunSummary, stage string, started time.Time) {
	elapsed := time.Since(started)
	summary.StageDurations[stage] = elapsed
	metrics.ObserveStage(stage, elapsed)
	p.logger.Debug("stage complete", slog.String("stage", stage), slog.Duration("duration", elapsed))
}

// emitProgress throttles callback delivery; boundary events always fire.
func (p *Pipeline) emitProgress(ev Progress, boundary bool) {
	if p.progress == nil {
		return
	}
	now := time.Now()
	if !boundary && now.Sub(p.lastProgress) < p.progressInterval {
		return
	}
	p.lastProgress = now
	p.progress(ev)
}
