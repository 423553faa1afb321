package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trialscope/internal/artifact"
	"github.com/sells-group/trialscope/internal/config"
	"github.com/sells-group/trialscope/internal/enrich"
	"github.com/sells-group/trialscope/internal/finance"
	"github.com/sells-group/trialscope/internal/model"
	"github.com/sells-group/trialscope/internal/runs"
	"github.com/sells-group/trialscope/internal/stagecache"
	"github.com/sells-group/trialscope/pkg/ctgov"
)

// HistoryStore persists run records across restarts. Persistence failures
// are logged, never fatal.
type HistoryStore interface {
	SaveRun(ctx context.Context, rec model.RunRecord) error
}

// Runner executes the landscape pipeline: fetch, enrich, optional financial
// analysis, aggregation, and artifact writing. All dependencies are
// injected; cache, renderer, and history may be nil.
type Runner struct {
	cfg       *config.Config
	source    ctgov.Client
	resolver  enrich.Resolver
	analyzer  finance.Analyzer
	artifacts artifact.Store
	cache     *stagecache.Cache
	registry  *runs.Registry
	renderer  ChartRenderer
	history   HistoryStore
}

// NewRunner wires the pipeline.
func NewRunner(
	cfg *config.Config,
	source ctgov.Client,
	resolver enrich.Resolver,
	analyzer finance.Analyzer,
	artifacts artifact.Store,
	cache *stagecache.Cache,
	registry *runs.Registry,
	renderer ChartRenderer,
	history HistoryStore,
) *Runner {
	return &Runner{
		cfg:       cfg,
		source:    source,
		resolver:  resolver,
		analyzer:  analyzer,
		artifacts: artifacts,
		cache:     cache,
		registry:  registry,
		renderer:  renderer,
		history:   history,
	}
}

// Submit registers a new queued run and returns its ID.
func (r *Runner) Submit(params model.RunParams) string {
	id := r.registry.Create(params)
	r.persist(context.Background(), id)
	return id
}

// Execute runs the pipeline for a previously submitted run, driving its
// status from queued through running to a terminal state. The returned error
// mirrors what is recorded on the run.
func (r *Runner) Execute(ctx context.Context, runID string) error {
	rec, err := r.registry.Get(runID)
	if err != nil {
		return err
	}
	params := rec.Params
	log := zap.L().With(zap.String("run_id", runID), zap.String("disease", params.Disease))
	log.Info("pipeline: starting run")

	r.setStatus(ctx, runID, model.RunStatusRunning)

	warn := func(msg string) {
		log.Warn("pipeline: " + msg)
		r.update(ctx, runID, func(rec *model.RunRecord) {
			rec.Warnings = append(rec.Warnings, msg)
		})
	}

	trackStage := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		dur := time.Since(start)
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Duration("duration", dur), zap.Error(err))
		} else {
			log.Info("pipeline: stage complete", zap.String("stage", name), zap.Duration("duration", dur))
		}
		return err
	}

	fail := func(err error) error {
		now := time.Now().UTC()
		storageErr := r.storageDegradation(runID)
		r.update(ctx, runID, func(rec *model.RunRecord) {
			rec.Status = model.RunStatusError
			rec.Error = err.Error()
			rec.StorageError = storageErr
			rec.EndTime = &now
		})
		return err
	}

	var trials []model.TrialRecord
	if err := trackStage("fetch", func() error {
		var err error
		trials, err = r.fetchStage(ctx, params, warn)
		return err
	}); err != nil {
		return fail(err)
	}

	var interventions []model.InterventionRecord
	if err := trackStage("enrich", func() error {
		var err error
		interventions, err = r.enrichStage(ctx, params, trials, warn)
		return err
	}); err != nil {
		return fail(err)
	}

	var financial *model.FinancialSummary
	if params.FinancialAnalysis && r.analyzer != nil {
		_ = trackStage("financial", func() error {
			var err error
			financial, err = r.analyzer.Analyze(ctx, trials, interventions)
			if err != nil {
				warn(fmt.Sprintf("financial analysis failed: %v", err))
				financial = nil
			}
			return nil
		})
	}

	var summary *model.Summary
	_ = trackStage("aggregate", func() error {
		summary = r.aggregateStage(trials, interventions, financial)
		return nil
	})

	if err := trackStage("artifacts", func() error {
		return r.artifactStage(ctx, runID, params, trials, interventions, summary, warn)
	}); err != nil {
		return fail(err)
	}

	now := time.Now().UTC()
	storageErr := r.storageDegradation(runID)
	r.update(ctx, runID, func(rec *model.RunRecord) {
		rec.Status = model.RunStatusCompleted
		rec.StorageError = storageErr
		rec.EndTime = &now
	})
	log.Info("pipeline: run complete",
		zap.Int("trials", len(trials)),
		zap.Int("interventions", len(interventions)),
	)
	return nil
}

// fetchStage loads trials from the stage cache or the registry. A partial
// fetch (source failed mid-pagination but returned data) downgrades to a
// warning; an empty failed fetch is fatal.
func (r *Runner) fetchStage(ctx context.Context, params model.RunParams, warn func(string)) ([]model.TrialRecord, error) {
	key := stagecache.Key("fetch", params.Disease, map[string]any{
		"max_trials":    params.MaxTrials,
		"years_back":    params.YearsBack,
		"industry_only": params.IndustryOnly,
	})

	var trials []model.TrialRecord
	if r.cache != nil {
		if hit, err := r.cache.Get(key, &trials); err == nil && hit {
			return trials, nil
		}
	}

	trials, err := r.source.FetchTrials(ctx, ctgov.Query{
		Disease:      params.Disease,
		YearsBack:    params.YearsBack,
		MaxTrials:    params.MaxTrials,
		IndustryOnly: params.IndustryOnly,
	})
	if err != nil {
		var unavailable *ctgov.SourceUnavailableError
		if errors.As(err, &unavailable) && len(unavailable.Partial) > 0 {
			warn(fmt.Sprintf("registry fetch incomplete, continuing with %d trials: %v",
				len(unavailable.Partial), unavailable.Err))
			return unavailable.Partial, nil
		}
		return nil, eris.Wrap(err, "pipeline: fetch trials")
	}

	if r.cache != nil {
		if err := r.cache.Set(key, trials); err != nil {
			zap.L().Warn("pipeline: fetch cache write failed", zap.Error(err))
		}
	}
	return trials, nil
}

// enrichStage resolves modality and target for each unique drug
// intervention. Resolution failures degrade to unresolved; the stage itself
// fails only on context cancellation.
func (r *Runner) enrichStage(ctx context.Context, params model.RunParams, trials []model.TrialRecord, warn func(string)) ([]model.InterventionRecord, error) {
	key := stagecache.Key("enrich", params.Disease, map[string]any{
		"max_trials":    params.MaxTrials,
		"years_back":    params.YearsBack,
		"industry_only": params.IndustryOnly,
	})

	var records []model.InterventionRecord
	if r.cache != nil {
		if hit, err := r.cache.Get(key, &records); err == nil && hit {
			return records, nil
		}
	}

	records = uniqueInterventions(trials)

	workers := r.cfg.Pipeline.EnrichWorkers
	if workers <= 0 {
		workers = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var unresolvedFailures atomic.Int64
	for i := range records {
		g.Go(func() error {
			res, err := r.resolver.Resolve(gCtx, records[i].Name)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("pipeline: enrichment failed, leaving unresolved",
					zap.String("name", records[i].Name), zap.Error(err))
				res = enrich.Unresolved()
				unresolvedFailures.Add(1)
			}
			records[i].Modality = res.Modality
			records[i].Target = res.Target
			records[i].Source = res.Source
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: enrich interventions")
	}
	if n := unresolvedFailures.Load(); n > 0 {
		warn(fmt.Sprintf("%d interventions could not be enriched and were left unresolved", n))
	}

	if r.cache != nil {
		if err := r.cache.Set(key, records); err != nil {
			zap.L().Warn("pipeline: enrich cache write failed", zap.Error(err))
		}
	}
	return records, nil
}

func (r *Runner) aggregateStage(trials []model.TrialRecord, interventions []model.InterventionRecord, financial *model.FinancialSummary) *model.Summary {
	sources := resolutionSources(interventions)
	return &model.Summary{
		QuantitativeSummary: buildQuantitativeSummary(trials, interventions),
		QualitativeInsights: buildQualitativeInsights(trials, interventions),
		FinancialInsights:   financial,
		DataSources: model.DataSources{
			Registry:        "ClinicalTrials.gov API v2",
			ModalitySources: sources,
		},
	}
}

// artifactStage encodes and persists every run artifact, recording the URL
// of each on the run. Figure rendering failures are warnings; anything else
// here is fatal.
func (r *Runner) artifactStage(ctx context.Context, runID string, params model.RunParams, trials []model.TrialRecord, interventions []model.InterventionRecord, summary *model.Summary, warn func(string)) error {
	now := time.Now().UTC()

	trialsCSV, err := encodeTrialsCSV(trials)
	if err != nil {
		return err
	}
	interventionsCSV, err := encodeInterventionsCSV(interventions)
	if err != nil {
		return err
	}
	trialsXLSX, err := encodeTrialsXLSX(trials, interventions)
	if err != nil {
		return err
	}
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal summary")
	}

	files := []struct {
		path        string
		data        []byte
		contentType string
	}{
		{"data/clinical_trials.csv", trialsCSV, "text/csv"},
		{"data/interventions.csv", interventionsCSV, "text/csv"},
		{"data/clinical_trials.xlsx", trialsXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"results/summary.json", summaryJSON, "application/json"},
		{"results/report.md", renderMarkdownReport(summary, params.Disease, now), "text/markdown"},
		{"results/report.txt", renderTextReport(summary, params.Disease, now), "text/plain"},
	}

	if r.renderer != nil {
		for _, spec := range buildChartSpecs(trials, summary) {
			png, err := r.renderer.Render(ctx, spec)
			if err != nil {
				warn(fmt.Sprintf("figure %s could not be rendered: %v", spec.Name, err))
				continue
			}
			files = append(files, struct {
				path        string
				data        []byte
				contentType string
			}{"figures/" + spec.Name + ".png", png, "image/png"})
		}
	}

	for _, f := range files {
		if err := r.artifacts.Put(ctx, runID, f.path, f.data, f.contentType); err != nil {
			return eris.Wrapf(err, "pipeline: write artifact %s", f.path)
		}
		url := r.artifacts.ResolveURL(runID, f.path)
		r.update(ctx, runID, func(rec *model.RunRecord) {
			rec.Files[f.path] = url
		})
	}
	return nil
}

// uniqueInterventions extracts drug interventions de-duplicated by
// normalized name, keeping the first trial each appears on.
func uniqueInterventions(trials []model.TrialRecord) []model.InterventionRecord {
	seen := make(map[string]struct{})
	var out []model.InterventionRecord
	for _, t := range trials {
		for _, ref := range t.Interventions {
			keyName := enrich.NormalizeName(ref.Name)
			if keyName == "" {
				continue
			}
			if _, ok := seen[keyName]; ok {
				continue
			}
			seen[keyName] = struct{}{}
			out = append(out, model.InterventionRecord{
				TrialID: t.NCTID,
				Name:    ref.Name,
				Type:    ref.Type,
				Source:  model.SourceUnresolved,
			})
		}
	}
	return out
}

// resolutionSources reports which resolution strategies actually produced
// the run's modality data.
func resolutionSources(interventions []model.InterventionRecord) []string {
	set := make(map[string]struct{})
	for _, iv := range interventions {
		switch iv.Source {
		case model.SourceAI:
			set["Anthropic API"] = struct{}{}
		case model.SourcePattern:
			set["Name-based inference"] = struct{}{}
		}
	}
	if len(set) == 0 {
		return []string{"Name-based inference"}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// storageDegradation reports why a run's artifacts were diverted to backup
// storage, if the store tracks that. Read on every terminal transition so a
// run that degraded and then failed still carries the reason.
func (r *Runner) storageDegradation(runID string) string {
	if dr, ok := r.artifacts.(artifact.DegradationReporter); ok {
		return dr.Degraded(runID)
	}
	return ""
}

func (r *Runner) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	r.update(ctx, runID, func(rec *model.RunRecord) {
		rec.Status = status
	})
}

// update applies a registry mutation and mirrors the new snapshot to the
// history store.
func (r *Runner) update(ctx context.Context, runID string, fn func(*model.RunRecord)) {
	if err := r.registry.Update(runID, fn); err != nil {
		zap.L().Warn("pipeline: registry update failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	r.persist(ctx, runID)
}

func (r *Runner) persist(ctx context.Context, runID string) {
	if r.history == nil {
		return
	}
	rec, err := r.registry.Get(runID)
	if err != nil {
		return
	}
	if err := r.history.SaveRun(ctx, rec); err != nil {
		zap.L().Warn("pipeline: run history save failed", zap.String("run_id", runID), zap.Error(err))
	}
}
