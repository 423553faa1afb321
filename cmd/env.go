package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trialscope/internal/artifact"
	"github.com/sells-group/trialscope/internal/enrich"
	"github.com/sells-group/trialscope/internal/finance"
	"github.com/sells-group/trialscope/internal/pipeline"
	"github.com/sells-group/trialscope/internal/resilience"
	"github.com/sells-group/trialscope/internal/runs"
	"github.com/sells-group/trialscope/internal/stagecache"
	"github.com/sells-group/trialscope/internal/store"
	"github.com/sells-group/trialscope/pkg/anthropic"
	"github.com/sells-group/trialscope/pkg/ctgov"
	"github.com/sells-group/trialscope/pkg/gcs"
)

// pipelineEnv holds the initialized stores, clients, and runner shared by
// the run/serve/runs commands.
type pipelineEnv struct {
	Store     *store.SQLiteStore
	Registry  *runs.Registry
	Runner    *pipeline.Runner
	Artifacts artifact.Store
	LocalRoot string
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initEnv sets up the history store, registry client, enrichment resolvers,
// artifact storage, and the pipeline runner. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Pipeline.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Pipeline.MaxRetries
	}

	sourceOpts := []ctgov.Option{
		ctgov.WithBaseURL(cfg.Registry.BaseURL),
		ctgov.WithPageSize(cfg.Registry.PageSize),
		ctgov.WithRateLimit(cfg.Registry.RequestsPerSec),
		ctgov.WithRetry(retry),
	}
	if cfg.Registry.TimeoutSecs > 0 {
		sourceOpts = append(sourceOpts, ctgov.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Registry.TimeoutSecs) * time.Second,
		}))
	}
	source := ctgov.NewClient(sourceOpts...)

	resolver := initResolver(st, retry)

	artifacts, localRoot, err := initArtifacts()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	cache, err := stagecache.New(cfg.Cache.Dir)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := runs.NewRegistry()
	runner := pipeline.NewRunner(
		cfg,
		source,
		resolver,
		finance.NewLandscapeAnalyzer(),
		artifacts,
		cache,
		registry,
		nil, // figure rasterization is delegated to an external renderer
		st,
	)

	return &pipelineEnv{
		Store:     st,
		Registry:  registry,
		Runner:    runner,
		Artifacts: artifacts,
		LocalRoot: localRoot,
	}, nil
}

// initResolver builds the enrichment chain: memoized AI-then-pattern
// fallback, with resolutions persisted in sqlite.
func initResolver(st *store.SQLiteStore, retry resilience.RetryConfig) enrich.Resolver {
	var primary enrich.Resolver
	if !cfg.Anthropic.Disabled && cfg.Anthropic.Key != "" {
		client := anthropic.NewClient(cfg.Anthropic.Key)
		primary = enrich.NewAIResolver(client, cfg.Anthropic.Model,
			time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second, retry)
	} else {
		zap.L().Info("enrichment: AI resolver disabled, using pattern rules only")
	}

	fallback := enrich.NewFallbackResolver(primary, enrich.NewPatternResolver())
	return enrich.NewMemoizedResolver(fallback, enrich.NewMemo(st))
}

// initArtifacts selects the storage backend: local-only when forced or when
// no bucket is configured, otherwise cloud with local fallback.
func initArtifacts() (artifact.Store, string, error) {
	local, err := artifact.NewLocalStore(cfg.Storage.LocalDir, "/files")
	if err != nil {
		return nil, "", err
	}

	if cfg.Storage.ForceLocal || cfg.Storage.Bucket == "" {
		zap.L().Info("storage: using local artifact store", zap.String("dir", cfg.Storage.LocalDir))
		return local, local.Root(), nil
	}

	opts := []gcs.Option{}
	if cfg.Storage.CredentialsPath != "" {
		token, err := gcs.TokenFromFile(cfg.Storage.CredentialsPath)
		if err != nil {
			zap.L().Warn("storage: credentials unavailable, cloud writes may fail", zap.Error(err))
		} else {
			opts = append(opts, gcs.WithToken(token))
		}
	}
	cloud := artifact.NewCloudStore(gcs.NewClient(cfg.Storage.Bucket, opts...))

	retry := resilience.DefaultRetryConfig()
	if cfg.Pipeline.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Pipeline.MaxRetries
	}
	zap.L().Info("storage: using cloud artifact store with local fallback", zap.String("bucket", cfg.Storage.Bucket))
	return artifact.NewFallbackStore(cloud, local, retry), local.Root(), nil
}
