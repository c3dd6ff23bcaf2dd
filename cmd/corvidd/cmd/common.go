package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/corvidmem/corvid/internal/classifier"
	"github.com/corvidmem/corvid/internal/config"
	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/index"
	"github.com/corvidmem/corvid/internal/ingest"
	"github.com/corvidmem/corvid/internal/mcpsurface"
	"github.com/corvidmem/corvid/internal/profile"
	"github.com/corvidmem/corvid/internal/provenance"
	"github.com/corvidmem/corvid/internal/search"
	"github.com/corvidmem/corvid/internal/store"
	"github.com/corvidmem/corvid/internal/telemetry"
)

// resolveDataDir returns the effective data directory: the --data-dir
// flag if set, otherwise the configured default.
func resolveDataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	return config.NewConfig().Paths.DataDir
}

// engineDeps bundles every long-lived dependency wired from config,
// closed together via engineDeps.Close.
type engineDeps struct {
	cfg     *config.Config
	pool    *embedder.Pool
	idx     *index.Manager
	store   *store.Store
	engine  *search.Engine
	ingest  *ingest.Pipeline
	prov    *provenance.Reader
	custom  *profile.CustomStore
	metrics *telemetry.QueryMetrics
	srv     *mcpsurface.Server
}

func (d *engineDeps) Close() {
	if d.metrics != nil {
		_ = d.metrics.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.idx != nil {
		_ = d.idx.Close()
	}
	if d.pool != nil {
		_ = d.pool.Close()
	}
}

// buildEngineDeps loads configuration and wires the store, index,
// embedder pool, search engine, ingestion pipeline, provenance reader,
// and MCP surface into one bundle ready to serve.
func buildEngineDeps() (*engineDeps, error) {
	dataDir := resolveDataDir()
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	backend := embedder.ParseBackend(cfg.Embedders.Backend)
	pool, err := embedder.NewPool(backend)
	if err != nil {
		return nil, fmt.Errorf("init embedder pool: %w", err)
	}

	idx, err := index.NewManager()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init index manager: %w", err)
	}

	st, err := store.Open(cfg.Paths.DataDir, cfg.Store.BlockCacheMB)
	if err != nil {
		idx.Close()
		pool.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	custom := profile.NewCustomStore()

	if err := telemetry.InitTelemetrySchema(st.DB()); err != nil {
		st.Close()
		idx.Close()
		pool.Close()
		return nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	metricsStore, err := telemetry.NewSQLiteMetricsStore(st.DB())
	if err != nil {
		st.Close()
		idx.Close()
		pool.Close()
		return nil, fmt.Errorf("init telemetry store: %w", err)
	}
	metrics := telemetry.NewQueryMetrics(metricsStore)

	engineCfg := search.DefaultConfig()
	engineCfg.DefaultTopK = cfg.Search.MaxResults
	engine, err := search.NewEngine(idx, st, pool, engineCfg,
		search.WithClassifier(classifier.NewHybridClassifier()),
		search.WithCustomProfiles(custom),
		search.WithTelemetry(metrics),
	)
	if err != nil {
		_ = metrics.Close()
		st.Close()
		idx.Close()
		pool.Close()
		return nil, fmt.Errorf("init search engine: %w", err)
	}

	var builderOpts []fingerprint.BuilderOption
	if cfg.Purpose.ReferenceText != "" {
		ref, err := fingerprint.NewReferenceProfile(context.Background(), pool, cfg.Purpose.ReferenceText)
		if err != nil {
			_ = metrics.Close()
			st.Close()
			idx.Close()
			pool.Close()
			return nil, fmt.Errorf("build purpose reference profile: %w", err)
		}
		builderOpts = append(builderOpts, fingerprint.WithReference(ref))
	}

	pipeline := ingest.New(pool, st, idx, builderOpts...)
	prov := provenance.NewReader(st)

	srv, err := mcpsurface.NewServer(engine, pipeline, st, prov, custom)
	if err != nil {
		_ = metrics.Close()
		st.Close()
		idx.Close()
		pool.Close()
		return nil, fmt.Errorf("init MCP surface: %w", err)
	}

	return &engineDeps{
		cfg:     cfg,
		pool:    pool,
		idx:     idx,
		store:   st,
		engine:  engine,
		ingest:  pipeline,
		prov:    prov,
		custom:  custom,
		metrics: metrics,
		srv:     srv,
	}, nil
}
