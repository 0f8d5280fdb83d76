package main

import (
	"context"
	"fmt"
	"io"

	"sp1500_float/pkg/config"
	"sp1500_float/pkg/core/cache"
	"sp1500_float/pkg/core/docstore"
	"sp1500_float/pkg/core/ingest"
	"sp1500_float/pkg/core/llm"
	"sp1500_float/pkg/core/methodology"
	"sp1500_float/pkg/core/metrics"
	"sp1500_float/pkg/core/ownership"
	"sp1500_float/pkg/core/pipeline"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/core/store"
	"sp1500_float/pkg/core/summarizer"
	"sp1500_float/pkg/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phuslu/log"
)

// app holds the components shared by the subcommands. Expensive pieces (the
// database pool, the LLM provider) are built on first use.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	metrics  *metrics.Recorder
	throttle *pipeline.Throttle

	edgar *ingest.EDGARClient
	docs  *docstore.DiskStore

	pool     *pgxpool.Pool
	cache    *cache.ExtractionCache
	prompts  *prompt.Registry
	provider llm.Provider
	summ     summarizer.Summarizer
}

func loadApp() (*app, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Log.Format = rootFlags.logFormat
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	docs, err := docstore.NewDiskStore(cfg.Assets.Dir, cfg.SEC.UserAgent, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.Default(),
		throttle: pipeline.NewThrottle(cfg.SEC.PaceInterval),
		edgar:    ingest.NewEDGARClient(cfg.SEC.UserAgent),
		docs:     docs,
	}, nil
}

func (a *app) Close() {
	if c, ok := a.provider.(io.Closer); ok {
		_ = c.Close()
	}
	if a.pool != nil {
		store.Close()
	}
}

func (a *app) database(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if err := store.InitDB(ctx, a.cfg.DatabaseURL); err != nil {
		return nil, err
	}
	a.pool = store.GetPool()
	return a.pool, nil
}

func (a *app) extractionCache(ctx context.Context) (*cache.ExtractionCache, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	opts := []cache.Option{cache.WithLogger(a.logger), cache.WithMetrics(a.metrics)}
	switch a.cfg.Cache.Backend {
	case "file":
		fs, err := cache.NewFileStore(a.cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cache.WithStore(fs))
	case "postgres":
		pool, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		pg, err := cache.NewPGStore(ctx, pool)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cache.WithStore(pg))
	}
	a.cache = cache.New(opts...)
	return a.cache, nil
}

func (a *app) promptRegistry() (*prompt.Registry, error) {
	if a.prompts != nil {
		return a.prompts, nil
	}
	reg := prompt.NewRegistry()
	if err := reg.LoadEmbedded(); err != nil {
		return nil, fmt.Errorf("load embedded prompts: %w", err)
	}
	if dir := a.cfg.Prompts.Dir; dir != "" {
		if err := reg.LoadFromDirectory(dir); err != nil {
			return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
		}
		a.logger.Info().Str("dir", dir).Int("prompts", reg.Count()).Msg("prompt overrides loaded")
	}
	a.prompts = reg
	return reg, nil
}

// summarizer returns the paced LLM-backed summarizer.
func (a *app) summarizer(ctx context.Context) (summarizer.Summarizer, error) {
	if a.summ != nil {
		return a.summ, nil
	}
	provider, err := llm.New(ctx, llm.Config{
		Provider:       a.cfg.LLM.Provider,
		Model:          a.cfg.LLM.Model,
		GeminiAPIKey:   a.cfg.GeminiAPIKey,
		DeepSeekAPIKey: a.cfg.DeepSeekAPIKey,
		QwenAPIKey:     a.cfg.QwenAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	a.provider = provider
	a.logger.Info().Str("provider", provider.Name()).Dur("timeout", a.cfg.LLM.Timeout).Msg("llm provider ready")
	a.summ = a.throttle.Summarizer(summarizer.NewLLMSummarizer(provider, a.cfg.LLM.Timeout, a.logger))
	return a.summ, nil
}

func (a *app) analyzer(ctx context.Context) (*methodology.Analyzer, error) {
	s, err := a.summarizer(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := a.promptRegistry()
	if err != nil {
		return nil, err
	}
	c, err := a.extractionCache(ctx)
	if err != nil {
		return nil, err
	}
	return methodology.NewAnalyzer(s, reg,
		methodology.WithCache(c),
		methodology.WithLogger(a.logger),
		methodology.WithDefaultThreshold(a.cfg.Methodology.DefaultThresholdPct),
	), nil
}

func (a *app) extractor(ctx context.Context) (*ownership.Extractor, error) {
	s, err := a.summarizer(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := a.promptRegistry()
	if err != nil {
		return nil, err
	}
	c, err := a.extractionCache(ctx)
	if err != nil {
		return nil, err
	}
	return ownership.NewExtractor(s, reg, ownership.WithCache(c), ownership.WithLogger(a.logger)), nil
}

func (a *app) resultRepo(ctx context.Context) (*store.ResultRepo, error) {
	var pool *pgxpool.Pool
	if a.cfg.Output.Postgres {
		p, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		pool = p
	}
	return store.NewResultRepo(ctx, pool, a.cfg.Output.Dir)
}

// lookup and documents are the paced views of the EDGAR client and the
// document store.
func (a *app) lookup() ingest.FilingLookup { return a.throttle.Lookup(a.edgar) }

func (a *app) documents() docstore.Store { return a.throttle.Documents(a.docs) }

func (a *app) orchestrator(ctx context.Context) (*pipeline.Orchestrator, error) {
	an, err := a.analyzer(ctx)
	if err != nil {
		return nil, err
	}
	ex, err := a.extractor(ctx)
	if err != nil {
		return nil, err
	}
	repo, err := a.resultRepo(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(a.lookup(), a.documents(), an, ex, a.cfg.Methodology.Document,
		pipeline.WithRepository(repo),
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics),
	), nil
}
