package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fluve/internal/config"
	"fluve/internal/etl"
	"fluve/internal/etl/sources"
	"fluve/internal/fluve"
	"fluve/internal/pipeline"
	"fluve/internal/redcap"
	"fluve/internal/secret"
	"fluve/internal/service"
	"fluve/internal/storage"
)

// newSurveyClient is replaced in tests.
var newSurveyClient = func(cfg *config.Config, log *zap.Logger) redcap.Client {
	return redcap.NewHTTPClient(cfg.REDCap.APIURL, cfg.GetTimeout(), log)
}

// ─────────────────────────────────────────────────────────────
// Env: storage, services and the bound pipeline
// ─────────────────────────────────────────────────────────────

type env struct {
	db       *storage.DB
	cache    *storage.TableCache
	runs     *storage.RunLogStore
	engine   *etl.Engine
	publish  *service.PublishService // database publishing only
	pipeline *service.PipelineService
}

// openStorage opens the SQLite file holding the cache and run history.
func openStorage() (*storage.DB, error) {
	db, err := storage.New(cfg.CachePath())
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", cfg.CachePath(), err)
	}
	return db, nil
}

// openEnv resolves secrets, validates the config and wires a
// PipelineService ready to run.
func openEnv() (*env, error) {
	store, err := secret.New(cfg.Secrets.Backend)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(store); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sources.SetSecretLookup(func(key string) (string, error) {
		return secret.Lookup(store, key)
	})

	study, err := fluve.Study(cfg)
	if err != nil {
		return nil, err
	}

	db, err := openStorage()
	if err != nil {
		return nil, err
	}
	rt := &env{
		db:     db,
		cache:  storage.NewTableCache(db),
		runs:   storage.NewRunLogStore(db),
		engine: etl.NewEngine(logger),
	}

	deps := pipeline.Deps{
		Survey: newSurveyClient(cfg, logger),
		Engine: rt.engine,
		Log:    logger,
	}
	if cfg.Cache.Enabled {
		deps.Cache = rt.cache
	}

	rt.pipeline = service.NewPipelineService(func(ctx context.Context) (*pipeline.Project, error) {
		return pipeline.Build(ctx, deps, study)
	}, rt.runs, service.LogEmitter{Log: logger}, logger)

	if cfg.Publish.Enabled {
		switch cfg.Publish.Destination {
		case "database":
			rt.publish = service.NewPublishService(cfg.Publish.Connection, cfg.Publish.Password, logger)
			rt.engine.Dest = rt.publish
		case "csv", "":
			rt.engine.Dest = &etl.CSVDirWriter{Dir: cfg.Paths.ProcessedData}
		default:
			rt.close()
			return nil, fmt.Errorf("unknown publish destination: %q (valid: csv, database)", cfg.Publish.Destination)
		}
		rt.pipeline.PublishTo(rt.engine, cfg.Publish.Table, cfg.Publish.Mode)
	}
	return rt, nil
}

func (rt *env) close() {
	if rt.pipeline != nil {
		rt.pipeline.Stop()
	}
	if rt.publish != nil {
		if err := rt.publish.Close(); err != nil {
			logger.Warn("failed to close publish connection", zap.Error(err))
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
}
