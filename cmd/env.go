package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/metroad/leadops/internal/config"
	"github.com/metroad/leadops/internal/geo"
	"github.com/metroad/leadops/internal/ingest"
	"github.com/metroad/leadops/internal/reconcile"
	"github.com/metroad/leadops/internal/resilience"
	"github.com/metroad/leadops/internal/store"
	"github.com/metroad/leadops/pkg/localdata"
)

// initStore opens the configured store and applies the schema.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadops.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newReconciler(st store.Store) *reconcile.Reconciler {
	return reconcile.New(st, reconcile.Options{
		CheckBizID:      cfg.Dedup.CheckBizID,
		DeleteBatchSize: cfg.Dedup.DeleteBatchSize,
	})
}

func initStations() (*geo.StationIndex, error) {
	idx, err := geo.LoadStations(cfg.Geo.StationsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load stations")
	}
	return idx, nil
}

func newLocalDataClient(c config.LocalDataConfig) localdata.Client {
	retry := resilience.DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}

	opts := []localdata.Option{
		localdata.WithHTTPClient(&http.Client{Timeout: time.Duration(c.TimeoutSecs) * time.Second}),
		localdata.WithRetry(retry),
	}
	if c.BaseURL != "" {
		opts = append(opts, localdata.WithBaseURL(c.BaseURL))
	}
	if c.RateLimit > 0 {
		opts = append(opts, localdata.WithRateLimit(c.RateLimit))
	}
	return localdata.NewClient(c.Key, opts...)
}

func newPipeline(stations *geo.StationIndex) *ingest.Pipeline {
	return ingest.NewPipeline(newLocalDataClient(cfg.LocalData), stations, ingest.Options{
		PageSize:           cfg.LocalData.PageSize,
		MaxPages:           cfg.LocalData.MaxPages,
		Concurrency:        cfg.LocalData.Concurrency,
		OnlyOperating:      cfg.LocalData.OnlyOperating,
		MaxStationDistance: cfg.Geo.MaxStationDistanceM,
	})
}
