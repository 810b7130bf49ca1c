package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meshjoin/internal/config"
	"meshjoin/internal/storage"
)

// openStores opens the source and the warehouse concurrently. On failure
// whatever was opened is closed again.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.Source, storage.Warehouse, error) {
	sc, err := cfg.SourceConfig()
	if err != nil {
		return nil, nil, err
	}
	wc, err := cfg.WarehouseConfig()
	if err != nil {
		return nil, nil, err
	}

	var (
		src storage.Source
		dw  storage.Warehouse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := storage.OpenSource(gctx, sc)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		src = s
		return nil
	})
	g.Go(func() error {
		w, err := storage.OpenWarehouse(gctx, wc)
		if err != nil {
			return fmt.Errorf("open warehouse: %w", err)
		}
		dw = w
		return nil
	})
	if err := g.Wait(); err != nil {
		closeStores(log, src, dw)
		return nil, nil, err
	}

	log.Info("connected",
		zap.String("source_kind", sc.Kind),
		zap.String("warehouse_kind", wc.Kind),
	)
	return src, dw, nil
}

// closeStores closes whichever side is open and logs close errors.
func closeStores(log *zap.Logger, src storage.Source, dw storage.Warehouse) {
	if src != nil {
		if err := src.Close(); err != nil {
			log.Warn("close source", zap.Error(err))
		}
	}
	if dw != nil {
		if err := dw.Close(); err != nil {
			log.Warn("close warehouse", zap.Error(err))
		}
	}
}

// ensureSchema creates missing tables when the backend supports it.
func ensureSchema(ctx context.Context, name string, store any, log *zap.Logger) error {
	b, ok := store.(storage.SchemaBootstrapper)
	if !ok {
		return fmt.Errorf("%s backend cannot create its schema", name)
	}
	if err := b.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%s schema: %w", name, err)
	}
	log.Info("schema ensured", zap.String("store", name))
	return nil
}
