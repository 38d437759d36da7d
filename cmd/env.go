package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/touken-lab/meikan/internal/catalog"
	"github.com/touken-lab/meikan/internal/config"
	"github.com/touken-lab/meikan/internal/resolution"
	"github.com/touken-lab/meikan/internal/retrieval"
)

// env bundles the stores and services a command needs.
type env struct {
	Catalog   catalog.Store
	Store     resolution.Store
	Retriever *retrieval.Retriever
	Service   *resolution.Service
	Lookup    *catalog.Lookup
}

// initEnv builds the catalog and resolution backends from config and wires
// the resolver on top of them.
func initEnv(ctx context.Context) (*env, error) {
	cat, err := openCatalog(ctx, cfg.Catalog)
	if err != nil {
		return nil, err
	}

	store, err := openResolutionStore(ctx, cfg.Store)
	if err != nil {
		cat.Close()
		return nil, err
	}

	retriever := retrieval.New(cat, cfg.Retrieval)
	svc := resolution.NewService(store, cat, retriever, cfg.Retrieval)

	return &env{
		Catalog:   cat,
		Store:     store,
		Retriever: retriever,
		Service:   svc,
		Lookup:    catalog.NewLookup(cat),
	}, nil
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close resolution store", zap.Error(err))
	}
	if err := e.Catalog.Close(); err != nil {
		zap.L().Warn("close catalog", zap.Error(err))
	}
}

func openCatalog(ctx context.Context, sc config.StoreConfig) (catalog.Store, error) {
	switch strings.ToLower(sc.Driver) {
	case "", "none":
		zap.L().Warn("no catalog backend configured; search and validation are unavailable")
		return catalog.Unprovisioned{}, nil
	case "sqlite":
		return catalog.NewSQLite(sc.Path)
	case "postgres":
		return catalog.NewPostgres(ctx, sc.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown catalog driver %q", sc.Driver)
	}
}

func openResolutionStore(ctx context.Context, sc config.StoreConfig) (resolution.Store, error) {
	switch strings.ToLower(sc.Driver) {
	case "", "sqlite":
		return resolution.NewSQLite(sc.Path)
	case "postgres":
		return resolution.NewPostgres(ctx, sc.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}
