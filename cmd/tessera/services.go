package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/tessera/internal/cache"
	"github.com/hpungsan/tessera/internal/cms"
	"github.com/hpungsan/tessera/internal/config"
	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/db"
	"github.com/hpungsan/tessera/internal/editor"
	"github.com/hpungsan/tessera/internal/graphql"
	"github.com/hpungsan/tessera/internal/notify"
)

// services is everything a command needs, wired for the configured backend.
type services struct {
	baseDir string
	cfg     *config.Config

	db      *sql.DB
	local   *cms.Local // nil on the contentful backend
	entries cms.EntryStore
	source  content.Source
	cache   *cache.Source // nil without redis_url
	redis   *redis.Client
	manager *editor.Manager
}

// openServices opens the store and content source for cfg.Backend.
func openServices(baseDir string, cfg *config.Config) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	svc := &services{baseDir: baseDir, cfg: cfg}

	switch cfg.Backend {
	case config.BackendContentful:
		mgmt, err := cms.NewManagement(cms.ManagementConfig{
			SpaceID:           cfg.SpaceID,
			Environment:       cfg.Environment,
			Token:             cfg.ManagementToken,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		client, err := graphql.NewClient(graphql.Config{
			SpaceID:           cfg.SpaceID,
			Environment:       cfg.Environment,
			AccessToken:       cfg.AccessToken,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		svc.entries = mgmt
		svc.source = cms.NewDelivery(client)

	default:
		database, err := db.Init(baseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		db.ConfigurePool(database, cfg)
		svc.db = database
		svc.local = cms.NewLocal(database, cfg.Locale, cfg.LayoutField)
		svc.entries = svc.local
		svc.source = svc.local
	}

	if cfg.RedisURL != "" {
		client, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			// Rendering still works uncached.
			log.Printf("cache disabled: %v", err)
		} else {
			svc.redis = client
			svc.cache = cache.New(client, svc.source, cfg.CacheTTL())
			svc.source = svc.cache
		}
	}

	svc.manager = editor.NewManager(svc.entries, editor.Options{
		LayoutField:  cfg.LayoutField,
		Locale:       cfg.Locale,
		SaveDelay:    cfg.SaveDebounce(),
		WriteTimeout: cfg.SaveTimeout(),
		Notifier:     notify.Log{},
		OnSaved:      svc.onSaved,
	})

	return svc, nil
}

// onSaved drops cached pages so the site shows the new layout.
func (s *services) onSaved(ctx context.Context, entryID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePages(ctx); err != nil {
		log.Printf("invalidate cached pages after saving %s: %v", entryID, err)
	}
}

// Close flushes pending layout saves and releases connections.
func (s *services) Close() error {
	var errs []error
	if s.manager != nil {
		errs = append(errs, s.manager.Close(context.Background()))
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return stderrors.Join(errs...)
}
