// Package app assembles the triage machine and its checkpoint store from
// configuration. It is shared by the HTTP server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"medical-triage-agent/internal/agent"
	"medical-triage-agent/internal/checkpoint"
	"medical-triage-agent/internal/config"
	"medical-triage-agent/internal/triage"
)

const dbConnectAttempts = 10

// Store is a checkpoint store that can also expire idle threads.
type Store interface {
	triage.Store
	checkpoint.Sweeper
	Count(ctx context.Context) (int, error)
}

// OpenStore returns the configured checkpoint store. For postgres it waits for
// the database and applies migrations first. The returned func releases the
// connection.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := checkpoint.Open(ctx, cfg.Store.DatabaseURL, dbConnectAttempts)
		if err != nil {
			return nil, nil, err
		}
		if err := checkpoint.Migrate(cfg.Store.DatabaseURL); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("connected to postgres, migrations applied")
		return checkpoint.NewPostgres(db), closer(db, log), nil
	default:
		log.Info().Msg("using in-memory checkpoint store")
		return checkpoint.NewMemory(), func() {}, nil
	}
}

func closer(db *sql.DB, log zerolog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}

// NewMachine builds the model backend and the triage machine on top of store.
func NewMachine(ctx context.Context, cfg *config.Config, store triage.Store, log zerolog.Logger) (*triage.Machine, error) {
	model, err := agent.New(ctx, agent.Config{
		Provider:       cfg.Model.Provider,
		APIKey:         cfg.ModelAPIKey(),
		BaseURL:        cfg.Model.BaseURL,
		RouterModel:    cfg.Model.RouterModel,
		ResponderModel: cfg.Model.ResponderModel,
		Temperature:    cfg.Model.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init model backend: %w", err)
	}
	log.Info().Str("provider", model.Name()).
		Str("router_model", cfg.Model.RouterModel).
		Str("responder_model", cfg.Model.ResponderModel).
		Msg("model backend ready")

	mcfg := triage.DefaultConfig()
	mcfg.ClarificationCap = cfg.Triage.ClarificationCap
	return triage.NewMachine(store, model, model, mcfg, triage.WithLogger(log)), nil
}

// StartJanitor expires idle threads in the background until ctx ends.
func StartJanitor(ctx context.Context, cfg *config.Config, store Store, log zerolog.Logger) {
	if cfg.Store.IdleTTL <= 0 {
		log.Info().Msg("idle thread expiry disabled")
		return
	}
	interval := cfg.Store.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go checkpoint.RunJanitor(ctx, store, interval, cfg.Store.IdleTTL, log)
}
