package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/payrecon/internal/aitable"
	"github.com/cleared-dev/payrecon/internal/clients"
	"github.com/cleared-dev/payrecon/internal/config"
	"github.com/cleared-dev/payrecon/internal/importer"
	"github.com/cleared-dev/payrecon/internal/localstore"
	"github.com/cleared-dev/payrecon/internal/logger"
	"github.com/cleared-dev/payrecon/internal/records"
)

// app is everything a command needs once config is loaded.
type app struct {
	cfg   *config.Config
	root  string // directory holding the config file
	log   zerolog.Logger
	store records.Store
	close func() error
}

// loadApp reads config, applies env and flag overrides, and opens the store.
// A missing config file is fine unless --config was given explicitly.
func (o *rootOptions) loadApp(cmd *cobra.Command) (*app, error) {
	path, err := filepath.Abs(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
	}
	cfg.ApplyEnv(o.v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		root:  filepath.Dir(path),
		log:   log,
		close: func() error { return nil },
	}
	if err := a.openStore(cmd.Context()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendSQLite:
		path := a.cfg.Store.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.root, path)
		}
		s, err := localstore.Open(ctx, path, a.log)
		if err != nil {
			return fmt.Errorf("opening local store: %w", err)
		}
		a.store = s
		a.close = s.Close
	default:
		a.store = aitable.NewClient(
			a.cfg.AITable.BaseURL,
			a.cfg.AITable.Token,
			a.cfg.AITable.Timeout,
			aitable.WithLogger(a.log),
		)
	}
	a.log.Debug().Str("backend", a.cfg.Store.Backend).Msg("Store ready")
	return nil
}

func (a *app) newMatcher(store records.Store) *clients.Matcher {
	tables := clients.Tables{
		Clients:  a.cfg.AITable.Tables.Clients,
		Mappings: a.cfg.AITable.Tables.ClientMappings,
	}
	cache := clients.NewCache(store, tables, a.log)
	return clients.NewMatcher(cache,
		clients.WithThreshold(a.cfg.Matching.AutoThreshold),
		clients.WithLogger(a.log),
	)
}

func (a *app) newImporter(store records.Store, matcher *clients.Matcher) *importer.Importer {
	tables := importer.Tables{
		Payments:      a.cfg.AITable.Tables.Payments,
		Subscriptions: a.cfg.AITable.Tables.Subscriptions,
	}
	return importer.New(store, matcher, tables, a.log)
}
