package app

import (
	"context"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/corey/temmekit/internal/adapters/bbolt"
	"github.com/corey/temmekit/internal/adapters/fetch"
	"github.com/corey/temmekit/internal/adapters/lsp"
	"github.com/corey/temmekit/internal/adapters/temme"
	"github.com/corey/temmekit/internal/config"
	"github.com/corey/temmekit/internal/domain/diagnose"
	"github.com/corey/temmekit/internal/domain/watch"
	"github.com/corey/temmekit/internal/ports"
)

// ServeLSP runs the language server on in/out until the client exits. The
// run history is shared with the daemon when the database is free; a locked
// database only disables history.
func ServeLSP(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if cfg.ProjectID == "" && cfg.ProjectRoot != "" {
		cfg.ProjectID = filepath.Base(cfg.ProjectRoot)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var history ports.History
	if cfg.ProjectRoot != "" {
		paths := NewPaths(cfg.ProjectRoot)
		if err := paths.EnsureDirs(); err != nil {
			log.Warn("run history disabled", zap.Error(err))
		} else if store, err := bbolt.NewStore(paths.DB, cfg.ProjectID); err != nil {
			log.Warn("run history disabled", zap.String("db", paths.DB), zap.Error(err))
		} else {
			defer store.Close()
			history = store
		}
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = fetch.New(fetch.Config{
			Timeout:   cfg.Settings.HTTPTimeout(),
			UserAgent: cfg.Settings.UserAgent,
		})
	}
	wcfg := watch.Config{Output: cfg.Settings.OutputKind(), Links: cfg.Settings.LinkMode()}

	engine := temme.New()
	srv := lsp.NewServer(in, out, lsp.Options{
		Recognize: cfg.Settings.Recognizes,
		Config:    wcfg,
		Outliner:  engine,
		Logger:    log.Named("lsp"),
	})
	ctrl := watch.New(watch.Deps{
		Editor:         srv,
		Fetcher:        fetcher,
		Evaluator:      engine,
		History:        history,
		Logger:         log.Named("watch"),
		OnStatusChange: srv.PublishStatus,
	}, wcfg)
	reporter := diagnose.NewReporter(engine, srv, diagnose.Options{
		Delay:  cfg.Settings.Debounce(),
		Post:   srv.Post,
		Logger: log.Named("diagnose"),
	})
	srv.Attach(ctrl, reporter)

	log.Info("lsp started", zap.String("root", cfg.ProjectRoot))
	return srv.Run(ctx)
}
