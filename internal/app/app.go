// Package app wires the configured components into an application context.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"fetchplan-registry/internal/common"
	"fetchplan-registry/internal/config"
	"fetchplan-registry/internal/datamanager"
	"fetchplan-registry/internal/logging"
	"fetchplan-registry/internal/metadata"
	"fetchplan-registry/internal/repository"
	"fetchplan-registry/internal/store/kvstore"
	"fetchplan-registry/internal/store/sqlstore"
)

// App is the application context.
type App struct {
	Config      *config.Config
	Log         *logrus.Entry
	Session     *metadata.Session
	Repository  *repository.Repository
	DataManager *datamanager.DataManager
	Registry    *prometheus.Registry

	closers []io.Closer

	mu        sync.Mutex
	listeners []func()
}

// New loads the metadata model, creates the repository and opens the stores.
// Stores used by entities but missing from the configuration run in memory.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	log := logging.Component(logger, "app")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	session, repo, err := LoadRepository(cfg, logger, reg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Log:        log,
		Session:    session,
		Repository: repo,
		Registry:   reg,
	}

	stores, err := a.openStores(ctx, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.DataManager, err = datamanager.New(session, a.Repository, stores, datamanager.Config{
		Logger:     logrus.NewEntry(logger),
		Registerer: reg,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"entities":  len(session.ClassNames()),
		"stores":    a.DataManager.StoreNames(),
		"locations": len(cfg.FetchPlanLocations()),
	}).Info("application context created")

	return a, nil
}

func (a *App) openStores(ctx context.Context, logger *logrus.Logger) ([]datamanager.Store, error) {
	var stores []datamanager.Store

	configured := map[string]bool{}

	for _, sc := range a.Config.Stores {
		configured[sc.Name] = true

		switch sc.Kind {
		case config.StoreSQL:
			s, err := sqlstore.Open(sc.Name, sc.Driver, sc.DSN, logrus.NewEntry(logger))
			if err != nil {
				return nil, err
			}

			a.closers = append(a.closers, s)

			if err := s.EnsureSchema(ctx, a.Session.Classes()); err != nil {
				return nil, fmt.Errorf("store %s: %w", sc.Name, err)
			}

			stores = append(stores, s)
		case config.StoreBadger:
			s, err := kvstore.Open(sc.Name, kvstore.Config{
				Path:     a.Config.Resolve(sc.Path),
				InMemory: sc.Path == "",
			})
			if err != nil {
				return nil, err
			}

			a.closers = append(a.closers, s)
			stores = append(stores, s)
		default:
			return nil, fmt.Errorf("store %s: unknown kind %q", sc.Name, sc.Kind)
		}
	}

	for _, name := range a.Session.Stores() {
		if configured[name] {
			continue
		}

		a.Log.WithField("store", name).Warn("store not configured, using an in-memory store")

		s, err := kvstore.Open(name, kvstore.Config{InMemory: true})
		if err != nil {
			return nil, err
		}

		a.closers = append(a.closers, s)
		stores = append(stores, s)
	}

	return stores, nil
}

// LoadRepository loads the metadata model and creates a repository over the
// configured definition files. reg may be nil.
func LoadRepository(cfg *config.Config, logger *logrus.Logger, reg prometheus.Registerer) (*metadata.Session, *repository.Repository, error) {
	session, err := metadata.LoadFile(cfg.MetadataPath())
	if err != nil {
		return nil, nil, err
	}

	repo := repository.New(session, repository.Config{
		Locations:  cfg.FetchPlanLocations(),
		Logger:     logrus.NewEntry(logger),
		Registerer: reg,
	})

	return session, repo, nil
}

// OnRefresh registers fn to run after every Refresh.
func (a *App) OnRefresh(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.listeners = append(a.listeners, fn)
}

// Refresh signals a context refresh: the repository drops its plans and
// reloads the definition files.
func (a *App) Refresh() error {
	a.Repository.Reset()

	err := a.Repository.Init()
	if err != nil {
		a.Log.WithError(err).Error("fetch plan reload failed")
	} else {
		a.Log.Info("application context refreshed")
	}

	a.mu.Lock()
	listeners := append([]func(){}, a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}

	return err
}

// Watch refreshes the context when definition files change, until ctx is done.
// Included files are watched too, as read by the last refresh. A change of the
// metadata model is reported but needs a restart, since the stores and the data
// manager are built from it.
func (a *App) Watch(ctx context.Context, debounce time.Duration) error {
	// The includes are only known once the files were read.
	_ = a.Repository.Init()

	model := filepath.Clean(a.Config.MetadataPath())
	files := append(a.Config.FetchPlanLocations(), a.Repository.Files()...)

	var w *Watcher

	w, err := NewWatcher(append(files, model), debounce, func(paths []string) {
		if common.Contains(paths, model) {
			a.Log.WithField("file", model).Warn("metadata model changed, restart to apply")

			if len(paths) == 1 {
				return
			}
		}

		a.Log.WithField("files", paths).Info("fetch plan files changed")
		_ = a.Refresh()

		w.Add(a.Repository.Files())
	}, a.Log)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	return w.Run(ctx)
}

// Close closes the stores.
func (a *App) Close() error {
	var errs []error

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	return errors.Join(errs...)
}
