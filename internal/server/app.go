// Package server initializes and runs the application: remote session
// caches, the action executor, the session manager, the audit store, and
// the HTTP endpoint, with signal-driven graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wikicampus/wikicampus/internal/logging"
	"github.com/wikicampus/wikicampus/internal/obs"
	"github.com/wikicampus/wikicampus/internal/server/actions"
	"github.com/wikicampus/wikicampus/internal/server/config"
	"github.com/wikicampus/wikicampus/internal/server/httpapi"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
	"github.com/wikicampus/wikicampus/internal/server/repositories/repomanager"
	"github.com/wikicampus/wikicampus/internal/server/sessioncache"
	"github.com/wikicampus/wikicampus/internal/server/sessions"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	api    *httpapi.API
	repos  *repomanager.Manager
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewDefault()

	obs.Init()

	editing := sessioncache.New("editing", func(ctx context.Context, cred permissions.Credential) (wikibase.EditingService, error) {
		return wikibase.NewEditing(ctx, remoteSession(cfg, cred))
	})
	query := sessioncache.New("query", func(ctx context.Context, cred permissions.Credential) (wikibase.QueryService, error) {
		return wikibase.NewQuery(remoteSession(cfg, cred)), nil
	})

	// Without a DSN the audit log lives in memory; fine for development,
	// gone on restart.
	var auditRepo audit.Repository
	var repos *repomanager.Manager
	if cfg.DatabaseDSN != "" {
		m, err := repomanager.NewPostgresManager(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		repos = m
		auditRepo = m.Audit()
	} else {
		logger.Warn(ctx, "no database DSN configured, audit log is in-memory")
		auditRepo = audit.NewInMemoryRepository()
	}

	exec := actions.NewExecutor(editing, query, auditRepo, logger)
	sm := sessions.NewManager(editing, query, []byte(cfg.SecretKey), cfg.SessionTokenValidity, logger)
	api := httpapi.New(sm, exec, auditRepo, logger)

	return &App{config: cfg, logger: logger, api: api, repos: repos}, nil
}

func remoteSession(cfg *config.Config, cred permissions.Credential) wikibase.Session {
	return wikibase.Session{
		InstanceURL:    cfg.InstanceURL,
		SPARQLEndpoint: cfg.SPARQLEndpoint,
		Username:       cred.Username,
		Password:       cred.Password,
		UserAgent:      cfg.UserAgent,
		MaxLag:         cfg.MaxLag,
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.api.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "err", err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if app.repos != nil {
		if err := app.repos.Close(); err != nil {
			app.logger.Error(ctx, "closing db", "err", err.Error())
		}
	}
}
