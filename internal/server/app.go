// Package server initializes and runs the vault server: database pool,
// migrations, the HTTP API and the periodic share sweep, with graceful
// shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vpetrenko/vaultd/internal/logging"
	"github.com/vpetrenko/vaultd/internal/server/config"
	"github.com/vpetrenko/vaultd/internal/server/httpapi"
	"github.com/vpetrenko/vaultd/internal/server/repositories/repomanager"
	"github.com/vpetrenko/vaultd/internal/server/services"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	router   *httpapi.Router
	exchange *services.ExchangeService
}

func NewApp(cfg *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	userService := services.NewUserService(db, rm, cfg)
	keyService := services.NewKeyService(db, rm)
	vaultService := services.NewVaultService(db, rm)
	rightsService := services.NewRightsService(db, rm)
	exchangeService := services.NewExchangeService(db, rm, cfg)
	importExportService := services.NewImportExportService(db, rm)
	archiveService := services.NewArchiveService(cfg)

	router := httpapi.NewRouter(
		userService, keyService, vaultService, rightsService,
		exchangeService, importExportService, archiveService,
		cfg, logger,
	)

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		router:   router,
		exchange: exchangeService,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runCleanSweep periodically removes shares whose expiration passed the
// grace offset.
func (app *App) runCleanSweep(ctx context.Context) {
	ticker := time.NewTicker(app.config.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.exchange.Clean(ctx)
			if err != nil {
				app.logger.Error(ctx, "clean sweep failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "clean sweep removed expired shares", "count", n)
			}
		}
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.router.Engine(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "server shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		app.runCleanSweep(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
