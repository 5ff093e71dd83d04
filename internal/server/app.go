// Package server wires the chat server together: database and migrations,
// services, the realtime core, push delivery and the HTTP surface. It also
// owns process lifetime and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/whisper/internal/logging"
	"github.com/dmitrijs2005/whisper/internal/server/auth"
	"github.com/dmitrijs2005/whisper/internal/server/config"
	"github.com/dmitrijs2005/whisper/internal/server/httpapi"
	"github.com/dmitrijs2005/whisper/internal/server/push"
	"github.com/dmitrijs2005/whisper/internal/server/realtime"
	"github.com/dmitrijs2005/whisper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/whisper/internal/server/services"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	registry   *realtime.Registry
	handler    *realtime.Handler
	dispatcher *push.Dispatcher
	httpServer *httpapi.Server
}

const drainTimeout = 10 * time.Second

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	sender, err := newPushSender(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app := build(c, logger, db, rm, sender)
	return app, nil
}

// newPushSender picks FCM when credentials are configured and a log-only
// sender otherwise.
func newPushSender(ctx context.Context, c *config.Config, logger logging.Logger) (push.Sender, error) {
	if c.FirebaseCredentialsFile == "" {
		logger.Warn(ctx, "no firebase credentials configured, push notifications are only logged")
		return push.NewLogSender(logger.With("module", "push")), nil
	}
	s, err := push.NewFCMSender(ctx, c.FirebaseCredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("push init error: %w", err)
	}
	return s, nil
}

func build(c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager, sender push.Sender) *App {
	chatService := services.NewChatService(db, rm)
	mediaService := services.NewMediaService(c)
	verifier := auth.NewVerifier(rm.Users(db), []byte(c.SecretKey))

	dispatcher := push.NewDispatcher(
		push.NewService(db, rm, sender, logger.With("module", "push")),
		c.PushWorkers, c.PushQueueSize, logger.With("module", "push_dispatcher"),
	)

	rtLogger := logger.With("module", "realtime")
	registry := realtime.NewRegistry(rtLogger)
	broadcaster := realtime.NewBroadcaster(registry, chatService, dispatcher, rtLogger)
	handler := realtime.NewHandler(
		registry,
		verifier,
		chatService,
		broadcaster,
		realtime.NewPresenceNotifier(registry, chatService, rtLogger),
		realtime.NewReceiptHandler(registry, chatService, rm.Receipts(db), rtLogger),
		rtLogger,
	)
	endpoint := realtime.NewEndpoint(handler, c.AllowedOrigins, c.WriteTimeout, rtLogger)

	api := httpapi.NewAPI(endpoint, verifier, chatService, mediaService, broadcaster, registry, logger)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		registry:   registry,
		handler:    handler,
		dispatcher: dispatcher,
		httpServer: httpapi.NewServer(c.HTTPAddr, api.Handler(c.AllowedOrigins), logger),
	}
}

// Run blocks until SIGINT, SIGTERM or SIGQUIT arrives, ctx is cancelled or a
// component fails. Every component is stopped before Run returns.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.httpServer.Run(ctx)
	})
	g.Go(func() error {
		return app.dispatcher.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		app.registry.CloseAll(realtime.CloseGoingAway, "Server shutting down")
		return nil
	})

	err := g.Wait()

	// Hijacked websocket sessions outlive the HTTP server; their disconnect
	// path still needs the database.
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if derr := app.handler.Drain(drainCtx); derr != nil {
		app.logger.Warn(context.Background(), "realtime sessions did not drain", "err", derr)
	}

	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error(context.Background(), "close database", "err", cerr)
	}
	app.logger.Info(context.Background(), "App stopped")

	return err
}
