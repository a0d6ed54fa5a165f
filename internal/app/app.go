// Package app wires the session daemon together: configuration, logging,
// storage, the identity provider, one session manager and the HTTP and gRPC
// surfaces in front of it. It also handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/sanasto/internal/config"
	"github.com/patric-chuzhbe/sanasto/internal/db/jsondb"
	"github.com/patric-chuzhbe/sanasto/internal/db/memorystorage"
	"github.com/patric-chuzhbe/sanasto/internal/db/postgresdb"
	"github.com/patric-chuzhbe/sanasto/internal/db/redisdb"
	"github.com/patric-chuzhbe/sanasto/internal/db/sqlitedb"
	"github.com/patric-chuzhbe/sanasto/internal/db/storage"
	"github.com/patric-chuzhbe/sanasto/internal/grpcserver"
	"github.com/patric-chuzhbe/sanasto/internal/identity"
	"github.com/patric-chuzhbe/sanasto/internal/identity/firebase"
	"github.com/patric-chuzhbe/sanasto/internal/identity/localprovider"
	"github.com/patric-chuzhbe/sanasto/internal/ipchecker"
	"github.com/patric-chuzhbe/sanasto/internal/logger"
	"github.com/patric-chuzhbe/sanasto/internal/models"
	"github.com/patric-chuzhbe/sanasto/internal/router"
	"github.com/patric-chuzhbe/sanasto/internal/session"
)

const shutdownTimeout = 10 * time.Second

var ErrUnknownIdentityProvider = errors.New("unknown identity provider")

type runnableProvider interface {
	identity.Provider
	Run(ctx context.Context)
	Close() error
}

// App owns every long-lived component of the daemon.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	provider    identity.Provider
	sessions    *session.Manager
	httpHandler http.Handler
	grpcHandler *grpcserver.SessionHandler
	ipChecker   *ipchecker.IPChecker
}

// New loads the configuration, initializes the logger and builds the app.
func New(optionsProto ...config.InitOption) (*App, error) {
	cfg, err := config.New(optionsProto...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	return newApp(context.Background(), cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	var err error
	app := &App{cfg: cfg}

	app.db, err = getStorageByType(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app.provider, err = getIdentityProvider(cfg)
	if err != nil {
		return nil, errors.Join(err, app.db.Close())
	}

	sessionOptions, err := sessionOptionsFrom(cfg)
	if err != nil {
		return nil, errors.Join(err, app.db.Close())
	}
	app.sessions = session.New(app.provider, app.db, sessionOptions...)

	app.ipChecker, err = ipchecker.New(cfg.TrustedSubnet)
	if err != nil {
		return nil, errors.Join(err, app.db.Close())
	}

	app.httpHandler = router.New(app.sessions, app.db, app.ipChecker, cfg.ChannelCapacity)
	app.grpcHandler = grpcserver.NewSessionHandler(app.sessions, cfg.ChannelCapacity)

	return app, nil
}

func sessionOptionsFrom(cfg *config.Config) ([]session.Option, error) {
	policy, err := session.ParseReconcilePolicy(cfg.ReconcilePolicy)
	if err != nil {
		return nil, err
	}

	tag, err := language.Parse(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/sessionOptionsFrom(): error while `language.Parse()` calling: %w", err)
	}

	return []session.Option{
		session.WithReconcilePolicy(policy),
		session.WithInitTimeout(cfg.InitTimeout),
		session.WithLanguage(tag),
	}, nil
}

// Run serves until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.RunContext(ctx)
}

// RunContext starts the provider, the session manager and both servers, and
// shuts everything down once ctx is done or a server fails.
func (a *App) RunContext(ctx context.Context) error {
	if provider, ok := a.provider.(runnableProvider); ok {
		provider.Run(ctx)
	}

	if err := a.sessions.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("session manager start error: %w", err), a.shutdown(nil, nil))
	}

	httpListener, err := net.Listen("tcp", a.cfg.RunAddr)
	if err != nil {
		return errors.Join(fmt.Errorf("http listen error: %w", err), a.shutdown(nil, nil))
	}
	httpServer := &http.Server{Handler: a.httpHandler}

	serverErrCh := make(chan error, 2)
	go func() {
		serverErrCh <- httpServer.Serve(httpListener)
	}()
	logger.Log.Infow("HTTP server running", "RunAddr", httpListener.Addr().String())

	var grpcServer *grpc.Server
	if a.cfg.GRPCRunAddr != "" {
		var grpcListener net.Listener
		grpcServer, grpcListener, err = grpcserver.NewGRPCServer(a.cfg.GRPCRunAddr, a.grpcHandler, a.ipChecker)
		if err != nil {
			return errors.Join(fmt.Errorf("grpc listen error: %w", err), a.shutdown(httpServer, nil))
		}
		go func() {
			serverErrCh <- grpcServer.Serve(grpcListener)
		}()
		logger.Log.Infow("gRPC server running", "GRPCRunAddr", grpcListener.Addr().String())
	}

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing the session and exiting...")
		return a.shutdown(httpServer, grpcServer)

	case err := <-serverErrCh:
		return errors.Join(fmt.Errorf("server error: %w", err), a.shutdown(httpServer, grpcServer))
	}
}

func (a *App) shutdown(httpServer *http.Server, grpcServer *grpc.Server) error {
	var errs []error

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if err := a.sessions.Close(); err != nil {
		errs = append(errs, err)
	}

	if provider, ok := a.provider.(runnableProvider); ok {
		if err := provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.SQLitePath != "" {
		return models.StorageTypeSQLite
	}

	if cfg.RedisURL != "" {
		return models.StorageTypeRedis
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			ctx,
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeSQLite:
		return sqlitedb.New(ctx, cfg.SQLitePath)

	case models.StorageTypeRedis:
		return redisdb.Connect(ctx, redisdb.Config{
			ConnectionURL:  cfg.RedisURL,
			KeyPrefix:      cfg.RedisKeyPrefix,
			RetryAttempts:  cfg.RedisRetryAttempts,
			RetryInterval:  cfg.RedisRetryInterval,
			ConnectTimeout: cfg.DBConnectionTimeout,
		})

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}

func getIdentityProvider(cfg *config.Config) (identity.Provider, error) {
	switch cfg.IdentityProvider {
	case models.IdentityProviderFirebase:
		return firebase.New(firebase.Config{
			APIKey:   cfg.FirebaseAPIKey,
			AuthURL:  cfg.FirebaseAuthURL,
			TokenURL: cfg.FirebaseTokenURL,
		}), nil

	case models.IdentityProviderLocal:
		return localprovider.New(), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownIdentityProvider, cfg.IdentityProvider)
}
