// Package application assembles the batch gate components from
// configuration. Both the HTTP server and the CLI start from here.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/batchgate/internal/config"
	"github.com/JonMunkholm/batchgate/internal/core"
	"github.com/JonMunkholm/batchgate/internal/diagnostics"
	"github.com/JonMunkholm/batchgate/internal/remote"
	"github.com/JonMunkholm/batchgate/internal/storage"
)

// App holds the wired components and the resources they own.
type App struct {
	Config  *config.Config
	Service *core.Service
	Remote  *remote.Client
	Store   *storage.Store

	// ErrorLog is the plain-text rejection log.
	ErrorLog *diagnostics.FileSink

	// Rejections is the database rejection log; nil without DATABASE_URL.
	Rejections *diagnostics.PostgresSink

	pool *pgxpool.Pool
}

// Option adjusts how an App is built.
type Option func(*options)

type options struct {
	dialer remote.DialFunc
}

// WithDialer replaces the FTP dialer, mainly for tests.
func WithDialer(d remote.DialFunc) Option {
	return func(o *options) { o.dialer = d }
}

// New builds an App from cfg. When a database is configured it connects,
// creates the rejection_log table and records rejections there as well as
// in the log file. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.New(cfg.Storage.ValidDir, cfg.Storage.FilePrefix)
	if err != nil {
		return nil, err
	}

	fileSink, err := diagnostics.OpenFileSink(cfg.Storage.ErrorLogPath())
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Store:    store,
		ErrorLog: fileSink,
	}

	var sink diagnostics.Sink = fileSink
	var lister diagnostics.Lister = fileSink

	if cfg.Database.Enabled() {
		pool, err := openPool(ctx, &cfg.Database)
		if err != nil {
			fileSink.Close()
			return nil, err
		}
		app.pool = pool

		pg := diagnostics.NewPostgresSink(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, err
		}
		app.Rejections = pg
		sink = diagnostics.Multi(fileSink, pg)
		lister = pg
	}

	var remoteOpts []remote.Option
	if o.dialer != nil {
		remoteOpts = append(remoteOpts, remote.WithDialer(o.dialer))
	}
	app.Remote = remote.NewClient(cfg.FTP.DialTimeout, remoteOpts...)

	svc, err := core.NewService(core.Deps{
		Remote: app.Remote,
		Store:  store,
		Sink:   sink,
		Log:    lister,
	}, cfg.Download)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = svc

	return app, nil
}

// ConnectDefault opens the remote connection with the configured FTP
// credentials.
func (a *App) ConnectDefault(ctx context.Context) error {
	if a.Config.FTP.Host == "" {
		return errors.New("FTP_HOST is not set")
	}
	return a.Service.Connect(ctx, a.Config.FTP.Host, a.Config.FTP.User, a.Config.FTP.Password)
}

// StartRetention runs the rejection purge job until ctx ends. It returns
// at once when no database is configured.
func (a *App) StartRetention(ctx context.Context) {
	if a.Rejections == nil {
		return
	}
	core.StartRetentionScheduler(ctx, a.Rejections, a.Config.Retention)
}

// Close releases the remote connection, database pool and log file.
func (a *App) Close() error {
	var errs []error
	if a.Remote != nil {
		if err := a.Remote.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close remote: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.ErrorLog != nil {
		if err := a.ErrorLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close error log: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}
