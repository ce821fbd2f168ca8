package cmd

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/events"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"github.com/frahmantamala/estore-payments/internal/methodconfig"
	mcpostgres "github.com/frahmantamala/estore-payments/internal/methodconfig/postgres"
	"github.com/frahmantamala/estore-payments/internal/monitor"
	"github.com/frahmantamala/estore-payments/internal/orders"
	"github.com/frahmantamala/estore-payments/internal/payment"
	"github.com/frahmantamala/estore-payments/internal/transaction"
	txpostgres "github.com/frahmantamala/estore-payments/internal/transaction/postgres"
	"github.com/frahmantamala/estore-payments/pkg/logger"
)

// application is everything the server and the workers share.
type application struct {
	Config   *internal.Config
	Logger   *slog.Logger
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Repo     transaction.RepositoryAPI
	Methods  *methodconfig.Service
	Gateway  gateway.Gateway
	Monitor  *monitor.Monitor
	Bus      *events.EventBus
	Payments *payment.Service

	telemetry shutdownFunc
}

func newApplication(ctx context.Context) (*application, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	telemetry, err := setupTelemetry(ctx, cfg.Observability, lg)
	if err != nil {
		_ = telemetry(ctx)
		return nil, err
	}

	db, gdb, err := initDB(cfg.Database)
	if err != nil {
		_ = telemetry(ctx)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app := &application{Config: cfg, Logger: lg, DB: db, Gorm: gdb, telemetry: telemetry}
	if err := app.wire(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *application) wire(ctx context.Context) error {
	cfg := a.Config.Payment

	a.Repo = txpostgres.NewTransactionRepository(a.Gorm)
	a.Methods = methodconfig.NewService(mcpostgres.NewMethodConfigRepository(a.Gorm), a.Logger)
	if err := a.Methods.Refresh(ctx); err != nil {
		a.Logger.Warn("payment method settings not loaded, will retry on first use", "error", err)
	}

	source := artifact.NewSource()
	if cfg.RandomSeed != 0 {
		source = artifact.NewSeededSource(cfg.RandomSeed)
	}
	backends := gateway.Backends{
		Generator: artifact.NewGenerator(source),
		Settings:  a.Methods,
		Timeout:   cfg.CallTimeout,
		Logger:    a.Logger,
	}
	if cfg.Acquirer.BaseURL != "" {
		backends.Acquirer = gateway.NewAcquirerClient(gateway.AcquirerConfig{
			BaseURL: cfg.Acquirer.BaseURL,
			APIKey:  cfg.Acquirer.APIKey,
			Timeout: cfg.Acquirer.Timeout,
		})
	}
	if cfg.MercadoPago.AccessToken != "" {
		api, err := gateway.NewMercadoPagoAPI(cfg.MercadoPago.AccessToken)
		if err != nil {
			return err
		}
		backends.MercadoPago = gateway.NewMercadoPago(api, gateway.MercadoPagoConfig{
			NotificationURL: cfg.MercadoPago.NotificationURL,
			PayerEmail:      cfg.MercadoPago.PayerEmail,
			PixKey:          cfg.MercadoPago.PixKey,
		})
	}

	gw, err := gateway.Select(ctx, cfg.Mode, backends)
	if err != nil {
		return fmt.Errorf("select payment gateway: %w", err)
	}
	a.Gateway = gw
	a.Logger.Info("payment gateway selected", "gateway", gw.Name(), "mode", cfg.Mode)

	a.Bus = events.NewEventBus(a.Logger)
	if cfg.Orders.BaseURL != "" {
		handler := payment.NewEventHandler(orders.NewClient(orders.Config{
			BaseURL: cfg.Orders.BaseURL,
			APIKey:  cfg.Orders.APIKey,
			Timeout: cfg.Orders.Timeout,
		}), a.Logger)
		handler.RegisterEventHandlers(a.Bus)
	} else {
		a.Logger.Warn("orders API not configured, approved payments will not be handed off")
	}

	a.Monitor = monitor.New(a.Repo, gateway.NewSettler(cfg.Settlement, backends),
		monitor.WithLogger(a.Logger),
		monitor.WithBatchSize(cfg.Monitor.BatchSize),
		monitor.WithPublisher(a.Bus),
		monitor.WithMeter(meter()),
	)

	a.Payments = payment.NewService(payment.Dependencies{
		Gateway:    gw,
		Repository: a.Repo,
		Stats:      txpostgres.NewStatsRepository(a.DB),
		Methods:    a.Methods,
		Reconciler: a.Monitor,
		Publisher:  a.Bus,
		Logger:     a.Logger,
		Meter:      meter(),
	})
	return nil
}

// Close waits for in-flight event handlers before tearing down.
func (a *application) Close(ctx context.Context) {
	if a.Bus != nil {
		a.Bus.Wait()
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
	}
	if err := a.telemetry(ctx); err != nil {
		a.Logger.Error("telemetry shutdown error", "error", err)
	}
}

// initDB opens one pgx pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, *gorm.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		_ = dbConn.Close()
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return dbConn, gdb, nil
}
