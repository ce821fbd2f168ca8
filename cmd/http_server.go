package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/estore-payments/internal/auth"
	"github.com/frahmantamala/estore-payments/internal/methodconfig"
	"github.com/frahmantamala/estore-payments/internal/payment"
	"github.com/frahmantamala/estore-payments/internal/transport"
	"github.com/frahmantamala/estore-payments/internal/transport/rest"
	"github.com/frahmantamala/estore-payments/internal/transport/swagger"
)

var (
	specPath      string
	withReconcile bool
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the payments HTTP API. With --reconcile the background sweep runs in the same process.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startHTTPServer(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	httpServerCmd.Flags().StringVar(&specPath, "spec", "api/openapi.yml", "OpenAPI document served on /openapi.yml")
	httpServerCmd.Flags().BoolVar(&withReconcile, "reconcile", false, "Run the reconciliation sweep alongside the API")
}

func startHTTPServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	if _, err := swagger.LoadSpec(ctx, specPath); err != nil {
		app.Logger.Warn("openapi document unavailable", "error", err)
	}

	base := transport.NewBaseHandler(app.Logger)
	authService := auth.NewService(app.Config.Security.JWTSecret, app.Config.Security.AdminTokenTTL)
	router := rest.NewRouter(rest.Handlers{
		Payment: payment.NewHandler(base, app.Payments, app.Monitor),
		Webhook: payment.NewWebhookHandler(base, app.Payments, app.Config.Security.WebhookSecret),
		Methods: methodconfig.NewHandler(base, app.Methods),
		Auth:    auth.NewHandler(base, authService),
		Health:  rest.NewHealthHandler(app.DB.DB, app.Gateway.Name()),
	}, specPath, app.Logger)

	srvCfg := app.Config.Server
	addr := fmt.Sprintf(":%d", srvCfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       srvCfg.ReadTimeout,
		WriteTimeout:      srvCfg.WriteTimeout,
		IdleTimeout:       srvCfg.IdleTimeout,
		ReadHeaderTimeout: srvCfg.ReadHeaderTimeout,
	}

	if withReconcile {
		go func() {
			if err := app.Monitor.Run(ctx, app.Config.Payment.Monitor.Interval); err != nil && !errors.Is(err, context.Canceled) {
				app.Logger.Error("reconciliation loop stopped", "error", err)
			}
		}()
	}

	serverErrChan := make(chan error, 1)
	go func() {
		app.Logger.Info("starting HTTP server", "address", addr, "gateway", app.Gateway.Name())
		serverErrChan <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.Logger.Info("received signal, shutting down...")
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server failed to start: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("server shutdown error", "error", err)
	}
	app.Close(shutdownCtx)

	app.Logger.Info("server stopped")
	return runErr
}
