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

	"github.com/frahmantamala/estore-payments/internal/acquirer"
	"github.com/frahmantamala/estore-payments/internal/transport"
	"github.com/frahmantamala/estore-payments/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start the reconciliation sweep or the local acquirer sandbox.`,
}

var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Start the reconciliation sweep",
	Long:  `Periodically re-check pending payments with the provider and expire the ones past their window.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startReconcileWorker(); err != nil {
			fmt.Fprintf(os.Stderr, "Reconcile worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

var acquirerWorkerCmd = &cobra.Command{
	Use:   "acquirer",
	Short: "Start the acquirer sandbox",
	Long:  `Serve a local card/PIX/boleto acquirer that settles asynchronous charges and posts webhooks back.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startAcquirerWorker(); err != nil {
			fmt.Fprintf(os.Stderr, "Acquirer sandbox error: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	reconcileOnce     bool
	reconcileInterval time.Duration
	sandboxPort       int
	maxWorkers        int
	jobQueueSize      int
	webhookURL        string
	apiKey            string
)

func startReconcileWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	if reconcileOnce {
		summary, err := app.Monitor.Sweep(ctx)
		if err != nil {
			return err
		}
		app.Logger.Info("reconciliation sweep finished",
			"total_checked", summary.TotalChecked,
			"approved", summary.Approved,
			"still_pending", summary.StillPending,
			"failed", summary.Failed)
		return nil
	}

	interval := app.Config.Payment.Monitor.Interval
	if reconcileInterval > 0 {
		interval = reconcileInterval
	}
	app.Logger.Info("reconcile worker is running. Press Ctrl+C to stop.", "interval", interval)

	if err := app.Monitor.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	app.Logger.Info("reconcile worker stopped")
	return nil
}

func startAcquirerWorker() error {
	config, err := loadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()
	sb := config.Payment.Sandbox

	var opts []acquirer.Option
	if url := getStringFlag(webhookURL, sb.WebhookURL); url != "" {
		opts = append(opts, acquirer.WithNotifier(acquirer.NewWebhookNotifier(url, sb.WebhookSecret, config.Payment.CallTimeout)))
	} else {
		lg.Warn("no webhook url configured, settled charges are only visible by polling")
	}

	sandbox := acquirer.NewSandbox(acquirer.Config{
		MaxWorkers:     getIntFlag(maxWorkers, sb.MaxWorkers),
		JobQueueSize:   getIntFlag(jobQueueSize, sb.JobQueueSize),
		SettleDelayMin: sb.SettleDelayMin,
		SettleDelayMax: sb.SettleDelayMax,
	}, lg, opts...)

	handler := acquirer.NewHandler(transport.NewBaseHandler(lg), sandbox,
		getStringFlag(apiKey, config.Payment.Acquirer.APIKey))

	addr := fmt.Sprintf(":%d", getIntFlag(sandboxPort, sb.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: config.Server.ReadHeaderTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("starting acquirer sandbox", "address", addr)
		serverErrChan <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		lg.Info("received signal, shutting down acquirer sandbox", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		lg.Error("sandbox server shutdown error", "error", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		sandbox.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-ctx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
	return runErr
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	reconcileWorkerCmd.Flags().BoolVar(&reconcileOnce, "once", false, "Run a single sweep and exit")
	reconcileWorkerCmd.Flags().DurationVar(&reconcileInterval, "interval", 0, "Sweep interval (overrides config)")

	acquirerWorkerCmd.Flags().IntVar(&sandboxPort, "port", 0, "Listen port (overrides config)")
	acquirerWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of settlement workers (overrides config)")
	acquirerWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Settlement queue buffer size (overrides config)")
	acquirerWorkerCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Callback URL for settled charges (overrides config)")
	acquirerWorkerCmd.Flags().StringVar(&apiKey, "api-key", "", "Bearer key clients must send (overrides config)")

	workerCmd.AddCommand(reconcileWorkerCmd)
	workerCmd.AddCommand(acquirerWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
