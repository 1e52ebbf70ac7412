package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/di"
	"github.com/mikey/mailbox-triage/internal/factory"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build the dependency injection container
	container, err := di.BuildContainer(ctx)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(func(deps runDeps) error { return run(ctx, deps) }); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

type runDeps struct {
	dig.In

	Logger         *zap.Logger
	Triage         config.TriageConfig
	Policy         *core.Policy
	Classifier     core.Classifier
	MailboxFactory *factory.MailboxFactory
	Mailbox        core.Mailbox
}

// run is the main application function that gets all dependencies injected
func run(ctx context.Context, deps runDeps) error {
	logger := deps.Logger
	defer logger.Sync()
	defer deps.MailboxFactory.Stop()

	// Close any resources that need closing
	defer func() {
		if closer, ok := deps.Classifier.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close classifier", zap.Error(err))
			}
		}
	}()

	marker, err := core.EnsureMarker(ctx, deps.Mailbox, deps.Triage.MarkerLabel, logger)
	if err != nil {
		logger.Error("Failed to prepare marker label", zap.Error(err))
		return err
	}

	reconciler := core.NewReconciler(deps.Mailbox, deps.Policy, marker, core.ReconcilerOptions{
		PollInterval:     deps.Triage.PollInterval,
		MaxBackoff:       deps.Triage.MaxBackoff,
		OperationTimeout: deps.Triage.OperationTimeout,
		MaxCandidates:    deps.Triage.MaxCandidates,
	}, logger)

	if err := reconciler.Run(ctx); err != nil {
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}
