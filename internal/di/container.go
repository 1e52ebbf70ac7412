package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/factory"
	"github.com/mikey/mailbox-triage/internal/logging"
	"github.com/mikey/mailbox-triage/internal/utils"
	"github.com/mikey/mailbox-triage/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container
// for the triage daemon. ctx bounds session setup and classifier creation.
func BuildContainer(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	// Register triage configuration
	if err := container.Provide(func(cfg *config.Config) (config.TriageConfig, error) {
		return cfg.GetTriage()
	}); err != nil {
		return nil, err
	}

	// Register trusted domains
	if err := container.Provide(func(triage config.TriageConfig, logger *zap.Logger) *whitelist.Checker {
		return whitelist.NewChecker(triage.TrustedDomains, logger)
	}); err != nil {
		return nil, err
	}

	// Register spam threshold
	if err := container.Provide(func(triage config.TriageConfig) float64 {
		return triage.SpamThreshold
	}); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier(ctx)
	}); err != nil {
		return nil, err
	}

	// Register decision policy
	if err := container.Provide(core.NewPolicy); err != nil {
		return nil, err
	}

	// Register mailbox factories
	if err := container.Provide(factory.NewTokenStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailboxFactory); err != nil {
		return nil, err
	}

	// Register mailbox; session failures surface here
	if err := container.Provide(func(f *factory.MailboxFactory) (core.Mailbox, error) {
		return f.CreateMailbox(ctx)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideShared registers the text processor and classifier factory used by
// both the daemon and the CLI
func provideShared(container *dig.Container) error {
	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	return container.Provide(factory.NewClassifierFactory)
}
