package factory

import (
	"os"

	"github.com/mikey/mailbox-triage/internal/adapters/filter"
	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/ports"
	"go.uber.org/zap"
)

// FilterFactory creates single-message filters
type FilterFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	policy *core.Policy
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, policy *core.Policy) *FilterFactory {
	return &FilterFactory{
		cfg:    cfg,
		logger: logger,
		policy: policy,
	}
}

// CreateEmailFilter creates the command-line filter
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	return filter.NewCliFilter(f.policy, f.logger, os.Stdout, f.cfg.GetBool("cli.verbose")), nil
}
