package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mailbox-triage/internal/adapters/openai"
	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/utils"
	"go.uber.org/zap"
)

// OpenAIFactory creates OpenAI classifiers
type OpenAIFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIFactory creates a new OpenAI factory
func NewOpenAIFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *OpenAIFactory {
	return &OpenAIFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates an OpenAI classifier. Self-hosted compatible
// endpoints may run without an API key.
func (f *OpenAIFactory) CreateClassifier(_ context.Context) (core.Classifier, error) {
	openaiCfg := f.cfg.GetOpenAI()

	if openaiCfg.APIKey == "" && openaiCfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	return openai.NewClassifier(openaiCfg, f.logger, f.textProcessor), nil
}
