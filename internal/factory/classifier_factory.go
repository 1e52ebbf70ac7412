package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/utils"
	"go.uber.org/zap"
)

// ClassifierFactory creates the classifier selected by llm.provider
type ClassifierFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates a new classifier based on the configuration
func (f *ClassifierFactory) CreateClassifier(ctx context.Context) (core.Classifier, error) {
	provider := f.cfg.GetLLM().Provider

	var (
		classifier core.Classifier
		err        error
	)
	switch provider {
	case "bedrock":
		classifier, err = NewBedrockFactory(f.cfg, f.logger, f.textProcessor).CreateClassifier(ctx)
	case "gemini":
		classifier, err = NewGeminiFactory(f.cfg, f.logger, f.textProcessor).CreateClassifier(ctx)
	case "openai":
		classifier, err = NewOpenAIFactory(f.cfg, f.logger, f.textProcessor).CreateClassifier(ctx)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("Created classifier", zap.String("provider", provider))
	return classifier, nil
}
