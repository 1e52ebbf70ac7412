package openai

import (
	"context"
	"fmt"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Classifier scores text with an OpenAI chat model
type Classifier struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifier creates a new OpenAI classifier. A non-empty BaseURL points
// the client at an OpenAI-compatible endpoint.
func NewClassifier(cfg config.OpenAIConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Classifier{
		client:        openai.NewClientWithConfig(clientCfg),
		modelName:     cfg.ModelName,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		topP:          cfg.TopP,
		maxBodySize:   cfg.MaxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Score returns the model's spam probability for text
func (c *Classifier) Score(ctx context.Context, text string) (float64, error) {
	prompt := utils.SpamPrompt(c.textProcessor.ProcessText(text, c.maxBodySize))

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: utils.SpamSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("empty response from OpenAI")
	}

	reply := resp.Choices[0].Message.Content
	score, err := utils.ParseSpamProbability(reply)
	if err != nil {
		c.logger.Debug("Unparseable model reply",
			zap.String("model", c.modelName),
			zap.String("request_id", resp.ID),
			zap.String("reply", reply))
		return 0, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	return score, nil
}
