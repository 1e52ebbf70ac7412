package config

import (
	"fmt"
	"time"
)

// TriageConfig represents the reconciliation loop configuration
type TriageConfig struct {
	PollInterval     time.Duration
	SpamThreshold    float64
	TrustedDomains   []string
	MarkerLabel      string
	MaxBackoff       time.Duration
	OperationTimeout time.Duration
	MaxCandidates    int
}

// MailboxConfig selects the mailbox backend
type MailboxConfig struct {
	Provider string
}

// GmailConfig represents the configuration for the Gmail API
type GmailConfig struct {
	UserID            string
	CredentialsFile   string
	Scopes            []string
	PageSize          int
	RequestsPerSecond float64
	Burst             int
}

// IMAPConfig represents the configuration for an IMAP mailbox
type IMAPConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	TLS          bool
	StartTLS     bool
	Inbox        string
	SpamFolder   string
	ExcerptBytes int
}

// TokenStoreConfig represents where OAuth tokens are persisted
type TokenStoreConfig struct {
	Type           string
	FilePath       string
	SQLitePath     string
	MySQLDSN       string
	KeyringService string
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetTriage returns the validated triage loop configuration
func (c *Config) GetTriage() (TriageConfig, error) {
	pollInterval, err := c.GetDuration("triage.poll_interval")
	if err != nil {
		return TriageConfig{}, fmt.Errorf("invalid triage.poll_interval: %w", err)
	}
	if pollInterval <= 0 {
		return TriageConfig{}, fmt.Errorf("triage.poll_interval must be positive, got %s", pollInterval)
	}

	maxBackoff, err := c.GetDuration("triage.max_backoff")
	if err != nil {
		return TriageConfig{}, fmt.Errorf("invalid triage.max_backoff: %w", err)
	}

	opTimeout, err := c.GetDuration("triage.operation_timeout")
	if err != nil {
		return TriageConfig{}, fmt.Errorf("invalid triage.operation_timeout: %w", err)
	}

	threshold := c.GetFloat64("triage.spam_threshold")
	if threshold < 0 || threshold > 1 {
		return TriageConfig{}, fmt.Errorf("triage.spam_threshold must be within [0,1], got %v", threshold)
	}

	maxCandidates := c.GetInt("triage.max_candidates_per_cycle")
	if maxCandidates < 0 {
		return TriageConfig{}, fmt.Errorf("triage.max_candidates_per_cycle must not be negative, got %d", maxCandidates)
	}

	marker := c.GetString("triage.marker_label")
	if marker == "" {
		return TriageConfig{}, fmt.Errorf("triage.marker_label must not be empty")
	}

	return TriageConfig{
		PollInterval:     pollInterval,
		SpamThreshold:    threshold,
		TrustedDomains:   c.GetStringSlice("triage.trusted_domains"),
		MarkerLabel:      marker,
		MaxBackoff:       maxBackoff,
		OperationTimeout: opTimeout,
		MaxCandidates:    maxCandidates,
	}, nil
}

// GetMailbox returns the mailbox backend configuration
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{
		Provider: c.GetString("mailbox.provider"),
	}
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		UserID:            c.GetString("gmail.user_id"),
		CredentialsFile:   c.GetString("gmail.credentials_file"),
		Scopes:            c.GetStringSlice("gmail.scopes"),
		PageSize:          c.GetInt("gmail.page_size"),
		RequestsPerSecond: c.GetFloat64("gmail.requests_per_second"),
		Burst:             c.GetInt("gmail.burst"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Host:         c.GetString("imap.host"),
		Port:         c.GetInt("imap.port"),
		Username:     c.GetString("imap.username"),
		Password:     c.GetString("imap.password"),
		TLS:          c.GetBool("imap.tls"),
		StartTLS:     c.GetBool("imap.starttls"),
		Inbox:        c.GetString("imap.inbox"),
		SpamFolder:   c.GetString("imap.spam_folder"),
		ExcerptBytes: c.GetInt("imap.excerpt_bytes"),
	}
}

// GetTokenStore returns the token store configuration
func (c *Config) GetTokenStore() TokenStoreConfig {
	return TokenStoreConfig{
		Type:           c.GetString("token_store.type"),
		FilePath:       c.GetString("token_store.file_path"),
		SQLitePath:     c.GetString("token_store.sqlite_path"),
		MySQLDSN:       c.GetString("token_store.mysql_dsn"),
		KeyringService: c.GetString("token_store.keyring_service"),
	}
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
