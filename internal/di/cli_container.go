package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/core"
	"github.com/mikey/mailbox-triage/internal/factory"
	"github.com/mikey/mailbox-triage/internal/logging"
	"github.com/mikey/mailbox-triage/internal/ports"
	"github.com/mikey/mailbox-triage/internal/whitelist"
)

// ErrHelp is returned by ParseFlags when usage was requested
var ErrHelp = pflag.ErrHelp

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Input flags
	InputFile  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string

	// flagSet holds the config-backed flags, bound to viper keys
	flagSet *pflag.FlagSet
}

// configFlags maps command line flags to configuration keys
var configFlags = []struct {
	flag, key, usage string
}{
	{"provider", "llm.provider", "LLM provider (bedrock, gemini, openai)"},
	{"threshold", "triage.spam_threshold", "Spam probability above which a message is spam"},
	{"trusted", "triage.trusted_domains", "Comma-separated trusted sender domains"},
	{"bedrock-region", "bedrock.region", "AWS region for Bedrock"},
	{"bedrock-model", "bedrock.model_id", "Bedrock model ID"},
	{"gemini-api-key", "gemini.api_key", "API key for Google Gemini"},
	{"gemini-model", "gemini.model_name", "Gemini model name"},
	{"openai-api-key", "openai.api_key", "API key for OpenAI"},
	{"openai-model", "openai.model_name", "OpenAI model name"},
	{"openai-base-url", "openai.base_url", "OpenAI-compatible API base URL"},
}

// ParseFlags parses command line arguments
func ParseFlags(name string, args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringVarP(&flags.InputFile, "file", "f", "", "Input email file (use stdin if not specified)")
	fs.BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVarP(&flags.ConfigFile, "config", "c", "", "Path to config file; flags override its values")

	defaults := config.NewEmptyViper()
	for _, cf := range configFlags {
		switch cf.key {
		case "triage.trusted_domains":
			fs.StringSlice(cf.flag, defaults.GetStringSlice(cf.key), cf.usage)
		case "triage.spam_threshold":
			fs.Float64(cf.flag, defaults.GetFloat64(cf.key), cf.usage)
		default:
			fs.String(cf.flag, defaults.GetString(cf.key), cf.usage)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	flags.flagSet = fs
	return flags, nil
}

// Config loads the configuration file, when given, and overlays every flag
// set on the command line
func (f *CLIFlags) Config() (*config.Config, error) {
	var cfg *config.Config
	if f.ConfigFile != "" {
		loaded, err := config.NewFromFile(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	v := cfg.GetViper()
	v.Set("cli.verbose", f.Verbose)
	if f.flagSet == nil {
		return cfg, nil
	}
	for _, cf := range configFlags {
		if err := v.BindPFlag(cf.key, f.flagSet.Lookup(cf.flag)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", cf.flag, err)
		}
	}
	return cfg, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(ctx context.Context, flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := flags.Config()
		if err != nil {
			return nil, err
		}
		if flags.ConfigFile != "" {
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier(ctx)
	}); err != nil {
		return nil, err
	}

	// Register decision policy
	if err := container.Provide(func(
		cfg *config.Config,
		classifier core.Classifier,
		logger *zap.Logger,
	) (*core.Policy, error) {
		triage, err := cfg.GetTriage()
		if err != nil {
			return nil, err
		}
		if len(triage.TrustedDomains) > 0 {
			logger.Info("Using trusted domains", zap.Strings("domains", triage.TrustedDomains))
		}
		checker := whitelist.NewChecker(triage.TrustedDomains, logger)
		return core.NewPolicy(classifier, checker, triage.SpamThreshold, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// IsHelp reports whether err came from a --help request
func IsHelp(err error) bool {
	return errors.Is(err, ErrHelp)
}
