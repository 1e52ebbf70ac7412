package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey/mailbox-triage/internal/config"
	"github.com/mikey/mailbox-triage/internal/factory"
	"github.com/mikey/mailbox-triage/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestParseFlagsDefaults(t *testing.T) {
	flags, err := ParseFlags("spam-detector", nil)
	require.NoError(t, err)

	cfg, err := flags.Config()
	require.NoError(t, err)

	triage, err := cfg.GetTriage()
	require.NoError(t, err)
	assert.Equal(t, 0.95, triage.SpamThreshold)
	assert.Equal(t, "bedrock", cfg.GetLLM().Provider)
}

func TestParseFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: gemini
triage:
  spam_threshold: 0.5
openai:
  model_name: from-file
`), 0o600))

	flags, err := ParseFlags("spam-detector", []string{
		"--config", path,
		"--provider", "openai",
		"--trusted", "@example.org,@example.net",
		"-f", "message.eml",
	})
	require.NoError(t, err)
	assert.Equal(t, "message.eml", flags.InputFile)

	cfg, err := flags.Config()
	require.NoError(t, err)

	triage, err := cfg.GetTriage()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.GetLLM().Provider)
	assert.Equal(t, 0.5, triage.SpamThreshold, "unset flags keep file values")
	assert.Equal(t, []string{"@example.org", "@example.net"}, triage.TrustedDomains)
	assert.Equal(t, "from-file", cfg.GetOpenAI().ModelName)
}

func TestParseFlagsErrors(t *testing.T) {
	_, err := ParseFlags("spam-detector", []string{"--help"})
	assert.True(t, IsHelp(err))

	_, err = ParseFlags("spam-detector", []string{"stray"})
	assert.Error(t, err)

	_, err = ParseFlags("spam-detector", []string{"--threshold", "high"})
	assert.Error(t, err)
}

func TestProvideShared(t *testing.T) {
	container := dig.New()
	require.NoError(t, container.Provide(func() *zap.Logger { return zaptest.NewLogger(t) }))
	require.NoError(t, container.Provide(func() *config.Config { return config.NewFromViper(config.NewEmptyViper()) }))
	require.NoError(t, provideShared(container))

	err := container.Invoke(func(tp *utils.TextProcessor, f *factory.ClassifierFactory) {
		assert.NotNil(t, tp)
		assert.NotNil(t, f)
		assert.Equal(t, "hello", tp.Excerpt("  hello  ", utils.SnippetRunes))
	})
	require.NoError(t, err)
}
