package app_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/internal/app"
	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/config"
	"github.com/xhad/ackaudit/pkg/sink"
	"github.com/xhad/ackaudit/pkg/store"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Database.Driver = "memory"
	cfg.Output.Dir = t.TempDir()
	cfg.LLM.Classifiers = []config.ClassifierConfig{
		{Name: "primary", Kind: "ollama", Model: "mistral", MaxTokens: 256},
		{Name: "secondary", Kind: "openai", Model: "gpt-4o-mini", APIKey: "sk-test", MaxTokens: 256},
	}
	return cfg
}

func TestNew(t *testing.T) {
	cfg := memoryConfig(t)

	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Auditor)
	assert.NotNil(t, a.Fetcher)
	assert.IsType(t, &store.MemoryStore{}, a.Store)
	assert.IsType(t, &sink.Dir{}, a.Sink)
	assert.Equal(t, []string{"primary", "secondary"}, a.Chain.Names())
	assert.NotNil(t, a.Chain.OnFallback)
	assert.NotNil(t, a.Loader(nil))
}

func TestNewChain_UnknownKind(t *testing.T) {
	_, err := app.NewChain([]config.ClassifierConfig{{Name: "x", Kind: "telepathy"}}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewStore_UnknownDriver(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Database.Driver = "sqlite"
	_, err := app.NewStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewLocal_CannotVerify(t *testing.T) {
	cfg := memoryConfig(t)
	a := app.NewLocal(cfg, nil, zerolog.Nop())

	_, err := a.Verify(context.Background(), &models.Extraction{})
	assert.ErrorContains(t, err, "not configured")
}
