package querygen

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDBPath(t *testing.T) {
	c := Config{DBPath: "/tmp/x.db"}
	assert.Equal(t, "/tmp/x.db", c.resolveDBPath())

	c = Config{DBName: "plant", StorageDir: "local"}
	assert.Equal(t, "plant.db", c.resolveDBPath())

	c = Config{StorageDir: "cwd"}
	assert.Equal(t, "querygen.db", c.resolveDBPath())

	if home, err := os.UserHomeDir(); err == nil {
		c = Config{DBName: "plant"}
		assert.Equal(t, filepath.Join(home, ".querygen", "plant.db"), c.resolveDBPath())
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querygen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /data/plant.db
reference_date: "2024-10-19"
ontology_path: kb.owl
max_tokens: 256
chat:
  provider: gemini
  model: gemini-2.5-flash
  timeout: 30s
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/plant.db", cfg.DBPath)
	assert.Equal(t, "2024-10-19", cfg.ReferenceDate)
	assert.Equal(t, "kb.owl", cfg.OntologyPath)
	assert.Equal(t, 256, cfg.MaxTokens)
	assert.Equal(t, "gemini", cfg.Chat.Provider)
	assert.Equal(t, 30*time.Second, cfg.Chat.Timeout)

	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.True(t, cfg.LogQueries)
	assert.Equal(t, "querygen", cfg.DBName)
}

func TestLoadConfigEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querygen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat:\n  provider: openai\n"), 0o644))

	t.Setenv("QUERYGEN_CHAT_API_KEY", "sk-env")
	t.Setenv("QUERYGEN_LOG_QUERIES", "false")
	t.Setenv("QUERYGEN_MAX_ROUNDS", "1")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Chat.Provider)
	assert.Equal(t, "sk-env", cfg.Chat.APIKey)
	assert.False(t, cfg.LogQueries)
	assert.Equal(t, 1, cfg.MaxRounds)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat: [unterminated"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseLabel(t *testing.T) {
	for in, want := range map[string]Label{
		"kpi_calc":      LabelKPICalc,
		" Predictions ": LabelPredictions,
		"REPORT":        LabelReport,
	} {
		got, err := ParseLabel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseLabel("forecast")
	assert.ErrorIs(t, err, ErrUnknownLabel)
	assert.ErrorContains(t, err, `"forecast"`)
}

func TestIssueStrings(t *testing.T) {
	assert.Nil(t, issueStrings(nil))
	assert.Equal(t, []string{"one"}, issueStrings(errors.New("one")))

	var merr *multierror.Error
	merr = multierror.Append(merr, errors.New("a"), errors.New("b"))
	got := issueStrings(merr.ErrorOrNil())
	assert.Equal(t, "a", got[0])
	assert.Equal(t, "b", got[1])
	assert.False(t, strings.Contains(got[0], "errors occurred"))
}
