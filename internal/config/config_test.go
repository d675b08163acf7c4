package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
universe:
  symbols: [TQQQ, SQQQ]
trading:
  max_positions: 2
  lookback_window: 50
  bars_per_day: 390
  initial_capital: 100000
predictor:
  lambda: 0.99
  init_p: 100
sigor:
  long_threshold: 0.52
  short_threshold: 0.48
  warmup_bars: 50
results:
  sink: memory
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TQQQ", "SQQQ"}, cfg.Universe.Symbols)
	assert.Equal(t, 2, cfg.Trading.MaxPositions)
}

func TestLoad_MissingUniverseFails(t *testing.T) {
	path := writeTempConfig(t, `
trading:
  max_positions: 2
  lookback_window: 50
  bars_per_day: 390
  initial_capital: 100000
predictor:
  lambda: 0.99
  init_p: 100
sigor:
  long_threshold: 0.52
  short_threshold: 0.48
  warmup_bars: 50
results:
  sink: memory
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_DuplicateSymbolFails(t *testing.T) {
	path := writeTempConfig(t, `
universe:
  symbols: [TQQQ, TQQQ]
trading:
  max_positions: 1
  lookback_window: 50
  bars_per_day: 390
  initial_capital: 100000
predictor:
  lambda: 0.99
  init_p: 100
sigor:
  long_threshold: 0.52
  short_threshold: 0.48
  warmup_bars: 50
results:
  sink: memory
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestResultsConfig_PostgresRequiresDSN(t *testing.T) {
	r := ResultsConfig{Sink: "postgres"}
	assert.Error(t, r.Validate())
	r.PostgresDSN = "postgres://localhost/db"
	assert.NoError(t, r.Validate())
}

func TestPredictorConfig_LambdaMustBeInRange(t *testing.T) {
	assert.Error(t, (&PredictorConfig{Lambda: 0, InitP: 1}).Validate())
	assert.Error(t, (&PredictorConfig{Lambda: 1.5, InitP: 1}).Validate())
	assert.NoError(t, (&PredictorConfig{Lambda: 0.99, InitP: 1}).Validate())
}

func TestDefault_IsValidOnceUniverseIsSet(t *testing.T) {
	cfg := Default()
	cfg.Universe.Symbols = []string{"TQQQ"}
	assert.NoError(t, cfg.Validate())
}
