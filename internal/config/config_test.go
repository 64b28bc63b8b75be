package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Classifier.MLThreshold, cfg.Classifier.MLThreshold)
	assert.Equal(t, 3, cfg.Retrain.Multiplier)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".casewise", "config.json")

	cfg := DefaultConfig()
	cfg.Classifier.MLThreshold = 0.6
	cfg.Logging.DebugMode = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.6, loaded.Classifier.MLThreshold)
	assert.True(t, loaded.Logging.DebugMode, "debug mode lost in round trip")
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	partial := `{"classifier": {"ml_threshold": 0.5, "model_path": ".casewise/model.gob"}, "retrain": {"multiplier": 3, "unseen_ratio": 0.2}}`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Classifier.MLThreshold)
	assert.Equal(t, "priority", cfg.Review.Focus, "unrelated default lost")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CASEWISE_ML_THRESHOLD", "0.55")
	t.Setenv("CASEWISE_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 0.55, cfg.Classifier.MLThreshold)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Classifier.MLThreshold = 1.5
	assert.Error(t, cfg.Validate(), "accepted out-of-range threshold")

	cfg = DefaultConfig()
	cfg.Retrain.Multiplier = 0
	assert.Error(t, cfg.Validate(), "accepted zero multiplier")

	cfg = DefaultConfig()
	cfg.Retrain.UnseenRatio = 1.0
	assert.Error(t, cfg.Validate(), "accepted unseen ratio of 1")
}
