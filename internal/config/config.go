// Package config holds all casewise configuration, persisted as JSON at
// .casewise/config.json under the workspace.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all casewise configuration.
type Config struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	// Classifier settings
	Classifier ClassifierConfig `json:"classifier"`

	// Review loop settings
	Review ReviewConfig `json:"review"`

	// Retrain settings
	Retrain RetrainConfig `json:"retrain"`

	// Worker pool settings
	Workers WorkersConfig `json:"workers"`

	// Logging
	Logging LoggingConfig `json:"logging"`
}

// ClassifierConfig configures the hybrid classifier.
type ClassifierConfig struct {
	// MLThreshold is the minimum model confidence considered at all.
	MLThreshold float64 `json:"ml_threshold"`

	// RulesPath optionally overrides the built-in rule table (YAML).
	RulesPath string `json:"rules_path"`

	// ColumnMapPath optionally overrides input column names (YAML).
	ColumnMapPath string `json:"column_map_path"`

	// ModelPath is the default trained model artifact location.
	ModelPath string `json:"model_path"`
}

// ReviewConfig configures the review loop.
type ReviewConfig struct {
	LabelsPath    string  `json:"labels_path"`
	ProgressPath  string  `json:"progress_path"`
	JournalPath   string  `json:"journal_path"`
	Focus         string  `json:"focus"`
	LowConfidence float64 `json:"low_confidence"`
}

// RetrainConfig configures the merge step.
type RetrainConfig struct {
	// Multiplier is the total copy count for upweighted true corrections.
	Multiplier  int     `json:"multiplier"`
	UnseenRatio float64 `json:"unseen_ratio"`
	Seed        int64   `json:"seed"`
}

// WorkersConfig configures bulk processing parallelism.
type WorkersConfig struct {
	// RowWorkers is the requested row-level worker count; 0 means all cores.
	RowWorkers int `json:"row_workers"`

	// FileWorkers bounds file-level parallelism during batch preparation.
	FileWorkers int `json:"file_workers"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `json:"level"`      // debug, info, warn, error
	DebugMode  bool            `json:"debug_mode"` // Master toggle, false = no logging
	Categories map[string]bool `json:"categories"` // Per-category toggles
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Name:    "casewise",
		Version: "1.0.0",
		Classifier: ClassifierConfig{
			MLThreshold: 0.7,
			ModelPath:   filepath.Join(".casewise", "model.gob"),
		},
		Review: ReviewConfig{
			LabelsPath:    filepath.Join(".casewise", "review_labels.csv"),
			ProgressPath:  filepath.Join(".casewise", "review_progress.json"),
			JournalPath:   filepath.Join(".casewise", "review_journal.db"),
			Focus:         "priority",
			LowConfidence: 0.7,
		},
		Retrain: RetrainConfig{
			Multiplier:  3,
			UnseenRatio: 0.2,
			Seed:        42,
		},
		Workers: WorkersConfig{
			RowWorkers:  0,
			FileWorkers: 4,
		},
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Path returns the config file location under a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".casewise", "config.json")
}

// Load reads config from path, applying defaults for absent fields and then
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment override selected settings without
// editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CASEWISE_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
	if v := os.Getenv("CASEWISE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CASEWISE_ML_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Classifier.MLThreshold = f
		}
	}
	if v := os.Getenv("CASEWISE_MODEL_PATH"); v != "" {
		c.Classifier.ModelPath = v
	}
	if v := os.Getenv("CASEWISE_ROW_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers.RowWorkers = n
		}
	}
}

// Validate rejects configs that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Classifier.MLThreshold < 0 || c.Classifier.MLThreshold > 1 {
		return fmt.Errorf("classifier.ml_threshold %v out of [0, 1]", c.Classifier.MLThreshold)
	}
	if c.Review.LowConfidence < 0 || c.Review.LowConfidence > 1 {
		return fmt.Errorf("review.low_confidence %v out of [0, 1]", c.Review.LowConfidence)
	}
	if c.Retrain.Multiplier < 1 {
		return fmt.Errorf("retrain.multiplier %d must be at least 1", c.Retrain.Multiplier)
	}
	if c.Retrain.UnseenRatio <= 0 || c.Retrain.UnseenRatio >= 1 {
		return fmt.Errorf("retrain.unseen_ratio %v out of (0, 1)", c.Retrain.UnseenRatio)
	}
	return nil
}
