package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func resetState() {
	Close()
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
	configMu.Lock()
	config = loggingConfig{}
	configMu.Unlock()
	logsDir = ""
	workspace = ""
	logLevel = LevelInfo
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, ".casewise")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"engine": true,
				"ml": true,
				"review": true,
				"retrain": true,
				"dataset": true,
				"workers": true,
				"performance": true
			}
		}
	}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryEngine,
		CategoryML,
		CategoryReview,
		CategoryRetrain,
		CategoryDataset,
		CategoryWorkers,
		CategoryPerformance,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	// Convenience helpers write to their own categories too.
	Engine("Convenience engine log")
	EngineDebug("Convenience engine debug log")
	ML("Convenience ml log")
	Review("Convenience review log")
	Retrain("Convenience retrain log")
	Dataset("Convenience dataset log")
	Workers("Convenience workers log")

	Close()

	logsPath := filepath.Join(tempDir, ".casewise", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": false,
			"categories": {"boot": true, "engine": true}
		}
	}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be DISABLED (production mode)")
	}

	for _, cat := range []Category{CategoryBoot, CategoryEngine, CategoryML} {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be DISABLED when debug_mode=false", cat)
		}
	}

	// These should all be no-ops.
	Engine("This should NOT be logged")
	ML("This should NOT be logged")
	logger := Get(CategoryBoot)
	logger.Info("This should NOT be logged")
	logger.Error("This should NOT be logged")

	Close()

	logsPath := filepath.Join(tempDir, ".casewise", "logs")
	if _, err := os.Stat(logsPath); err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("Expected NO log files in production mode, but found %d files", len(entries))
		}
	}
}

// TestCategoryToggle tests individual category enable/disable
func TestCategoryToggle(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"engine": true,
				"ml": false,
				"review": false
			}
		}
	}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryEngine) {
		t.Error("engine should be enabled")
	}
	if IsCategoryEnabled(CategoryML) {
		t.Error("ml should be DISABLED")
	}
	if IsCategoryEnabled(CategoryReview) {
		t.Error("review should be DISABLED")
	}
	// Category absent from config defaults to enabled when debug_mode=true.
	if !IsCategoryEnabled(CategoryDataset) {
		t.Error("dataset (not in config) should default to enabled")
	}

	Engine("This SHOULD be logged")
	ML("This should NOT be logged")
	Review("This should NOT be logged")
	Dataset("This SHOULD be logged (default enabled)")

	Close()

	logsPath := filepath.Join(tempDir, ".casewise", "logs")
	entries, _ := os.ReadDir(logsPath)

	has := func(name string) bool {
		for _, e := range entries {
			if strings.Contains(e.Name(), name) {
				return true
			}
		}
		return false
	}

	if !has("engine") {
		t.Error("Expected engine log file")
	}
	if !has("dataset") {
		t.Error("Expected dataset log file")
	}
	if has("_ml.log") {
		t.Error("Should NOT have ml log file (disabled)")
	}
	if has("review") {
		t.Error("Should NOT have review log file (disabled)")
	}
}

// TestTimerLogging tests the timing helper
func TestTimerLogging(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{"logging": {"level": "debug", "debug_mode": true}}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	timer := StartTimer(CategoryEngine, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	Close()
}

// TestConcurrentGet exercises logger creation from multiple goroutines.
func TestConcurrentGet(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, `{"logging": {"level": "debug", "debug_mode": true}}`)

	resetState()
	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Get(CategoryEngine).Info("concurrent message %d", n)
			Get(CategoryWorkers).Info("concurrent message %d", n)
		}(i)
	}
	wg.Wait()
	Close()
}
