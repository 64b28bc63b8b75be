package review

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"casewise/internal/logging"
)

// Progress records which queue indices have been reviewed for one specific
// (data, model) pair. Progress from a different pair is never reused.
type Progress struct {
	DataPath        string `json:"data_path"`
	ModelPath       string `json:"model_path"`
	ReviewedIndices []int  `json:"reviewed_indices"`
}

// LoadProgress reads prior progress scoped to the given paths. A missing
// file, unreadable file, or a path mismatch all yield empty progress rather
// than an error: stale progress is worthless, not fatal.
func LoadProgress(path, dataPath, modelPath string) Progress {
	empty := Progress{DataPath: dataPath, ModelPath: modelPath}

	data, err := os.ReadFile(path)
	if err != nil {
		return empty
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		logging.Get(logging.CategoryReview).Warn("unreadable progress file %s: %v", path, err)
		return empty
	}
	if p.DataPath != dataPath || p.ModelPath != modelPath {
		logging.Review("progress file %s is for a different (data, model) pair; starting fresh", path)
		return empty
	}
	return p
}

// Save writes progress to path. Indices are sorted for stable files.
func (p Progress) Save(path string) error {
	sort.Ints(p.ReviewedIndices)
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}
	return nil
}

// Reviewed reports whether index i is already reviewed.
func (p Progress) Reviewed(i int) bool {
	for _, idx := range p.ReviewedIndices {
		if idx == i {
			return true
		}
	}
	return false
}

// MarkReviewed records index i. No-op when already present.
func (p *Progress) MarkReviewed(i int) {
	if !p.Reviewed(i) {
		p.ReviewedIndices = append(p.ReviewedIndices, i)
	}
}
