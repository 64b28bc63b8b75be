// Package retrain folds accumulated human corrections back into training
// data: building the override map from review labels, applying it to the
// seen/unseen splits with promotion and upweighting, and producing the
// train/eval split itself.
package retrain

import (
	"fmt"

	"casewise/internal/dataset"
	"casewise/internal/logging"
	"casewise/internal/review"
	"casewise/internal/taxonomy"
)

// OverrideMap maps normalized procedure keys to human-corrected category
// labels. Duplicate procedures resolve last-write-wins, so the newest
// decision in the labels file is authoritative.
type OverrideMap map[string]string

// BuildOverrideMap folds review labels into an override map.
func BuildOverrideMap(labels []review.Label) OverrideMap {
	m := make(OverrideMap, len(labels))
	for _, l := range labels {
		key := dataset.Key(l.Procedure)
		if key == "" {
			continue
		}
		m[key] = taxonomy.NormalizeLabel(l.HumanCategory)
	}
	return m
}

// LoadOverrideMap reads a labels file and builds the override map. The
// required-column check happens inside the labels loader, before any merge
// work.
func LoadOverrideMap(path string) (OverrideMap, error) {
	labels, err := review.LoadLabels(path)
	if err != nil {
		return nil, fmt.Errorf("load override labels: %w", err)
	}
	m := BuildOverrideMap(labels)
	logging.Retrain("loaded %d overrides from %s (%d label records)", len(m), path, len(labels))
	return m, nil
}
