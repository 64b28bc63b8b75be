package review

import (
	"fmt"
	"os"
	"strconv"

	"casewise/internal/dataset"
	"casewise/internal/logging"
	"casewise/internal/taxonomy"
)

// Label is one human review decision, as persisted in the labels file.
type Label struct {
	Procedure     string
	HumanCategory string
	RuleCategory  string
	MLCategory    string
	Confidence    int // Fixed placeholder, reserved for future graded confidence
	Notes         string
	SourceCaseID  string
}

// labelHeader is the column order of the labels CSV. The first two columns
// are required on read; the rest are informational.
var labelHeader = []string{
	"procedure", "human_category", "rule_category", "ml_category",
	"confidence", "notes", "source_case_id",
}

// LoadLabels reads a labels file. A missing file is an empty label set.
// Files lacking the required procedure/human_category columns are rejected.
func LoadLabels(path string) ([]Label, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	tbl, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	for _, required := range []string{"procedure", "human_category"} {
		if _, ok := tbl.Column(required); !ok {
			return nil, fmt.Errorf("labels file %s is missing required column %q", path, required)
		}
	}

	labels := make([]Label, tbl.Len())
	for i := range labels {
		conf, _ := strconv.Atoi(tbl.Get(i, "confidence"))
		labels[i] = Label{
			Procedure:     tbl.Get(i, "procedure"),
			HumanCategory: taxonomy.NormalizeLabel(tbl.Get(i, "human_category")),
			RuleCategory:  tbl.Get(i, "rule_category"),
			MLCategory:    tbl.Get(i, "ml_category"),
			Confidence:    conf,
			Notes:         tbl.Get(i, "notes"),
			SourceCaseID:  tbl.Get(i, "source_case_id"),
		}
	}
	return labels, nil
}

// MergeLabels appends staged labels to the labels file, deduplicating by
// normalized procedure key with the newest record winning, and writes the
// result back. Merging is idempotent: re-merging the same staged set leaves
// the file unchanged.
func MergeLabels(path string, staged []Label) error {
	existing, err := LoadLabels(path)
	if err != nil {
		return err
	}
	merged := dedupLabels(append(existing, staged...))

	tbl := dataset.NewTable(labelHeader)
	for _, l := range merged {
		tbl.Append([]string{
			l.Procedure, l.HumanCategory, l.RuleCategory, l.MLCategory,
			strconv.Itoa(l.Confidence), l.Notes, l.SourceCaseID,
		})
	}
	if err := tbl.Save(path); err != nil {
		return fmt.Errorf("write labels file: %w", err)
	}
	logging.Review("merged %d staged labels into %s (%d total)", len(staged), path, len(merged))
	return nil
}

// dedupLabels keeps the last occurrence per normalized procedure key,
// preserving first-seen order of the keys.
func dedupLabels(labels []Label) []Label {
	latest := make(map[string]Label, len(labels))
	var order []string
	for _, l := range labels {
		key := dataset.Key(l.Procedure)
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = l
	}
	out := make([]Label, len(order))
	for i, key := range order {
		out[i] = latest[key]
	}
	return out
}
