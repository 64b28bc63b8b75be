package retrain

import (
	"errors"
	"fmt"
	"os"

	"casewise/internal/dataset"
	"casewise/internal/logging"
	"casewise/internal/taxonomy"
)

// DefaultMultiplier is how many total copies of a true correction land in
// the retrain set. The extra copies upweight human corrections so the
// estimator sees them more often than the base data would imply.
const DefaultMultiplier = 3

// ErrEmptyOverrides is returned when the override map has no entries:
// retraining with zero corrections is a configuration error, not a no-op.
var ErrEmptyOverrides = errors.New("override map is empty")

// MergeConfig names the inputs and outputs of one merge run.
type MergeConfig struct {
	SeenPath   string
	UnseenPath string
	LabelsPath string

	// ProcedureColumn and LabelColumn address the datasets; both must exist
	// in the seen and unseen tables.
	ProcedureColumn string
	LabelColumn     string

	RetrainOut string
	EvalOut    string

	// Multiplier is the total copy count for true corrections; values < 1
	// fall back to DefaultMultiplier.
	Multiplier int

	// Force allows overwriting existing outputs.
	Force bool
}

// MergeMetrics summarizes what a merge did.
type MergeMetrics struct {
	Overrides       int
	SeenRelabeled   int
	TrueCorrections int
	Promoted        int
	RetrainRows     int
	EvalRows        int
}

type mergeRow struct {
	record    []string
	key       string
	corrected bool
}

// Merge applies the override map to the seen/unseen pair and writes the
// retrain and remaining-eval sets. It fails fast, before any write, on
// missing inputs, existing outputs without Force, or an empty override map.
// Re-running with the same inputs yields identical row counts.
func Merge(cfg MergeConfig) (MergeMetrics, error) {
	var metrics MergeMetrics

	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.ProcedureColumn == "" {
		cfg.ProcedureColumn = "procedure"
	}
	if cfg.LabelColumn == "" {
		cfg.LabelColumn = "category"
	}

	for _, input := range []string{cfg.SeenPath, cfg.UnseenPath, cfg.LabelsPath} {
		if _, err := os.Stat(input); err != nil {
			return metrics, fmt.Errorf("required input %s: %w", input, err)
		}
	}
	if !cfg.Force {
		for _, output := range []string{cfg.RetrainOut, cfg.EvalOut} {
			if _, err := os.Stat(output); err == nil {
				return metrics, fmt.Errorf("output %s already exists (use force to overwrite)", output)
			}
		}
	}

	overrides, err := LoadOverrideMap(cfg.LabelsPath)
	if err != nil {
		return metrics, err
	}
	if len(overrides) == 0 {
		return metrics, fmt.Errorf("%w: %s", ErrEmptyOverrides, cfg.LabelsPath)
	}
	metrics.Overrides = len(overrides)

	seen, err := dataset.Load(cfg.SeenPath)
	if err != nil {
		return metrics, err
	}
	unseen, err := dataset.Load(cfg.UnseenPath)
	if err != nil {
		return metrics, err
	}
	for _, tbl := range []struct {
		name  string
		table *dataset.Table
	}{{"seen", seen}, {"unseen", unseen}} {
		for _, col := range []string{cfg.ProcedureColumn, cfg.LabelColumn} {
			if _, ok := tbl.table.Column(col); !ok {
				return metrics, fmt.Errorf("%s dataset is missing column %q", tbl.name, col)
			}
		}
	}

	// Relabel seen rows; a replacement that changes the label is a true
	// correction, a no-op replacement is just a confirmation.
	var pool []mergeRow
	for i := 0; i < seen.Len(); i++ {
		key := dataset.Key(seen.Get(i, cfg.ProcedureColumn))
		row := mergeRow{record: append([]string(nil), seen.Records[i]...), key: key}
		if override, ok := overrides[key]; ok {
			metrics.SeenRelabeled++
			if taxonomy.NormalizeLabel(seen.Get(i, cfg.LabelColumn)) != override {
				row.corrected = true
				metrics.TrueCorrections++
			}
			setColumn(seen, row.record, cfg.LabelColumn, override)
		}
		pool = append(pool, row)
	}

	// Promote overridden unseen rows into the pool; the rest stay for eval.
	eval := dataset.NewTable(unseen.Header)
	for i := 0; i < unseen.Len(); i++ {
		key := dataset.Key(unseen.Get(i, cfg.ProcedureColumn))
		if override, ok := overrides[key]; ok {
			record := append([]string(nil), unseen.Records[i]...)
			corrected := taxonomy.NormalizeLabel(unseen.Get(i, cfg.LabelColumn)) != override
			setColumn(unseen, record, cfg.LabelColumn, override)
			pool = append(pool, mergeRow{record: record, key: key, corrected: corrected})
			metrics.Promoted++
			if corrected {
				metrics.TrueCorrections++
			}
		} else {
			eval.Append(unseen.Records[i])
		}
	}

	deduped := dedupRows(pool)

	// Upweight: each true correction appears Multiplier times in total.
	retrain := dataset.NewTable(seen.Header)
	for _, row := range deduped {
		retrain.Append(row.record)
	}
	for _, row := range deduped {
		if row.corrected {
			for c := 1; c < cfg.Multiplier; c++ {
				retrain.Append(row.record)
			}
		}
	}

	if err := retrain.Save(cfg.RetrainOut); err != nil {
		return metrics, err
	}
	if err := eval.Save(cfg.EvalOut); err != nil {
		return metrics, err
	}

	metrics.RetrainRows = retrain.Len()
	metrics.EvalRows = eval.Len()
	logging.Retrain("merge complete: %d overrides, %d relabeled, %d true corrections, %d promoted, %d retrain rows, %d eval rows",
		metrics.Overrides, metrics.SeenRelabeled, metrics.TrueCorrections, metrics.Promoted, metrics.RetrainRows, metrics.EvalRows)
	return metrics, nil
}

// dedupRows keeps the last occurrence per key, preserving first-seen key
// order. Rows with empty keys are kept as-is.
func dedupRows(rows []mergeRow) []mergeRow {
	latest := make(map[string]int, len(rows))
	var out []mergeRow
	for _, row := range rows {
		if row.key == "" {
			out = append(out, row)
			continue
		}
		if i, seen := latest[row.key]; seen {
			out[i] = row
			continue
		}
		latest[row.key] = len(out)
		out = append(out, row)
	}
	return out
}

func setColumn(t *dataset.Table, record []string, name, value string) {
	if col, ok := t.Column(name); ok && col < len(record) {
		record[col] = value
	}
}
