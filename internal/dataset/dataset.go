// Package dataset holds the tabular data model shared by classification,
// review, and retraining: CSV-backed tables with injected column names, the
// row view used by the engine, and the normalized procedure key that joins
// datasets which share no numeric ID.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"casewise/internal/logging"
)

// Row is the logical view of one input record, resolved through a ColumnMap.
type Row struct {
	CaseID    string
	Procedure string
	Services  []string
	Label     string
	Warnings  []string
}

// Table is a header-addressed CSV table. Records all have the same width as
// the header; lookups by column name are case-insensitive.
type Table struct {
	Header  []string
	Records [][]string

	index map[string]int
}

// NewTable builds an empty table with the given header.
func NewTable(header []string) *Table {
	t := &Table{Header: header}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		t.index[strings.ToLower(strings.TrimSpace(h))] = i
	}
}

// Column returns the position of a named column.
func (t *Table) Column(name string) (int, bool) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// Get returns the value of a named column in record i, or "" when the column
// is absent.
func (t *Table) Get(i int, name string) string {
	col, ok := t.Column(name)
	if !ok || col >= len(t.Records[i]) {
		return ""
	}
	return t.Records[i][col]
}

// Set writes the value of a named column in record i. Unknown columns are
// ignored.
func (t *Table) Set(i int, name, value string) {
	col, ok := t.Column(name)
	if !ok || col >= len(t.Records[i]) {
		return
	}
	t.Records[i][col] = value
}

// Append adds a record, padding or truncating it to the header width.
func (t *Table) Append(record []string) {
	row := make([]string, len(t.Header))
	copy(row, record)
	t.Records = append(t.Records, row)
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Records) }

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := NewTable(append([]string(nil), t.Header...))
	out.Records = make([][]string, len(t.Records))
	for i, r := range t.Records {
		out.Records[i] = append([]string(nil), r...)
	}
	return out
}

// Load reads a CSV file into a Table. The first record is the header.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	t := NewTable(records[0])
	for _, rec := range records[1:] {
		t.Append(rec)
	}
	logging.Dataset("loaded %s: %d rows, %d columns", path, t.Len(), len(t.Header))
	return t, nil
}

// Save writes the table to a CSV file, overwriting any existing file.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range t.Records {
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush dataset %s: %w", path, err)
	}
	logging.Dataset("saved %s: %d rows", path, t.Len())
	return nil
}

// Rows resolves the table into logical rows through the column map. Missing
// columns are tolerated: the affected fields stay blank and a warning is
// recorded once per missing column.
func (t *Table) Rows(cm ColumnMap) ([]Row, []string) {
	var warnings []string
	warn := func(logical, name string) {
		if name == "" {
			return
		}
		if _, ok := t.Column(name); !ok {
			msg := fmt.Sprintf("column %q (%s) not found; using blank values", name, logical)
			warnings = append(warnings, msg)
			logging.Get(logging.CategoryDataset).Warn("%s", msg)
		}
	}
	warn("procedure", cm.Procedure)
	warn("service", cm.Service)
	warn("label", cm.Label)

	rows := make([]Row, t.Len())
	for i := range t.Records {
		rows[i] = Row{
			CaseID:    t.Get(i, cm.CaseID),
			Procedure: t.Get(i, cm.Procedure),
			Services:  SplitServices(t.Get(i, cm.Service)),
			Label:     t.Get(i, cm.Label),
		}
	}
	return rows, warnings
}

// SplitServices splits a service cell into individual service strings.
// Exports concatenate multiple services with ";" or "/".
func SplitServices(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ';' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Key normalizes a procedure string into the join key used across seen and
// unseen datasets: whitespace-collapsed and case-folded.
func Key(procedure string) string {
	return strings.ToUpper(strings.Join(strings.Fields(procedure), " "))
}
