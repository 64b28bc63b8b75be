package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColumnMap names the logical columns of an input table. Sites export their
// case data under different headers; the map is injected rather than
// hardcoded so one binary serves all of them.
type ColumnMap struct {
	CaseID    string `yaml:"case_id"`
	Procedure string `yaml:"procedure"`
	Service   string `yaml:"service"`
	Label     string `yaml:"label"`
	Date      string `yaml:"date"`
	ASA       string `yaml:"asa"`
}

// DefaultColumnMap returns the column names used by the standard export
// format.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		CaseID:    "case_id",
		Procedure: "procedure",
		Service:   "service",
		Label:     "category",
		Date:      "date",
		ASA:       "asa_status",
	}
}

// LoadColumnMap reads a column map from a YAML file. Fields absent from the
// file keep their defaults.
func LoadColumnMap(path string) (ColumnMap, error) {
	cm := DefaultColumnMap()
	data, err := os.ReadFile(path)
	if err != nil {
		return cm, fmt.Errorf("read column map: %w", err)
	}
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return cm, fmt.Errorf("parse column map %s: %w", path, err)
	}
	if cm.Procedure == "" {
		return cm, fmt.Errorf("column map %s leaves the procedure column unnamed", path)
	}
	return cm, nil
}
