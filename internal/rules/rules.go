// Package rules implements the deterministic keyword rule engine that maps
// service strings and free-text procedure descriptions onto the procedure
// category taxonomy.
//
// The rule table is ordered: earlier rules outrank later ones, and the first
// matching, non-excluded rule wins for a given service. Each rule carries its
// own subcategory resolver, so dispatch is by value, not by comparing category
// name strings at runtime.
package rules

import (
	"fmt"
	"os"
	"strings"

	"casewise/internal/taxonomy"

	"gopkg.in/yaml.v3"
)

// Rule is one ordered keyword rule. A rule matches when any keyword is a
// case-insensitive substring of the service text, unless an exclude keyword
// appears in the service text or the procedure text.
type Rule struct {
	// Name identifies the rule in debug traces.
	Name string

	// Keywords that trigger the rule (matched against upper-cased text).
	Keywords []string

	// Exclude keywords that veto the rule even when a keyword matched.
	Exclude []string

	// Resolver refines the match into a leaf category.
	Resolver Resolver
}

// DefaultRules returns the built-in rule table in priority order. Cardiac
// precedes major vessels so that combined services such as "CARDIAC VASC
// SURGERY" resolve through the cardiac resolver. The returned slice is a
// fresh copy; callers may not observe mutation through the engine.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "cardiac",
			Keywords: []string{"CARDIAC", "HEART", "CABG", "CORONARY", "VALVE", "AVR", "MVR", "TAVR", "CARDIOTHORACIC"},
			Exclude:  []string{"NON-CARDIAC", "NON CARDIAC"},
			Resolver: cardiacResolver{},
		},
		{
			Name:     "intracerebral",
			Keywords: []string{"NEUROSURG", "CRANI", "INTRACRANIAL", "INTRACEREBRAL", "NEUROLOGICAL SURGERY", "BRAIN"},
			Exclude:  []string{"SPINE", "SPINAL FUSION"},
			Resolver: intracerebralResolver{},
		},
		{
			Name:     "major-vessels",
			Keywords: []string{"VASC", "AORT", "CAROTID", "ENDARTERECTOMY", "ANEURYSM", "EVAR", "TEVAR"},
			Exclude:  []string{"MICROVASC"},
			Resolver: vascularResolver{},
		},
		{
			Name:     "intrathoracic",
			// No cardiac exclusion here: the cardiac rule outranks this one,
			// and excluding on CARDIAC would also veto "NON-CARDIAC" text.
			Keywords: []string{"THORACIC", "LUNG", "ESOPHAG", "MEDIASTIN", "VATS", "THORACOTOMY", "PULMONARY RESECTION"},
			Resolver: Static(taxonomy.IntrathoracicNonCardiac),
		},
	}
}

// ruleSpec is the YAML shape for a rule override file. Category names a
// resolver: "cardiac", "major-vessels", "intracerebral", or any canonical
// taxonomy label for a static mapping.
type ruleSpec struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Exclude  []string `yaml:"exclude"`
	Category string   `yaml:"category"`
}

type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML file. Rule order in the
// file is priority order.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}

	out := make([]Rule, 0, len(rf.Rules))
	for i, spec := range rf.Rules {
		if len(spec.Keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%q) has no keywords", i, spec.Name)
		}
		resolver, err := resolverFor(spec.Category)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, spec.Name, err)
		}
		out = append(out, Rule{
			Name:     spec.Name,
			Keywords: upperAll(spec.Keywords),
			Exclude:  upperAll(spec.Exclude),
			Resolver: resolver,
		})
	}
	return out, nil
}

func resolverFor(category string) (Resolver, error) {
	switch category {
	case "cardiac":
		return cardiacResolver{}, nil
	case "major-vessels":
		return vascularResolver{}, nil
	case "intracerebral":
		return intracerebralResolver{}, nil
	}
	if cat, ok := taxonomy.Parse(category); ok {
		return Static(cat), nil
	}
	return nil, fmt.Errorf("unknown rule category %q", category)
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
