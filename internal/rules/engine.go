package rules

import (
	"fmt"
	"strings"

	"casewise/internal/logging"
	"casewise/internal/taxonomy"
)

// Engine applies an ordered rule table to (procedure text, service list)
// pairs. The rule table is fixed at construction; Categorize is safe for
// concurrent use.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine over the given rule table. Passing nil uses the
// built-in default table.
func NewEngine(table []Rule) *Engine {
	if table == nil {
		table = DefaultRules()
	}
	return &Engine{rules: table}
}

// Rules returns the engine's rule table in priority order.
func (e *Engine) Rules() []Rule { return e.rules }

// Categorize maps a procedure description and its service list onto exactly
// one leaf category. It never fails: absence of evidence resolves to Other,
// and ambiguity resolves deterministically to the first category found (in
// service-then-rule order) with a warning.
func (e *Engine) Categorize(procedure string, services []string) (taxonomy.Category, []string) {
	var warnings []string
	procedureUpper := strings.ToUpper(strings.TrimSpace(procedure))

	categories := e.matchServices(services, procedureUpper)

	if len(categories) == 0 && procedureUpper != "" {
		categories = e.fallbackFromText(procedureUpper)
	}

	// Labor epidurals frequently arrive with no OB service attached; the
	// procedure text is the only signal.
	if (len(categories) == 0 || (len(categories) == 1 && categories[0] == taxonomy.Other)) &&
		strings.Contains(procedureUpper, "LABOR EPIDURAL") {
		categories = []taxonomy.Category{taxonomy.VaginalDelivery}
	}

	switch len(categories) {
	case 0:
		return taxonomy.Other, warnings
	case 1:
		return categories[0], warnings
	default:
		warnings = append(warnings, fmt.Sprintf(
			"multiple procedure categories detected for services %v: %v; using first: %s",
			services, categories, categories[0]))
		logging.EngineDebug("ambiguous categorization: services=%v categories=%v", services, categories)
		return categories[0], warnings
	}
}

// matchServices scans each service against the rule table in priority order.
// The first unexcluded match per service wins; OB/GYN services additionally
// trigger the delivery-type resolver regardless of rule matches.
func (e *Engine) matchServices(services []string, procedureUpper string) []taxonomy.Category {
	var categories []taxonomy.Category
	for _, service := range services {
		serviceUpper := strings.ToUpper(service)

		for _, rule := range e.rules {
			if !containsAny(serviceUpper, rule.Keywords) {
				continue
			}
			if len(rule.Exclude) > 0 &&
				(containsAny(serviceUpper, rule.Exclude) || containsAny(procedureUpper, rule.Exclude)) {
				continue
			}
			appendUnique(&categories, rule.Resolver.Resolve(procedureUpper))
			break
		}

		if containsAny(serviceUpper, []string{"GYN", "OB", "OBSTET"}) {
			appendUnique(&categories, ResolveOBGYN(procedureUpper))
		}
	}
	return categories
}

// fallbackFromText matches the rule table directly against the procedure text
// when the service list produced nothing.
func (e *Engine) fallbackFromText(procedureUpper string) []taxonomy.Category {
	for _, rule := range e.rules {
		if !containsAny(procedureUpper, rule.Keywords) {
			continue
		}
		if len(rule.Exclude) > 0 && containsAny(procedureUpper, rule.Exclude) {
			continue
		}
		return []taxonomy.Category{rule.Resolver.Resolve(procedureUpper)}
	}

	if cat := ResolveOBGYN(procedureUpper); cat != taxonomy.Other {
		return []taxonomy.Category{cat}
	}
	return nil
}

func appendUnique(categories *[]taxonomy.Category, cat taxonomy.Category) {
	for _, existing := range *categories {
		if existing == cat {
			return
		}
	}
	*categories = append(*categories, cat)
}

// TraceStep records one rule evaluation for the debug command.
type TraceStep struct {
	Service         string
	RuleName        string
	MatchedKeywords []string
	Excluded        bool
	ExcludedBy      []string
	Resolved        taxonomy.Category
}

// Trace re-runs categorization while recording every rule that matched or was
// vetoed, per service. The final (category, warnings) pair is identical to
// what Categorize returns for the same input.
func (e *Engine) Trace(procedure string, services []string) (taxonomy.Category, []string, []TraceStep) {
	var steps []TraceStep
	procedureUpper := strings.ToUpper(strings.TrimSpace(procedure))

	for _, service := range services {
		serviceUpper := strings.ToUpper(service)
		for _, rule := range e.rules {
			matched := matchedKeywords(serviceUpper, rule.Keywords)
			if len(matched) == 0 {
				continue
			}
			excludedBy := append(
				matchedKeywords(serviceUpper, rule.Exclude),
				matchedKeywords(procedureUpper, rule.Exclude)...)
			step := TraceStep{
				Service:         service,
				RuleName:        rule.Name,
				MatchedKeywords: matched,
				Excluded:        len(excludedBy) > 0,
				ExcludedBy:      excludedBy,
			}
			if !step.Excluded {
				step.Resolved = rule.Resolver.Resolve(procedureUpper)
			}
			steps = append(steps, step)
			if !step.Excluded {
				break
			}
		}
		if containsAny(serviceUpper, []string{"GYN", "OB", "OBSTET"}) {
			steps = append(steps, TraceStep{
				Service:         service,
				RuleName:        "obgyn",
				MatchedKeywords: matchedKeywords(serviceUpper, []string{"GYN", "OB", "OBSTET"}),
				Resolved:        ResolveOBGYN(procedureUpper),
			})
		}
	}

	cat, warnings := e.Categorize(procedure, services)
	return cat, warnings, steps
}

func matchedKeywords(text string, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			out = append(out, kw)
		}
	}
	return out
}
