// Package taxonomy defines the fixed procedure category taxonomy used across
// rule-based categorization, ML training data, and review tooling.
//
// Category labels are stable identifiers: they appear in exported CSV files,
// model artifacts, and review label files, and must never be renumbered or
// renamed once released.
package taxonomy

import "strings"

// Category is one leaf of the procedure category taxonomy.
type Category string

const (
	CardiacWithCPB               Category = "Cardiac with CPB"
	CardiacWithoutCPB            Category = "Cardiac without CPB"
	MajorVesselsEndovascular     Category = "Major vessels endovascular"
	MajorVesselsOpen             Category = "Major vessels open"
	IntracerebralEndovascular    Category = "Intracerebral endovascular"
	IntracerebralVascularOpen    Category = "Intracerebral vascular open"
	IntracerebralNonvascularOpen Category = "Intracerebral nonvascular open"
	Cesarean                     Category = "Cesarean del"
	VaginalDelivery              Category = "Vaginal del"
	IntrathoracicNonCardiac      Category = "Intrathoracic non-cardiac"
	Other                        Category = "Other (procedure cat)"
)

// All is the canonical category order used by labeling and review tools.
// The 1-based position of a category in this slice is its number key in the
// review interface.
var All = []Category{
	CardiacWithCPB,
	CardiacWithoutCPB,
	MajorVesselsEndovascular,
	MajorVesselsOpen,
	IntracerebralEndovascular,
	IntracerebralVascularOpen,
	IntracerebralNonvascularOpen,
	Cesarean,
	VaginalDelivery,
	IntrathoracicNonCardiac,
	Other,
}

// legacyMembers maps historical enum member names (from older exports that
// serialized qualified member names instead of labels) to current categories.
var legacyMembers = map[string]Category{
	"CARDIAC_WITH_CPB":               CardiacWithCPB,
	"CARDIAC_WITHOUT_CPB":            CardiacWithoutCPB,
	"MAJOR_VESSELS_ENDOVASCULAR":     MajorVesselsEndovascular,
	"MAJOR_VESSELS_OPEN":             MajorVesselsOpen,
	"INTRACEREBRAL_ENDOVASCULAR":     IntracerebralEndovascular,
	"INTRACEREBRAL_VASCULAR_OPEN":    IntracerebralVascularOpen,
	"INTRACEREBRAL_NONVASCULAR_OPEN": IntracerebralNonvascularOpen,
	"CESAREAN":                       Cesarean,
	"VAGINAL_DELIVERY":               VaginalDelivery,
	"INTRATHORACIC_NON_CARDIAC":      IntrathoracicNonCardiac,
	"OTHER":                          Other,
}

// String returns the stable label for the category.
func (c Category) String() string { return string(c) }

// Valid reports whether c is one of the canonical leaf categories.
func (c Category) Valid() bool {
	for _, cat := range All {
		if c == cat {
			return true
		}
	}
	return false
}

// Parse converts a label into a Category. The second return value is false
// when the label (after normalization) is not in the taxonomy.
func Parse(label string) (Category, bool) {
	c := Category(NormalizeLabel(label))
	return c, c.Valid()
}

// NormalizeLabel collapses any legacy or qualified category representation to
// the canonical taxonomy label. It is idempotent: normalizing an already
// canonical label returns it unchanged. Unknown labels are returned trimmed
// but otherwise untouched so callers can report them.
func NormalizeLabel(label string) string {
	normalized := strings.TrimSpace(label)
	if normalized == "" {
		return string(Other)
	}
	if member, ok := strings.CutPrefix(normalized, "ProcedureCategory."); ok {
		if cat, known := legacyMembers[member]; known {
			return string(cat)
		}
	}
	return normalized
}

// ByNumber returns the category for a 1-based number key as shown in the
// review interface. ok is false when n is out of range.
func ByNumber(n int) (Category, bool) {
	if n < 1 || n > len(All) {
		return Other, false
	}
	return All[n-1], true
}
