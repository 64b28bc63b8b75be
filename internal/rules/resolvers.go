package rules

import (
	"strings"

	"casewise/internal/taxonomy"
)

// Resolver refines a coarse rule match into a leaf category using the
// upper-cased procedure text. Resolvers are pure functions over their input:
// no shared mutable state, no I/O.
type Resolver interface {
	Resolve(procedureUpper string) taxonomy.Category
}

// staticResolver maps a rule directly to one leaf category.
type staticResolver struct {
	category taxonomy.Category
}

func (r staticResolver) Resolve(string) taxonomy.Category { return r.category }

// Static returns a resolver that always yields the given category.
func Static(cat taxonomy.Category) Resolver { return staticResolver{category: cat} }

// cardiacResolver splits cardiac procedures by cardiopulmonary bypass usage.
type cardiacResolver struct{}

// Procedures that never run on pump. Checked before CPB keywords so that
// "OFF-PUMP BYPASS" resolves to without-CPB.
var noCPBKeywords = []string{
	"TAVR",
	"TAVI",
	"TRANSCATHETER",
	"OFF-PUMP",
	"OFF PUMP",
	"OPCAB",
	"BEATING HEART",
	"REMOVAL VENTRICULAR ASSIST DEVICE",
	"REMOVAL IMPLANT",
	"PERCUTANEOUS",
}

var cpbKeywords = []string{
	"BYPASS",
	"CPB",
	"PUMP",
	"ON-PUMP",
	"ON PUMP",
	"CARDIOPULMONARY BYPASS",
}

func (cardiacResolver) Resolve(procedureUpper string) taxonomy.Category {
	if containsAny(procedureUpper, noCPBKeywords) {
		return taxonomy.CardiacWithoutCPB
	}
	if containsAny(procedureUpper, cpbKeywords) {
		return taxonomy.CardiacWithCPB
	}
	// Unspecified cardiac text defaults to with-CPB.
	return taxonomy.CardiacWithCPB
}

// vascularResolver splits major vessel procedures by approach.
type vascularResolver struct{}

func (vascularResolver) Resolve(procedureUpper string) taxonomy.Category {
	if DetectApproach(procedureUpper) == ApproachEndovascular {
		return taxonomy.MajorVesselsEndovascular
	}
	return taxonomy.MajorVesselsOpen
}

// intracerebralResolver splits intracerebral procedures by approach, then by
// pathology for the open branch.
type intracerebralResolver struct{}

func (intracerebralResolver) Resolve(procedureUpper string) taxonomy.Category {
	switch DetectApproach(procedureUpper) {
	case ApproachEndovascular:
		return taxonomy.IntracerebralEndovascular
	case ApproachOpen:
		switch DetectIntracerebralPathology(procedureUpper) {
		case PathologyNonvascular:
			return taxonomy.IntracerebralNonvascularOpen
		default:
			// Unknown pathology on an open approach defaults to vascular.
			return taxonomy.IntracerebralVascularOpen
		}
	}
	// No approach signal at all is treated as nonvascular open. This default
	// deliberately differs from the cardiac one: a cardiac match with no CPB
	// signal assumes the pump, while an intracerebral match with no approach
	// signal assumes the routine nonvascular case.
	return taxonomy.IntracerebralNonvascularOpen
}

var cesareanKeywords = []string{"CESAREAN", "C-SECTION", "C SECTION"}

var vaginalKeywords = []string{"LABOR EPIDURAL", "VAGINAL", "DELIVERY", "LABOR"}

// ResolveOBGYN classifies OB/GYN procedures by delivery type. Cesarean
// keywords take precedence over vaginal/labor keywords; plain GYN procedures
// fall through to Other.
func ResolveOBGYN(procedureText string) taxonomy.Category {
	upper := strings.ToUpper(procedureText)
	if containsAny(upper, cesareanKeywords) {
		return taxonomy.Cesarean
	}
	if containsAny(upper, vaginalKeywords) {
		return taxonomy.VaginalDelivery
	}
	return taxonomy.Other
}

// ResolveCardiac exposes the cardiac CPB split for direct use (debug tooling,
// feature extraction).
func ResolveCardiac(procedureText string) taxonomy.Category {
	return cardiacResolver{}.Resolve(strings.ToUpper(procedureText))
}

// ResolveVascular exposes the major-vessel approach split for direct use.
func ResolveVascular(procedureText string) taxonomy.Category {
	return vascularResolver{}.Resolve(strings.ToUpper(procedureText))
}

// ResolveIntracerebral exposes the intracerebral split for direct use.
func ResolveIntracerebral(procedureText string) taxonomy.Category {
	return intracerebralResolver{}.Resolve(strings.ToUpper(procedureText))
}
