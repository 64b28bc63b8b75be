package rules

import "strings"

// Approach is the surgical approach detected from procedure text.
type Approach string

const (
	ApproachEndovascular Approach = "endovascular"
	ApproachOpen         Approach = "open"
	ApproachUnknown      Approach = ""
)

// Pathology is the intracerebral pathology class detected from procedure text.
type Pathology string

const (
	PathologyVascular    Pathology = "vascular"
	PathologyNonvascular Pathology = "nonvascular"
	PathologyUnknown     Pathology = ""
)

// Endovascular terms are checked before open terms: percutaneous and
// catheter-based wording wins even when the text also mentions open exposure.
var endovascularKeywords = []string{
	"ENDOVASCULAR",
	"PERCUTANEOUS",
	"TRANSCATHETER",
	"CATHETER-BASED",
	"CATHETER BASED",
	"STENT",
	"COIL",
	"EMBOLIZATION",
	"ANGIOPLASTY",
	"EVAR",
	"TEVAR",
	"THROMBECTOMY",
}

var openKeywords = []string{
	"OPEN",
	"CRANIOTOMY",
	"CRANIECTOMY",
	"ENDARTERECTOMY",
	"CLIPPING",
	"RESECTION",
	"EVACUATION",
	"EXPLORATION",
	"STERNOTOMY",
	"THORACOTOMY",
	"LAPAROTOMY",
}

var vascularPathologyKeywords = []string{
	"ANEURYSM",
	"AVM",
	"ARTERIOVENOUS",
	"HEMORRHAGE",
	"HEMATOMA",
	"MOYAMOYA",
	"CAVERNOMA",
	"FISTULA",
}

var nonvascularPathologyKeywords = []string{
	"TUMOR",
	"GLIOMA",
	"MENINGIOMA",
	"METASTASIS",
	"ABSCESS",
	"EPILEPSY",
	"SHUNT",
	"BIOPSY",
	"DECOMPRESSION",
	"DEEP BRAIN STIMULAT",
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DetectApproach classifies the surgical approach from procedure text.
// Endovascular terms are checked first; absence of any signal yields
// ApproachUnknown, never an error.
func DetectApproach(procedureText string) Approach {
	upper := strings.ToUpper(procedureText)
	if containsAny(upper, endovascularKeywords) {
		return ApproachEndovascular
	}
	if containsAny(upper, openKeywords) {
		return ApproachOpen
	}
	return ApproachUnknown
}

// DetectIntracerebralPathology classifies open intracerebral procedures into
// vascular vs nonvascular pathology. Vascular terms are checked first.
func DetectIntracerebralPathology(procedureText string) Pathology {
	upper := strings.ToUpper(procedureText)
	if containsAny(upper, vascularPathologyKeywords) {
		return PathologyVascular
	}
	if containsAny(upper, nonvascularPathologyKeywords) {
		return PathologyNonvascular
	}
	return PathologyUnknown
}
