package rules

import (
	"testing"

	"casewise/internal/taxonomy"
)

func TestResolveCardiacNoCPBPrecedence(t *testing.T) {
	cases := []struct {
		procedure string
		want      taxonomy.Category
	}{
		{"CABG WITH CPB", taxonomy.CardiacWithCPB},
		{"MVR ON CARDIOPULMONARY BYPASS", taxonomy.CardiacWithCPB},
		{"TAVR PROCEDURE", taxonomy.CardiacWithoutCPB},
		{"TRANSCATHETER AORTIC VALVE IMPLANTATION", taxonomy.CardiacWithoutCPB},
		// No-pump wording wins even when a pump keyword is present too.
		{"OFF-PUMP CORONARY ARTERY BYPASS", taxonomy.CardiacWithoutCPB},
		{"OPCAB X2", taxonomy.CardiacWithoutCPB},
		{"REMOVAL VENTRICULAR ASSIST DEVICE", taxonomy.CardiacWithoutCPB},
		// No CPB signal at all defaults to with-CPB.
		{"AORTIC VALVE REPLACEMENT", taxonomy.CardiacWithCPB},
		{"", taxonomy.CardiacWithCPB},
	}
	for _, tc := range cases {
		if got := ResolveCardiac(tc.procedure); got != tc.want {
			t.Errorf("ResolveCardiac(%q) = %q, want %q", tc.procedure, got, tc.want)
		}
	}
}

func TestResolveVascular(t *testing.T) {
	cases := []struct {
		procedure string
		want      taxonomy.Category
	}{
		{"EVAR", taxonomy.MajorVesselsEndovascular},
		{"CAROTID STENT PLACEMENT", taxonomy.MajorVesselsEndovascular},
		{"CAROTID ENDARTERECTOMY", taxonomy.MajorVesselsOpen},
		{"OPEN AAA REPAIR", taxonomy.MajorVesselsOpen},
		// No approach signal defaults to open.
		{"AORTIC PROCEDURE", taxonomy.MajorVesselsOpen},
	}
	for _, tc := range cases {
		if got := ResolveVascular(tc.procedure); got != tc.want {
			t.Errorf("ResolveVascular(%q) = %q, want %q", tc.procedure, got, tc.want)
		}
	}
}

func TestResolveIntracerebral(t *testing.T) {
	cases := []struct {
		procedure string
		want      taxonomy.Category
	}{
		{"COIL EMBOLIZATION CEREBRAL ANEURYSM", taxonomy.IntracerebralEndovascular},
		{"MECHANICAL THROMBECTOMY", taxonomy.IntracerebralEndovascular},
		{"CRANIOTOMY ANEURYSM CLIPPING", taxonomy.IntracerebralVascularOpen},
		{"CRANIOTOMY EVACUATION SUBDURAL HEMATOMA", taxonomy.IntracerebralVascularOpen},
		{"CRANIOTOMY TUMOR RESECTION", taxonomy.IntracerebralNonvascularOpen},
		// Open approach with unknown pathology defaults to vascular.
		{"CRANIOTOMY EXPLORATION", taxonomy.IntracerebralVascularOpen},
		// No approach signal defaults to nonvascular open.
		{"BRAIN CASE", taxonomy.IntracerebralNonvascularOpen},
	}
	for _, tc := range cases {
		if got := ResolveIntracerebral(tc.procedure); got != tc.want {
			t.Errorf("ResolveIntracerebral(%q) = %q, want %q", tc.procedure, got, tc.want)
		}
	}
}

func TestResolveOBGYN(t *testing.T) {
	cases := []struct {
		procedure string
		want      taxonomy.Category
	}{
		{"URGENT CESAREAN SECTION", taxonomy.Cesarean},
		{"REPEAT C-SECTION", taxonomy.Cesarean},
		// Cesarean outranks labor keywords when both appear.
		{"CESAREAN AFTER FAILED LABOR", taxonomy.Cesarean},
		{"LABOR EPIDURAL", taxonomy.VaginalDelivery},
		{"SPONTANEOUS VAGINAL DELIVERY", taxonomy.VaginalDelivery},
		{"DIAGNOSTIC HYSTEROSCOPY", taxonomy.Other},
		{"", taxonomy.Other},
	}
	for _, tc := range cases {
		if got := ResolveOBGYN(tc.procedure); got != tc.want {
			t.Errorf("ResolveOBGYN(%q) = %q, want %q", tc.procedure, got, tc.want)
		}
	}
}

func TestDetectApproachEndovascularFirst(t *testing.T) {
	// Endovascular terms win even when open terms also appear.
	if got := DetectApproach("OPEN EXPOSURE FOR STENT PLACEMENT"); got != ApproachEndovascular {
		t.Fatalf("got %q, want %q", got, ApproachEndovascular)
	}
	if got := DetectApproach("CRANIOTOMY"); got != ApproachOpen {
		t.Fatalf("got %q, want %q", got, ApproachOpen)
	}
	if got := DetectApproach("UNREMARKABLE TEXT"); got != ApproachUnknown {
		t.Fatalf("got %q, want unknown", got)
	}
}

func TestDetectIntracerebralPathologyVascularFirst(t *testing.T) {
	// Vascular terms win when both classes appear.
	if got := DetectIntracerebralPathology("ANEURYSM NEAR TUMOR BED"); got != PathologyVascular {
		t.Fatalf("got %q, want %q", got, PathologyVascular)
	}
	if got := DetectIntracerebralPathology("GLIOMA BIOPSY"); got != PathologyNonvascular {
		t.Fatalf("got %q, want %q", got, PathologyNonvascular)
	}
	if got := DetectIntracerebralPathology("NOTHING HERE"); got != PathologyUnknown {
		t.Fatalf("got %q, want unknown", got)
	}
}

func TestStaticResolver(t *testing.T) {
	r := Static(taxonomy.IntrathoracicNonCardiac)
	if got := r.Resolve("ANYTHING"); got != taxonomy.IntrathoracicNonCardiac {
		t.Fatalf("got %q", got)
	}
}
