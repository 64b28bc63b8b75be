package taxonomy

import "testing"

func TestNormalizeLabelCanonicalPassthrough(t *testing.T) {
	for _, cat := range All {
		if got := NormalizeLabel(string(cat)); got != string(cat) {
			t.Fatalf("NormalizeLabel(%q) = %q, want unchanged", cat, got)
		}
	}
}

func TestNormalizeLabelLegacyQualified(t *testing.T) {
	cases := map[string]Category{
		"ProcedureCategory.CARDIAC_WITH_CPB": CardiacWithCPB,
		"ProcedureCategory.VAGINAL_DELIVERY": VaginalDelivery,
		"ProcedureCategory.OTHER":            Other,
	}
	for in, want := range cases {
		if got := NormalizeLabel(in); got != string(want) {
			t.Fatalf("NormalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeLabelIdempotent(t *testing.T) {
	inputs := []string{
		"ProcedureCategory.CESAREAN",
		"  Cardiac with CPB  ",
		"",
		"totally unknown label",
	}
	for _, cat := range All {
		inputs = append(inputs, string(cat))
	}
	for _, in := range inputs {
		once := NormalizeLabel(in)
		twice := NormalizeLabel(once)
		if once != twice {
			t.Fatalf("NormalizeLabel not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeLabelEmptyIsOther(t *testing.T) {
	if got := NormalizeLabel(""); got != string(Other) {
		t.Fatalf("NormalizeLabel(\"\") = %q, want %q", got, Other)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, ok := Parse("Cardiothoracic deluxe"); ok {
		t.Fatal("Parse accepted an unknown label")
	}
	if cat, ok := Parse("Cardiac without CPB"); !ok || cat != CardiacWithoutCPB {
		t.Fatalf("Parse(%q) = (%q, %v)", "Cardiac without CPB", cat, ok)
	}
}

func TestByNumberMatchesCanonicalOrder(t *testing.T) {
	if len(All) != 11 {
		t.Fatalf("taxonomy has %d leaves, want 11", len(All))
	}
	for i, want := range All {
		got, ok := ByNumber(i + 1)
		if !ok || got != want {
			t.Fatalf("ByNumber(%d) = (%q, %v), want %q", i+1, got, ok, want)
		}
	}
	if _, ok := ByNumber(0); ok {
		t.Fatal("ByNumber(0) accepted")
	}
	if _, ok := ByNumber(len(All) + 1); ok {
		t.Fatal("ByNumber out of range accepted")
	}
}
