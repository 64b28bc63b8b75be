package hybrid

import (
	"strings"
	"testing"

	"casewise/internal/ml"
	"casewise/internal/rules"
	"casewise/internal/taxonomy"
)

// stubModel returns a fixed prediction for every text.
type stubModel struct {
	label      string
	confidence float64
}

func (s stubModel) PredictOne(string) (ml.Prediction, error) {
	return ml.Prediction{Label: s.label, Confidence: s.confidence}, nil
}

func (s stubModel) Predict(texts []string) ([]ml.Prediction, error) {
	out := make([]ml.Prediction, len(texts))
	for i := range texts {
		out[i], _ = s.PredictOne(texts[i])
	}
	return out, nil
}

func classify(t *testing.T, c *Classifier, procedure string, services []string) Result {
	t.Helper()
	result, err := c.Classify(procedure, services)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	return result
}

func TestNoModelRulesOnly(t *testing.T) {
	c := New(rules.NewEngine(nil))
	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodRules {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Category != taxonomy.CardiacWithCPB {
		t.Fatalf("category = %q", result.Category)
	}
	if result.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0 with no warnings", result.Confidence)
	}
}

func TestNoModelRuleWarningsLowerConfidence(t *testing.T) {
	c := New(rules.NewEngine(nil))
	// Two services resolving to distinct categories produce an ambiguity warning.
	result := classify(t, c, "COMBINED PROCEDURE", []string{"CARDIAC SURGERY", "NEUROSURGERY"})
	if result.Method != MethodRules {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8 with warnings", result.Confidence)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected an ambiguity warning")
	}
}

func TestHighConfidenceMLOverrides(t *testing.T) {
	model := stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.90}
	c := New(rules.NewEngine(nil), WithModel(model))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodMLOverride {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Category != taxonomy.CardiacWithoutCPB {
		t.Fatalf("category = %q, want the model's", result.Category)
	}
	if result.Alternative != taxonomy.CardiacWithCPB {
		t.Fatalf("alternative = %q, want the rule category", result.Alternative)
	}
	if result.Confidence != 0.90 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "model override") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing override warning: %v", result.Warnings)
	}
}

func TestHighConfidenceAgreementNoWarning(t *testing.T) {
	model := stubModel{label: string(taxonomy.CardiacWithCPB), confidence: 0.95}
	c := New(rules.NewEngine(nil), WithModel(model))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodMLOverride {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Alternative != "" {
		t.Fatalf("alternative = %q, want empty on agreement", result.Alternative)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestMidConfidenceDisagreementFlagsRules(t *testing.T) {
	model := stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.75}
	c := New(rules.NewEngine(nil), WithModel(model))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodRulesFlagged {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Category != taxonomy.CardiacWithCPB {
		t.Fatalf("category = %q, want the rules'", result.Category)
	}
	if result.Alternative != taxonomy.CardiacWithoutCPB {
		t.Fatalf("alternative = %q, want the model's", result.Alternative)
	}
}

func TestMidConfidenceAgreementBoosts(t *testing.T) {
	model := stubModel{label: string(taxonomy.CardiacWithCPB), confidence: 0.75}
	c := New(rules.NewEngine(nil), WithModel(model))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodRulesMLAgree {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", result.Confidence)
	}
}

func TestLowConfidenceIgnoresModel(t *testing.T) {
	model := stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.50}
	c := New(rules.NewEngine(nil), WithModel(model))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodRules {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Category != taxonomy.CardiacWithCPB {
		t.Fatalf("category = %q", result.Category)
	}
	if result.Alternative != "" {
		t.Fatalf("alternative = %q, want empty", result.Alternative)
	}
}

func TestUnknownMLLabelFallsBackToRules(t *testing.T) {
	model := stubModel{label: "Cardiothoracic deluxe", confidence: 0.99}
	c := New(rules.NewEngine(nil), WithModel(model))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodRules {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Category != taxonomy.CardiacWithCPB {
		t.Fatalf("category = %q", result.Category)
	}
	// The fallback diagnostic is not a rule warning: the rule result here is
	// clean, so the confidence stays at the clean-rules value.
	if result.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", result.Confidence)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Cardiothoracic deluxe") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warning should name the invalid label: %v", result.Warnings)
	}
}

func TestUnknownMLLabelKeepsWarnedRuleConfidence(t *testing.T) {
	model := stubModel{label: "not-a-real-category", confidence: 0.99}
	c := New(rules.NewEngine(nil), WithModel(model))

	// Two services resolving to different categories produce an ambiguity
	// warning, so the rules side is already at the warned confidence.
	result := classify(t, c, "CAROTID ENDARTERECTOMY", []string{"CARDIAC SURGERY", "VASCULAR SURGERY"})
	if result.Method != MethodRules {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", result.Confidence)
	}
}

// Legacy qualified labels from older model artifacts still parse through
// normalization.
func TestLegacyMLLabelNormalized(t *testing.T) {
	model := stubModel{label: "ProcedureCategory.CARDIAC_WITHOUT_CPB", confidence: 0.95}
	c := New(rules.NewEngine(nil), WithModel(model))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodMLOverride {
		t.Fatalf("method = %q", result.Method)
	}
	if result.Category != taxonomy.CardiacWithoutCPB {
		t.Fatalf("category = %q", result.Category)
	}
}

// Boundary confidences are inclusive on the upper branch.
func TestThresholdBoundariesInclusive(t *testing.T) {
	engine := rules.NewEngine(nil)

	// Exactly 0.85 overrides.
	c := New(engine, WithModel(stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.85}))
	if result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"}); result.Method != MethodMLOverride {
		t.Fatalf("at 0.85: method = %q, want ml_override", result.Method)
	}

	// Exactly the configurable threshold reaches the mid band.
	c = New(engine, WithModel(stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.7}))
	if result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"}); result.Method != MethodRulesFlagged {
		t.Fatalf("at 0.70: method = %q, want rules_flagged", result.Method)
	}

	// Just below the threshold falls back to rules.
	c = New(engine, WithModel(stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.699}))
	if result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"}); result.Method != MethodRules {
		t.Fatalf("below threshold: method = %q, want rules", result.Method)
	}
}

func TestCustomThreshold(t *testing.T) {
	model := stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.6}
	c := New(rules.NewEngine(nil), WithModel(model), WithThreshold(0.5))

	result := classify(t, c, "CABG WITH CPB", []string{"CARDIAC SURGERY"})
	if result.Method != MethodRulesFlagged {
		t.Fatalf("method = %q, want rules_flagged with lowered threshold", result.Method)
	}
}

func TestClassifyBatchMatchesSingle(t *testing.T) {
	model := stubModel{label: string(taxonomy.CardiacWithoutCPB), confidence: 0.9}
	c := New(rules.NewEngine(nil), WithModel(model))

	procedures := []string{"CABG WITH CPB", "TAVR PROCEDURE"}
	services := [][]string{{"CARDIAC SURGERY"}, {"CARDIAC SURGERY"}}

	batch, err := c.ClassifyBatch(procedures, services)
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	for i := range procedures {
		single := classify(t, c, procedures[i], services[i])
		if batch[i].Category != single.Category || batch[i].Method != single.Method {
			t.Fatalf("row %d: batch %+v != single %+v", i, batch[i], single)
		}
	}
}
