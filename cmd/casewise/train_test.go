package main

import (
	"fmt"
	"path/filepath"
	"testing"

	"casewise/internal/ml"
	"casewise/internal/rules"
)

func lowValueRows(n int) []preparedRow {
	rows := make([]preparedRow, n)
	for i := range rows {
		rows[i] = preparedRow{procedure: fmt.Sprintf("PROCEDURE %03d", i), category: "Other (procedure cat)"}
	}
	return rows
}

func TestSampleByValueShufflesWithinBands(t *testing.T) {
	rows := lowValueRows(100)

	sample := sampleByValue(rows, 10, 42)
	if len(sample) != 10 {
		t.Fatalf("sample size = %d, want 10", len(sample))
	}

	// A pre-sorted input must not simply yield its first rows.
	prefix := true
	for i, row := range sample {
		if row.procedure != rows[i].procedure {
			prefix = false
			break
		}
	}
	if prefix {
		t.Fatal("sample is the input prefix; band was not shuffled")
	}
}

func TestSampleByValueReproducibleBySeed(t *testing.T) {
	rows := lowValueRows(100)

	first := sampleByValue(rows, 10, 42)
	second := sampleByValue(rows, 10, 42)
	for i := range first {
		if first[i].procedure != second[i].procedure {
			t.Fatalf("same seed diverged at %d: %q vs %q", i, first[i].procedure, second[i].procedure)
		}
	}

	other := sampleByValue(rows, 10, 7)
	same := true
	for i := range first {
		if first[i].procedure != other[i].procedure {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced an identical sample")
	}
}

func TestSampleByValuePrefersHighBand(t *testing.T) {
	rows := lowValueRows(50)
	rows = append(rows,
		preparedRow{procedure: "TAVR AMBIGUOUS", category: "Cardiac without CPB", warnings: 1, score: 10},
		preparedRow{procedure: "COIL EMBOLIZATION", category: "Intracerebral endovascular", warnings: 1, score: 10},
	)

	sample := sampleByValue(rows, 4, 42)
	found := 0
	for _, row := range sample {
		if row.score >= 7 {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("high-value rows in sample = %d, want 2", found)
	}
}

func TestSummarizeEvaluationBinsAndDisagreements(t *testing.T) {
	engine := rules.NewEngine(nil)
	texts := []string{"CABG WITH CPB", "TAVR PROCEDURE", "KNEE ARTHROSCOPY"}
	preds := []ml.Prediction{
		{Label: "Cardiac with CPB", Confidence: 0.92},
		{Label: "Cardiac with CPB", Confidence: 0.75},
		{Label: "Other (procedure cat)", Confidence: 0.40},
	}

	s := summarizeEvaluation(texts, preds, engine)
	if s.high != 1 || s.medium != 1 || s.low != 1 {
		t.Fatalf("bins = %d/%d/%d, want 1/1/1", s.high, s.medium, s.low)
	}
	// Rules say TAVR is without CPB, so only the second case disagrees.
	if s.agreements != 2 {
		t.Fatalf("agreements = %d, want 2", s.agreements)
	}
	if s.flagged.Len() != 1 {
		t.Fatalf("flagged rows = %d, want 1", s.flagged.Len())
	}
	if got := s.flagged.Get(0, "rule_prediction"); got != "Cardiac without CPB" {
		t.Fatalf("rule_prediction = %q", got)
	}
	if got := s.flagged.Get(0, "ml_prediction"); got != "Cardiac with CPB" {
		t.Fatalf("ml_prediction = %q", got)
	}
}

func TestSummarizeEvaluationBoundariesInclusive(t *testing.T) {
	engine := rules.NewEngine(nil)
	texts := []string{"CABG WITH CPB", "CABG WITH CPB"}
	preds := []ml.Prediction{
		{Label: "Cardiac with CPB", Confidence: 0.85},
		{Label: "Cardiac with CPB", Confidence: 0.70},
	}

	s := summarizeEvaluation(texts, preds, engine)
	if s.high != 1 || s.medium != 1 || s.low != 0 {
		t.Fatalf("bins = %d/%d/%d, want 1/1/0", s.high, s.medium, s.low)
	}
}

func TestValidateArtifactAfterSave(t *testing.T) {
	texts := []string{
		"CABG WITH CARDIOPULMONARY BYPASS", "AORTIC VALVE REPLACEMENT ON PUMP",
		"TAVR PROCEDURE", "TRANSCATHETER VALVE REPLACEMENT",
		"CAROTID ENDARTERECTOMY", "OPEN AAA REPAIR",
		"LABOR EPIDURAL", "VAGINAL DELIVERY",
	}
	labels := []string{
		"Cardiac with CPB", "Cardiac with CPB",
		"Cardiac without CPB", "Cardiac without CPB",
		"Major vessels open", "Major vessels open",
		"Vaginal del", "Vaginal del",
	}
	artifact, err := ml.Train(texts, labels, "category")
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.gob")
	if err := artifact.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := validateArtifact(path, texts[0]); err != nil {
		t.Fatalf("validateArtifact: %v", err)
	}
}

func TestValidateArtifactMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.gob")
	if err := validateArtifact(path, "CABG"); err == nil {
		t.Fatal("expected an error for a missing artifact")
	}
}
