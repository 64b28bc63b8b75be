package review

import (
	"os"
	"path/filepath"
	"testing"

	"casewise/internal/dataset"
	"casewise/internal/ml"
	"casewise/internal/rules"
	"casewise/internal/taxonomy"
)

// tablePredictor returns canned predictions per procedure text.
type tablePredictor struct {
	predictions map[string]ml.Prediction
}

func (p tablePredictor) Predict(texts []string) ([]ml.Prediction, error) {
	out := make([]ml.Prediction, len(texts))
	for i, text := range texts {
		out[i] = p.predictions[text]
	}
	return out, nil
}

func queueFixture() ([]dataset.Row, tablePredictor) {
	rows := []dataset.Row{
		{CaseID: "1", Procedure: "CABG WITH CPB"},
		{CaseID: "2", Procedure: "TAVR PROCEDURE"},
		{CaseID: "3", Procedure: "LABOR EPIDURAL"},
		{CaseID: "4", Procedure: "KNEE ARTHROSCOPY"},
	}
	preds := tablePredictor{predictions: map[string]ml.Prediction{
		// Agrees with rules, high confidence.
		"CABG WITH CPB": {Label: string(taxonomy.CardiacWithCPB), Confidence: 0.95},
		// Disagrees with rules (rules say without CPB), mid confidence.
		"TAVR PROCEDURE": {Label: string(taxonomy.CardiacWithCPB), Confidence: 0.80},
		// Agrees, low confidence.
		"LABOR EPIDURAL": {Label: string(taxonomy.VaginalDelivery), Confidence: 0.40},
		// Disagrees (rules say Other), low confidence.
		"KNEE ARTHROSCOPY": {Label: string(taxonomy.IntrathoracicNonCardiac), Confidence: 0.30},
	}}
	return rows, preds
}

func TestBuildQueuePriorityFocusAndOrder(t *testing.T) {
	rows, preds := queueFixture()
	cases, err := BuildQueue(rows, rules.NewEngine(nil), preds, FocusPriority, DefaultLowConfidence)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	// The confident agreement case (CABG) is not a priority.
	if len(cases) != 3 {
		t.Fatalf("got %d cases, want 3: %+v", len(cases), cases)
	}
	// Disagreements first, lowest confidence first within each group.
	if cases[0].Procedure != "KNEE ARTHROSCOPY" {
		t.Fatalf("cases[0] = %q, want the 0.30 disagreement", cases[0].Procedure)
	}
	if cases[1].Procedure != "TAVR PROCEDURE" {
		t.Fatalf("cases[1] = %q, want the 0.80 disagreement", cases[1].Procedure)
	}
	if cases[2].Procedure != "LABOR EPIDURAL" {
		t.Fatalf("cases[2] = %q, want the low-confidence agreement", cases[2].Procedure)
	}
}

func TestBuildQueueFocusFilters(t *testing.T) {
	rows, preds := queueFixture()
	engine := rules.NewEngine(nil)

	all, _ := BuildQueue(rows, engine, preds, FocusAll, DefaultLowConfidence)
	if len(all) != 4 {
		t.Fatalf("all: got %d, want 4", len(all))
	}

	dis, _ := BuildQueue(rows, engine, preds, FocusDisagreement, DefaultLowConfidence)
	if len(dis) != 2 {
		t.Fatalf("disagreement: got %d, want 2", len(dis))
	}
	for _, c := range dis {
		if !c.Disagreement {
			t.Fatalf("non-disagreement case in disagreement focus: %+v", c)
		}
	}

	low, _ := BuildQueue(rows, engine, preds, FocusLowConfidence, DefaultLowConfidence)
	if len(low) != 2 {
		t.Fatalf("low_confidence: got %d, want 2", len(low))
	}
	for _, c := range low {
		if c.MLConfidence >= DefaultLowConfidence {
			t.Fatalf("confident case in low_confidence focus: %+v", c)
		}
	}
}

func TestRecommendedPrefersRulesOnDisagreement(t *testing.T) {
	c := Case{
		RulePrediction: string(taxonomy.CardiacWithoutCPB),
		MLPrediction:   string(taxonomy.CardiacWithCPB),
		Disagreement:   true,
	}
	if got := c.Recommended(); got != string(taxonomy.CardiacWithoutCPB) {
		t.Fatalf("Recommended = %q, want the rule prediction", got)
	}
	c.Disagreement = false
	if got := c.Recommended(); got != string(taxonomy.CardiacWithCPB) {
		t.Fatalf("Recommended = %q, want the model prediction", got)
	}
}

func TestParseFocus(t *testing.T) {
	if _, err := ParseFocus("priority"); err != nil {
		t.Fatalf("ParseFocus(priority): %v", err)
	}
	if _, err := ParseFocus("everything"); err == nil {
		t.Fatal("ParseFocus accepted an unknown focus")
	}
}

func TestMergeLabelsDedupKeepsLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.csv")

	first := []Label{
		{Procedure: "CABG WITH CPB", HumanCategory: string(taxonomy.CardiacWithCPB), Confidence: 3},
		{Procedure: "TAVR PROCEDURE", HumanCategory: string(taxonomy.CardiacWithCPB), Confidence: 3},
	}
	if err := MergeLabels(path, first); err != nil {
		t.Fatalf("MergeLabels: %v", err)
	}

	// Correct the TAVR label; same join key, newer record wins.
	second := []Label{
		{Procedure: "tavr  procedure", HumanCategory: string(taxonomy.CardiacWithoutCPB), Confidence: 3},
	}
	if err := MergeLabels(path, second); err != nil {
		t.Fatalf("MergeLabels: %v", err)
	}

	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("got %d labels, want 2 after dedup", len(labels))
	}
	for _, l := range labels {
		if dataset.Key(l.Procedure) == "TAVR PROCEDURE" && l.HumanCategory != string(taxonomy.CardiacWithoutCPB) {
			t.Fatalf("dedup kept the older label: %+v", l)
		}
	}

	// Re-merging the same staged set changes nothing.
	if err := MergeLabels(path, second); err != nil {
		t.Fatalf("MergeLabels again: %v", err)
	}
	again, _ := LoadLabels(path)
	if len(again) != len(labels) {
		t.Fatalf("merge is not idempotent: %d vs %d rows", len(again), len(labels))
	}
}

func TestLoadLabelsMissingFileIsEmpty(t *testing.T) {
	labels, err := LoadLabels(filepath.Join(t.TempDir(), "absent.csv"))
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if len(labels) != 0 {
		t.Fatalf("got %d labels", len(labels))
	}
}

func TestLoadLabelsRequiresColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("procedure,notes\nCABG,hi\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadLabels(path); err == nil {
		t.Fatal("LoadLabels accepted a file without human_category")
	}
}

func TestLoadLabelsNormalizesHumanCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.csv")
	content := "procedure,human_category\nCABG,ProcedureCategory.CARDIAC_WITH_CPB\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	labels, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if labels[0].HumanCategory != string(taxonomy.CardiacWithCPB) {
		t.Fatalf("human category not normalized: %q", labels[0].HumanCategory)
	}
}

func TestProgressScopedToDataModelPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	p := Progress{DataPath: "a.csv", ModelPath: "m.gob", ReviewedIndices: []int{3, 1}}
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	same := LoadProgress(path, "a.csv", "m.gob")
	if len(same.ReviewedIndices) != 2 || !same.Reviewed(1) || !same.Reviewed(3) {
		t.Fatalf("matching pair should reuse progress: %+v", same)
	}

	other := LoadProgress(path, "a.csv", "other-model.gob")
	if len(other.ReviewedIndices) != 0 {
		t.Fatalf("mismatched model must start fresh: %+v", other)
	}

	missing := LoadProgress(filepath.Join(t.TempDir(), "none.json"), "a.csv", "m.gob")
	if len(missing.ReviewedIndices) != 0 {
		t.Fatalf("missing file must be empty progress: %+v", missing)
	}
}

func sessionFixture(t *testing.T, n int) SessionConfig {
	t.Helper()
	dir := t.TempDir()
	queue := make([]Case, n)
	for i := range queue {
		queue[i] = Case{
			Index:          i,
			CaseID:         "c" + string(rune('0'+i%10)),
			Procedure:      "PROCEDURE " + string(rune('A'+i%26)),
			RulePrediction: string(taxonomy.CardiacWithCPB),
			MLPrediction:   string(taxonomy.CardiacWithoutCPB),
			Disagreement:   true,
		}
	}
	return SessionConfig{
		Queue:        queue,
		LabelsPath:   filepath.Join(dir, "labels.csv"),
		ProgressPath: filepath.Join(dir, "progress.json"),
		DataPath:     "data.csv",
		ModelPath:    "model.gob",
	}
}

func TestSessionAutosaveAfterTenDecisions(t *testing.T) {
	cfg := sessionFixture(t, 15)
	s := NewSession(cfg)

	for i := 0; i < 10; i++ {
		if err := s.Accept(); err != nil {
			t.Fatalf("Accept %d: %v", i, err)
		}
	}

	if s.StagedCount() != 0 {
		t.Fatalf("staged buffer should be empty after autosave, has %d", s.StagedCount())
	}
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		t.Fatalf("LoadLabels: %v", err)
	}
	if len(labels) != 10 {
		t.Fatalf("labels file has %d rows, want 10", len(labels))
	}
}

func TestSessionFinishFlushesRemainder(t *testing.T) {
	cfg := sessionFixture(t, 5)
	s := NewSession(cfg)

	for i := 0; i < 3; i++ {
		if err := s.ChooseRule(); err != nil {
			t.Fatalf("ChooseRule: %v", err)
		}
	}
	if s.StagedCount() != 3 {
		t.Fatalf("staged = %d, want 3", s.StagedCount())
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	labels, _ := LoadLabels(cfg.LabelsPath)
	if len(labels) != 3 {
		t.Fatalf("labels file has %d rows, want 3", len(labels))
	}
}

func TestSessionSkipRecordsNothing(t *testing.T) {
	cfg := sessionFixture(t, 3)
	s := NewSession(cfg)

	if err := s.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	labels, _ := LoadLabels(cfg.LabelsPath)
	if len(labels) != 0 {
		t.Fatalf("skip must not produce labels, got %d", len(labels))
	}
	// Skipped case stays unreviewed, so a resumed session sees it again.
	resumed := NewSession(SessionConfig{
		Queue:        cfg.Queue,
		LabelsPath:   cfg.LabelsPath,
		ProgressPath: cfg.ProgressPath,
		DataPath:     cfg.DataPath,
		ModelPath:    cfg.ModelPath,
		Resume:       true,
	})
	if c, ok := resumed.Current(); !ok || c.Index != 0 {
		t.Fatalf("resumed session should present the skipped case, got %+v ok=%v", c, ok)
	}
}

func TestSessionResumeSkipsReviewed(t *testing.T) {
	cfg := sessionFixture(t, 4)
	s := NewSession(cfg)
	if err := s.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	cfg.Resume = true
	resumed := NewSession(cfg)
	c, ok := resumed.Current()
	if !ok {
		t.Fatal("resumed session exhausted early")
	}
	if c.Index != 1 {
		t.Fatalf("resumed at index %d, want 1", c.Index)
	}
}

func TestSessionChooseNumber(t *testing.T) {
	cfg := sessionFixture(t, 1)
	s := NewSession(cfg)

	if err := s.ChooseNumber(0); err == nil {
		t.Fatal("ChooseNumber(0) should fail")
	}
	if err := s.ChooseNumber(9); err != nil {
		t.Fatalf("ChooseNumber(9): %v", err)
	}
	if err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	labels, _ := LoadLabels(cfg.LabelsPath)
	if len(labels) != 1 {
		t.Fatalf("got %d labels", len(labels))
	}
	want, _ := taxonomy.ByNumber(9)
	if labels[0].HumanCategory != string(want) {
		t.Fatalf("human category = %q, want %q", labels[0].HumanCategory, want)
	}
}

func TestSessionExhaustion(t *testing.T) {
	cfg := sessionFixture(t, 2)
	s := NewSession(cfg)
	if err := s.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := s.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatal("queue should be exhausted")
	}
	if err := s.Accept(); err == nil {
		t.Fatal("Accept on exhausted queue should fail")
	}
}

func TestJournalRecordsDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	c := Case{Index: 0, Procedure: "TAVR PROCEDURE", RulePrediction: string(taxonomy.CardiacWithoutCPB), MLPrediction: string(taxonomy.CardiacWithCPB), MLConfidence: 0.8}
	if err := j.Record(c, string(taxonomy.CardiacWithoutCPB)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(c, string(taxonomy.CardiacWithCPB)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	history, err := j.History("TAVR PROCEDURE")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history))
	}
	// Oldest first; both decisions preserved even though the labels CSV
	// would have deduplicated them.
	if history[0] != string(taxonomy.CardiacWithoutCPB) || history[1] != string(taxonomy.CardiacWithCPB) {
		t.Fatalf("history order wrong: %v", history)
	}

	counts, err := j.SessionCounts()
	if err != nil {
		t.Fatalf("SessionCounts: %v", err)
	}
	if counts[j.SessionID()] != 2 {
		t.Fatalf("session count = %d, want 2", counts[j.SessionID()])
	}
}
