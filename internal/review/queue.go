// Package review implements the human-correction loop: ranking cases for
// review, the resumable interactive session that captures decisions, and the
// label/progress/journal persistence behind it.
package review

import (
	"fmt"
	"sort"

	"casewise/internal/dataset"
	"casewise/internal/logging"
	"casewise/internal/ml"
	"casewise/internal/rules"
)

// Focus selects which cases enter the review queue.
type Focus string

const (
	FocusAll           Focus = "all"
	FocusDisagreement  Focus = "disagreement"
	FocusLowConfidence Focus = "low_confidence"
	// FocusPriority is the default: disagreement or low confidence.
	FocusPriority Focus = "priority"
)

// ParseFocus validates a focus name.
func ParseFocus(s string) (Focus, error) {
	switch Focus(s) {
	case FocusAll, FocusDisagreement, FocusLowConfidence, FocusPriority:
		return Focus(s), nil
	}
	return "", fmt.Errorf("unknown focus %q (want all, disagreement, low_confidence, or priority)", s)
}

// Case is one row queued for human review. Immutable once built.
type Case struct {
	Index          int
	CaseID         string
	Procedure      string
	MLPrediction   string
	MLConfidence   float64
	RulePrediction string
	Disagreement   bool
	Top            []ml.LabelProb
}

// Recommended is the default category offered to the reviewer: the rule
// prediction when the two sides disagree (the deterministic side is the
// safer default), otherwise the model's.
func (c Case) Recommended() string {
	if c.Disagreement {
		return c.RulePrediction
	}
	return c.MLPrediction
}

// DefaultLowConfidence is the queue's low-confidence cutoff.
const DefaultLowConfidence = 0.7

// Predictor is the batch prediction surface the queue needs from a model.
// *ml.Classifier satisfies it.
type Predictor interface {
	Predict(texts []string) ([]ml.Prediction, error)
}

// BuildQueue ranks dataset rows for review. Rule predictions run with an
// empty service list so both sides judge the same evidence: the procedure
// text. The model predicts the whole batch in one pass. Cases are ordered
// disagreements first, then lowest model confidence first.
func BuildQueue(rows []dataset.Row, engine *rules.Engine, model Predictor, focus Focus, lowConfidence float64) ([]Case, error) {
	timer := logging.StartTimer(logging.CategoryReview, "BuildQueue")
	defer timer.Stop()

	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = row.Procedure
	}
	preds, err := model.Predict(texts)
	if err != nil {
		return nil, fmt.Errorf("batch prediction for review queue: %w", err)
	}

	cases := make([]Case, 0, len(rows))
	for i, row := range rows {
		ruleCat, _ := engine.Categorize(row.Procedure, nil)
		c := Case{
			Index:          i,
			CaseID:         row.CaseID,
			Procedure:      row.Procedure,
			MLPrediction:   preds[i].Label,
			MLConfidence:   preds[i].Confidence,
			RulePrediction: string(ruleCat),
			Disagreement:   string(ruleCat) != preds[i].Label,
			Top:            preds[i].Top,
		}
		if !matchesFocus(c, focus, lowConfidence) {
			continue
		}
		cases = append(cases, c)
	}

	sort.SliceStable(cases, func(a, b int) bool {
		if cases[a].Disagreement != cases[b].Disagreement {
			return cases[a].Disagreement
		}
		return cases[a].MLConfidence < cases[b].MLConfidence
	})

	logging.Review("built review queue: %d of %d rows (focus=%s)", len(cases), len(rows), focus)
	return cases, nil
}

func matchesFocus(c Case, focus Focus, lowConfidence float64) bool {
	switch focus {
	case FocusDisagreement:
		return c.Disagreement
	case FocusLowConfidence:
		return c.MLConfidence < lowConfidence
	case FocusPriority:
		return c.Disagreement || c.MLConfidence < lowConfidence
	default:
		return true
	}
}
