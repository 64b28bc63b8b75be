package ml

import (
	"sort"
)

// LabelProb is one (label, probability) pair from a prediction.
type LabelProb struct {
	Label string
	Prob  float64
}

// Prediction is the model's answer for one text. Confidence is the maximum
// class probability; Top holds the three most probable labels in descending
// order.
type Prediction struct {
	Label      string
	Confidence float64
	Top        []LabelProb
}

// Classifier wraps a loaded pipeline for batch prediction.
type Classifier struct {
	artifact *Artifact
}

// NewClassifier wraps an artifact.
func NewClassifier(a *Artifact) *Classifier {
	return &Classifier{artifact: a}
}

// Metadata exposes the training metadata of the wrapped artifact.
func (c *Classifier) Metadata() Metadata { return c.artifact.Metadata }

// Predict classifies a batch of texts. One call transforms and scores the
// whole batch; callers should prefer batches over per-row calls.
func (c *Classifier) Predict(texts []string) ([]Prediction, error) {
	X, err := c.artifact.Pipeline.Extractor.Transform(texts)
	if err != nil {
		return nil, err
	}
	probs, err := c.artifact.Pipeline.Estimator.PredictProba(X)
	if err != nil {
		return nil, err
	}
	classes := c.artifact.Pipeline.Estimator.Classes()

	out := make([]Prediction, len(texts))
	for i, row := range probs {
		ranked := make([]LabelProb, len(row))
		for j, p := range row {
			ranked[j] = LabelProb{Label: classes[j], Prob: p}
		}
		sort.Slice(ranked, func(a, b int) bool { return ranked[a].Prob > ranked[b].Prob })

		top := ranked
		if len(top) > 3 {
			top = top[:3]
		}
		out[i] = Prediction{
			Label:      ranked[0].Label,
			Confidence: ranked[0].Prob,
			Top:        top,
		}
	}
	return out, nil
}

// PredictOne classifies a single text.
func (c *Classifier) PredictOne(text string) (Prediction, error) {
	preds, err := c.Predict([]string{text})
	if err != nil {
		return Prediction{}, err
	}
	return preds[0], nil
}
