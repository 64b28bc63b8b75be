package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Estimator is the fit/predict contract the hybrid classifier depends on.
// Implementations must be safe for concurrent prediction after Fit.
type Estimator interface {
	Fit(X [][]float64, labels []string) error
	Predict(X [][]float64) ([]string, error)
	// PredictProba returns one probability row per input, with columns in
	// Classes() order.
	PredictProba(X [][]float64) ([][]float64, error)
	Classes() []string
}

// NaiveBayes is a multinomial naive Bayes estimator with Lidstone smoothing.
// It works on the extractor's nonnegative TF-IDF and indicator features.
// Fields are exported for gob serialization.
type NaiveBayes struct {
	Alpha          float64
	ClassLabels    []string
	ClassLogPrior  []float64
	FeatureLogProb [][]float64 // [class][feature]
}

// NewNaiveBayes returns an unfit estimator with the standard smoothing.
func NewNaiveBayes() *NaiveBayes {
	return &NaiveBayes{Alpha: 0.5}
}

// Fit learns class priors and per-class feature weights. Refitting replaces
// prior state.
func (nb *NaiveBayes) Fit(X [][]float64, labels []string) error {
	if len(X) == 0 || len(X) != len(labels) {
		return fmt.Errorf("fit: %d samples vs %d labels", len(X), len(labels))
	}
	nFeatures := len(X[0])

	classIndex := make(map[string]int)
	var classes []string
	for _, label := range labels {
		if _, ok := classIndex[label]; !ok {
			classIndex[label] = len(classes)
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)
	for i, c := range classes {
		classIndex[c] = i
	}

	counts := make([]float64, len(classes))
	featureSums := make([][]float64, len(classes))
	for i := range featureSums {
		featureSums[i] = make([]float64, nFeatures)
	}

	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), nFeatures)
		}
		c := classIndex[labels[i]]
		counts[c]++
		for j, v := range row {
			if v < 0 {
				return errors.New("fit: negative feature value")
			}
			featureSums[c][j] += v
		}
	}

	total := float64(len(X))
	nb.ClassLabels = classes
	nb.ClassLogPrior = make([]float64, len(classes))
	nb.FeatureLogProb = make([][]float64, len(classes))
	for c := range classes {
		nb.ClassLogPrior[c] = math.Log(counts[c] / total)
		var sum float64
		for _, v := range featureSums[c] {
			sum += v
		}
		denom := math.Log(sum + nb.Alpha*float64(nFeatures))
		nb.FeatureLogProb[c] = make([]float64, nFeatures)
		for j, v := range featureSums[c] {
			nb.FeatureLogProb[c][j] = math.Log(v+nb.Alpha) - denom
		}
	}
	return nil
}

// Classes returns the label set in probability-column order.
func (nb *NaiveBayes) Classes() []string { return nb.ClassLabels }

func (nb *NaiveBayes) jointLogLikelihood(row []float64) ([]float64, error) {
	if len(nb.ClassLabels) == 0 {
		return nil, errors.New("estimator is not fitted")
	}
	jll := make([]float64, len(nb.ClassLabels))
	for c := range nb.ClassLabels {
		if len(row) != len(nb.FeatureLogProb[c]) {
			return nil, fmt.Errorf("predict: row has %d features, want %d", len(row), len(nb.FeatureLogProb[c]))
		}
		s := nb.ClassLogPrior[c]
		for j, v := range row {
			if v != 0 {
				s += v * nb.FeatureLogProb[c][j]
			}
		}
		jll[c] = s
	}
	return jll, nil
}

// Predict returns the most likely label per row.
func (nb *NaiveBayes) Predict(X [][]float64) ([]string, error) {
	out := make([]string, len(X))
	for i, row := range X {
		jll, err := nb.jointLogLikelihood(row)
		if err != nil {
			return nil, err
		}
		best := 0
		for c := 1; c < len(jll); c++ {
			if jll[c] > jll[best] {
				best = c
			}
		}
		out[i] = nb.ClassLabels[best]
	}
	return out, nil
}

// PredictProba returns normalized class probabilities per row.
func (nb *NaiveBayes) PredictProba(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		jll, err := nb.jointLogLikelihood(row)
		if err != nil {
			return nil, err
		}
		out[i] = softmax(jll)
	}
	return out, nil
}

// softmax exponentiates shifted log-likelihoods into probabilities.
func softmax(logp []float64) []float64 {
	max := logp[0]
	for _, v := range logp[1:] {
		if v > max {
			max = v
		}
	}
	probs := make([]float64, len(logp))
	var sum float64
	for i, v := range logp {
		probs[i] = math.Exp(v - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
