package retrain

import (
	"fmt"
	"math/rand"

	"casewise/internal/dataset"
	"casewise/internal/logging"
	"casewise/internal/taxonomy"
)

// Split defaults.
const (
	DefaultUnseenRatio = 0.2
	DefaultSeed        = 42
)

// SplitResult carries the two halves of a split and whether stratification
// was possible.
type SplitResult struct {
	Seen       *dataset.Table
	Unseen     *dataset.Table
	Stratified bool
}

// StratifiedSplit divides a labeled table into seen (training) and unseen
// (holdout) halves, keeping per-class proportions when every class has at
// least 2 samples. Otherwise it falls back to a plain shuffled split. The
// seed makes splits reproducible.
func StratifiedSplit(t *dataset.Table, labelColumn string, unseenRatio float64, seed int64) (SplitResult, error) {
	if _, ok := t.Column(labelColumn); !ok {
		return SplitResult{}, fmt.Errorf("split: table has no column %q", labelColumn)
	}
	if unseenRatio <= 0 || unseenRatio >= 1 {
		return SplitResult{}, fmt.Errorf("split: unseen ratio %v out of (0, 1)", unseenRatio)
	}

	rng := rand.New(rand.NewSource(seed))

	groups := make(map[string][]int)
	var labels []string
	for i := 0; i < t.Len(); i++ {
		label := taxonomy.NormalizeLabel(t.Get(i, labelColumn))
		if _, ok := groups[label]; !ok {
			labels = append(labels, label)
		}
		groups[label] = append(groups[label], i)
	}

	stratified := true
	for _, indices := range groups {
		if len(indices) < 2 {
			stratified = false
			break
		}
	}

	seen := dataset.NewTable(t.Header)
	unseen := dataset.NewTable(t.Header)

	if stratified {
		// Per-class shuffle and cut, so every class is represented on both
		// sides.
		for _, label := range labels {
			indices := append([]int(nil), groups[label]...)
			rng.Shuffle(len(indices), func(a, b int) {
				indices[a], indices[b] = indices[b], indices[a]
			})
			cut := int(float64(len(indices)) * unseenRatio)
			if cut < 1 {
				cut = 1
			}
			for k, i := range indices {
				if k < cut {
					unseen.Append(t.Records[i])
				} else {
					seen.Append(t.Records[i])
				}
			}
		}
	} else {
		logging.Retrain("class with <2 samples; falling back to unstratified split")
		indices := make([]int, t.Len())
		for i := range indices {
			indices[i] = i
		}
		rng.Shuffle(len(indices), func(a, b int) {
			indices[a], indices[b] = indices[b], indices[a]
		})
		cut := int(float64(len(indices)) * unseenRatio)
		for k, i := range indices {
			if k < cut {
				unseen.Append(t.Records[i])
			} else {
				seen.Append(t.Records[i])
			}
		}
	}

	logging.Retrain("split %d rows into %d seen / %d unseen (stratified=%v)",
		t.Len(), seen.Len(), unseen.Len(), stratified)
	return SplitResult{Seen: seen, Unseen: unseen, Stratified: stratified}, nil
}
