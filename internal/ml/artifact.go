package ml

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"time"

	"casewise/internal/logging"
)

// Typed load errors. Callers decide whether to degrade to rules-only; this
// boundary never degrades silently.
var (
	ErrArtifactMissing = errors.New("model artifact not found")
	ErrArtifactCorrupt = errors.New("model artifact is corrupt")
)

// Metadata describes how a model was trained.
type Metadata struct {
	TrainingDate time.Time
	SampleCounts map[string]int
	Accuracy     float64
	LabelColumn  string
	Categories   []string
}

// Pipeline is a fit extractor plus a fit estimator.
type Pipeline struct {
	Extractor *Extractor
	Estimator Estimator
}

// Artifact is the serialized model: pipeline plus metadata.
type Artifact struct {
	Pipeline Pipeline
	Metadata Metadata
}

func init() {
	// Concrete estimator types crossing the gob boundary.
	gob.Register(&NaiveBayes{})
}

// Save writes the artifact to path.
func (a *Artifact) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(a); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	logging.ML("saved model artifact to %s (accuracy %.3f, %d categories)",
		path, a.Metadata.Accuracy, len(a.Metadata.Categories))
	return nil
}

// LoadArtifact reads an artifact from path. A missing file yields
// ErrArtifactMissing; anything undecodable yields ErrArtifactCorrupt.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	defer f.Close()

	var a Artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
	}
	if a.Pipeline.Extractor == nil || a.Pipeline.Estimator == nil || !a.Pipeline.Extractor.Fitted() {
		return nil, fmt.Errorf("%w: %s: incomplete pipeline", ErrArtifactCorrupt, path)
	}
	logging.ML("loaded model artifact from %s (trained %s)",
		path, a.Metadata.TrainingDate.Format("2006-01-02"))
	return &a, nil
}

// Train fits a fresh pipeline on labeled texts and packages it with
// metadata. Accuracy is the resubstitution accuracy on the training data;
// proper holdout evaluation happens against the unseen split.
func Train(texts, labels []string, labelColumn string) (*Artifact, error) {
	if len(texts) == 0 || len(texts) != len(labels) {
		return nil, fmt.Errorf("train: %d texts vs %d labels", len(texts), len(labels))
	}
	timer := logging.StartTimer(logging.CategoryML, "Train")
	defer timer.Stop()

	extractor := NewExtractor()
	extractor.Fit(texts)

	X, err := extractor.Transform(texts)
	if err != nil {
		return nil, err
	}

	estimator := NewNaiveBayes()
	if err := estimator.Fit(X, labels); err != nil {
		return nil, err
	}

	predicted, err := estimator.Predict(X)
	if err != nil {
		return nil, err
	}
	correct := 0
	counts := make(map[string]int)
	for i, label := range labels {
		counts[label]++
		if predicted[i] == label {
			correct++
		}
	}

	return &Artifact{
		Pipeline: Pipeline{Extractor: extractor, Estimator: estimator},
		Metadata: Metadata{
			TrainingDate: time.Now(),
			SampleCounts: counts,
			Accuracy:     float64(correct) / float64(len(labels)),
			LabelColumn:  labelColumn,
			Categories:   estimator.Classes(),
		},
	}, nil
}
