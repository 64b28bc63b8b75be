// Package ml implements the statistical half of the classifier: TF-IDF
// feature extraction over procedure text, a multinomial naive Bayes
// estimator, and the serialized model artifact that carries both plus
// training metadata.
package ml

import (
	"errors"
	"strings"

	"casewise/internal/logging"
	"casewise/internal/rules"
)

// ErrNotFitted is returned when Transform is called before Fit.
var ErrNotFitted = errors.New("feature extractor is not fitted")

// Vocabulary and n-gram caps for the two text channels.
const (
	wordMaxFeatures = 800
	wordNgramMin    = 1
	wordNgramMax    = 4
	wordMinDF       = 2

	charMaxFeatures = 200
	charNgramMin    = 3
	charNgramMax    = 5

	structuredDim = 23
)

// Words so common in procedure notes that they carry no class signal.
var medicalStopwords = []string{
	"with", "without", "and", "or", "of", "the", "for", "to", "a", "an",
	"left", "right", "bilateral", "status", "post", "possible", "procedure",
	"surgery", "surgical", "patient", "under", "general", "anesthesia",
}

// Extractor turns procedure text into a fixed-width numeric vector:
// word TF-IDF, then char TF-IDF, then a structured block of engine-derived
// signals. The rule engine is deliberately a feature source: the model is
// trained to refine the rules, not replace them.
type Extractor struct {
	Word *Vectorizer
	Char *Vectorizer

	engine *rules.Engine
}

// NewExtractor builds an unfitted extractor with the standard configuration.
func NewExtractor() *Extractor {
	return &Extractor{
		Word: NewWordVectorizer(wordMaxFeatures, wordNgramMin, wordNgramMax, wordMinDF, medicalStopwords),
		Char: NewCharVectorizer(charMaxFeatures, charNgramMin, charNgramMax),
	}
}

func (e *Extractor) ruleEngine() *rules.Engine {
	if e.engine == nil {
		e.engine = rules.NewEngine(nil)
	}
	return e.engine
}

// Fit learns the vocabularies from the corpus. Refitting replaces prior
// state.
func (e *Extractor) Fit(corpus []string) {
	timer := logging.StartTimer(logging.CategoryML, "extractor.Fit")
	defer timer.Stop()

	e.Word.Fit(corpus)
	e.Char.Fit(corpus)
	logging.ML("fitted extractor: %d word features, %d char features, %d structured",
		e.Word.Dim(), e.Char.Dim(), structuredDim)
}

// Fitted reports whether Fit has been called.
func (e *Extractor) Fitted() bool {
	return e.Word != nil && e.Word.Fitted() && e.Char != nil && e.Char.Fitted()
}

// Dim returns the width of transformed vectors.
func (e *Extractor) Dim() int {
	return e.Word.Dim() + e.Char.Dim() + structuredDim
}

// Transform maps texts onto feature vectors. Returns ErrNotFitted before Fit.
func (e *Extractor) Transform(texts []string) ([][]float64, error) {
	if !e.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, 0, e.Dim())
		vec = append(vec, e.Word.Transform(text)...)
		vec = append(vec, e.Char.Transform(text)...)
		vec = append(vec, e.structured(text)...)
		out[i] = vec
	}
	return out, nil
}

func anyIn(text string, keywords ...string) float64 {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return 1
		}
	}
	return 0
}

// structured computes the fixed-width block of hand-engineered signals.
func (e *Extractor) structured(text string) []float64 {
	upper := strings.ToUpper(text)
	cat, warnings := e.ruleEngine().Categorize(text, nil)
	catLabel := string(cat)

	f := make([]float64, 0, structuredDim)
	f = append(f,
		anyIn(upper, "BYPASS", "CPB", "PUMP"),
		anyIn(upper, "TAVR", "TAVI", "TRANSCATHETER", "OFF-PUMP", "OFF PUMP", "PERCUTANEOUS"),
		boolFeature(rules.DetectApproach(upper) == rules.ApproachEndovascular),
		boolFeature(rules.DetectApproach(upper) == rules.ApproachOpen),
		anyIn(upper, "STENT"),
		anyIn(upper, "COIL", "EMBOLIZATION"),
		anyIn(upper, "CRANI"),
		anyIn(upper, "ANEURYSM"),
		anyIn(upper, "CARDIAC", "HEART", "CORONARY", "VALVE"),
		anyIn(upper, "BRAIN", "CEREBRAL", "INTRACRANIAL"),
		anyIn(upper, "AORT"),
		anyIn(upper, "CAROTID"),
		anyIn(upper, "LUNG", "THORAC", "PULMON"),
		anyIn(upper, "ESOPHAG"),
		anyIn(upper, "CESAREAN", "C-SECTION", "DELIVERY", "LABOR"),
		anyIn(upper, "EPIDURAL"),
		anyIn(upper, "TUMOR", "GLIOMA", "MENINGIOMA"),
		anyIn(upper, "HEMORRHAGE", "HEMATOMA"),
		anyIn(upper, "ENDARTERECTOMY"),
		float64(len(warnings)),
		float64(len(text)/100),
		boolFeature(strings.Contains(catLabel, "Cardiac")),
		boolFeature(strings.Contains(catLabel, "Intracerebral") || strings.Contains(catLabel, "vessel")),
	)
	return f
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
