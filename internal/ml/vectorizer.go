package ml

import (
	"math"
	"sort"
	"strings"
)

// Vectorizer is a TF-IDF n-gram vectorizer over either word or character
// analysis. Fields are exported for gob serialization inside the model
// artifact.
type Vectorizer struct {
	Analyzer    string // "word" or "char"
	NgramMin    int
	NgramMax    int
	MaxFeatures int
	MinDF       int
	Stopwords   map[string]bool

	Vocab []string
	Index map[string]int
	IDF   []float64
}

// NewWordVectorizer configures word n-gram extraction.
func NewWordVectorizer(maxFeatures, ngramMin, ngramMax, minDF int, stopwords []string) *Vectorizer {
	sw := make(map[string]bool, len(stopwords))
	for _, s := range stopwords {
		sw[strings.ToLower(s)] = true
	}
	return &Vectorizer{
		Analyzer:    "word",
		NgramMin:    ngramMin,
		NgramMax:    ngramMax,
		MaxFeatures: maxFeatures,
		MinDF:       minDF,
		Stopwords:   sw,
	}
}

// NewCharVectorizer configures character n-gram extraction.
func NewCharVectorizer(maxFeatures, ngramMin, ngramMax int) *Vectorizer {
	return &Vectorizer{
		Analyzer:    "char",
		NgramMin:    ngramMin,
		NgramMax:    ngramMax,
		MaxFeatures: maxFeatures,
		MinDF:       1,
	}
}

// analyze produces the n-gram terms of one document.
func (v *Vectorizer) analyze(text string) []string {
	lower := strings.ToLower(text)
	var terms []string

	if v.Analyzer == "char" {
		runes := []rune(lower)
		for n := v.NgramMin; n <= v.NgramMax; n++ {
			for i := 0; i+n <= len(runes); i++ {
				terms = append(terms, string(runes[i:i+n]))
			}
		}
		return terms
	}

	tokens := tokenize(lower)
	filtered := tokens[:0]
	for _, tok := range tokens {
		if !v.Stopwords[tok] {
			filtered = append(filtered, tok)
		}
	}
	for n := v.NgramMin; n <= v.NgramMax; n++ {
		for i := 0; i+n <= len(filtered); i++ {
			terms = append(terms, strings.Join(filtered[i:i+n], " "))
		}
	}
	return terms
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// Fit builds the vocabulary and IDF weights from the corpus. Refitting
// replaces any prior state.
func (v *Vectorizer) Fit(corpus []string) {
	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, term := range v.analyze(doc) {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	type termDF struct {
		term string
		df   int
	}
	candidates := make([]termDF, 0, len(df))
	for term, count := range df {
		if count >= v.MinDF {
			candidates = append(candidates, termDF{term, count})
		}
	}
	// Most frequent terms first; ties break alphabetically so fitting is
	// deterministic across runs.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].df != candidates[j].df {
			return candidates[i].df > candidates[j].df
		}
		return candidates[i].term < candidates[j].term
	})
	if v.MaxFeatures > 0 && len(candidates) > v.MaxFeatures {
		candidates = candidates[:v.MaxFeatures]
	}

	n := float64(len(corpus))
	v.Vocab = make([]string, len(candidates))
	v.IDF = make([]float64, len(candidates))
	v.Index = make(map[string]int, len(candidates))
	for i, c := range candidates {
		v.Vocab[i] = c.term
		v.Index[c.term] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(c.df))) + 1
	}
}

// Fitted reports whether Fit has been called.
func (v *Vectorizer) Fitted() bool { return v.Index != nil }

// Dim returns the width of the transformed vectors.
func (v *Vectorizer) Dim() int { return len(v.Vocab) }

// Transform maps one document onto an L2-normalized TF-IDF vector.
func (v *Vectorizer) Transform(text string) []float64 {
	vec := make([]float64, len(v.Vocab))
	for _, term := range v.analyze(text) {
		if i, ok := v.Index[term]; ok {
			vec[i]++
		}
	}
	var norm float64
	for i := range vec {
		if vec[i] > 0 {
			vec[i] *= v.IDF[i]
			norm += vec[i] * vec[i]
		}
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
