// Package hybrid arbitrates between the deterministic rule engine and the
// trained model. Rules always run; the model overrides only when very
// confident, and otherwise serves as a disagreement signal routed to human
// review.
package hybrid

import (
	"fmt"

	"casewise/internal/logging"
	"casewise/internal/ml"
	"casewise/internal/rules"
	"casewise/internal/taxonomy"
)

// Method tags how a classification decision was reached.
type Method string

const (
	MethodRules        Method = "rules"          // Rules only, no usable ML signal
	MethodRulesFlagged Method = "rules_flagged"  // Rules kept, mid-confidence ML disagrees
	MethodRulesMLAgree Method = "rules_ml_agree" // Rules kept, mid-confidence ML agrees
	MethodMLOverride   Method = "ml_override"    // High-confidence ML wins
)

// Confidence constants of the decision policy. Threshold comparisons are
// inclusive on the upper branch; moving a boundary changes which cases are
// ML-overridden.
const (
	DefaultMLThreshold = 0.7
	overrideThreshold  = 0.85
	rulesCleanConf     = 1.0
	rulesWarnedConf    = 0.8
	agreementBoostConf = 0.9
)

// Result is one classification decision with its full audit trail.
type Result struct {
	Category    taxonomy.Category
	Method      Method
	Confidence  float64
	Alternative taxonomy.Category // The losing side of a disagreement, "" when none
	Warnings    []string
}

// Model is the prediction surface the policy needs from a trained model.
// *ml.Classifier satisfies it.
type Model interface {
	Predict(texts []string) ([]ml.Prediction, error)
	PredictOne(text string) (ml.Prediction, error)
}

// Classifier combines the rule engine with an optional trained model.
// A nil model is valid and yields rules-only decisions.
type Classifier struct {
	engine      *rules.Engine
	model       Model
	mlThreshold float64
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithModel attaches a trained model.
func WithModel(model Model) Option {
	return func(c *Classifier) { c.model = model }
}

// WithThreshold overrides the minimum ML confidence considered at all.
func WithThreshold(threshold float64) Option {
	return func(c *Classifier) { c.mlThreshold = threshold }
}

// New builds a hybrid classifier over the given rule engine.
func New(engine *rules.Engine, opts ...Option) *Classifier {
	c := &Classifier{engine: engine, mlThreshold: DefaultMLThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasModel reports whether a trained model is attached.
func (c *Classifier) HasModel() bool { return c.model != nil }

// Engine returns the underlying rule engine.
func (c *Classifier) Engine() *rules.Engine { return c.engine }

// Classify decides one case. The rule engine always runs; the model runs
// when attached, and its vote is gated by confidence.
func (c *Classifier) Classify(procedure string, services []string) (Result, error) {
	ruleCat, warnings := c.engine.Categorize(procedure, services)

	if c.model == nil {
		return rulesResult(ruleCat, warnings), nil
	}

	pred, err := c.model.PredictOne(procedure)
	if err != nil {
		return Result{}, fmt.Errorf("model prediction: %w", err)
	}
	return c.decide(ruleCat, warnings, pred), nil
}

// ClassifyBatch decides many cases with one model pass.
func (c *Classifier) ClassifyBatch(procedures []string, services [][]string) ([]Result, error) {
	results := make([]Result, len(procedures))

	ruleCats := make([]taxonomy.Category, len(procedures))
	ruleWarnings := make([][]string, len(procedures))
	for i, procedure := range procedures {
		var svc []string
		if services != nil {
			svc = services[i]
		}
		ruleCats[i], ruleWarnings[i] = c.engine.Categorize(procedure, svc)
	}

	if c.model == nil {
		for i := range procedures {
			results[i] = rulesResult(ruleCats[i], ruleWarnings[i])
		}
		return results, nil
	}

	preds, err := c.model.Predict(procedures)
	if err != nil {
		return nil, fmt.Errorf("batch model prediction: %w", err)
	}
	for i := range procedures {
		results[i] = c.decide(ruleCats[i], ruleWarnings[i], preds[i])
	}
	return results, nil
}

// decide applies the confidence-gated policy to one (rules, ML) pair.
func (c *Classifier) decide(ruleCat taxonomy.Category, warnings []string, pred ml.Prediction) Result {
	mlCat, ok := taxonomy.Parse(taxonomy.NormalizeLabel(pred.Label))
	if !ok {
		logging.Get(logging.CategoryML).Warn("unknown model label %q", pred.Label)
		// An invalid label means the model is absent for this case, so the
		// confidence comes from the rule warnings alone; the diagnostic is
		// appended after.
		result := rulesResult(ruleCat, warnings)
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"model produced unknown category %q; falling back to rules", pred.Label))
		return result
	}

	agree := mlCat == ruleCat

	switch {
	case pred.Confidence >= overrideThreshold:
		result := Result{
			Category:   mlCat,
			Method:     MethodMLOverride,
			Confidence: pred.Confidence,
			Warnings:   warnings,
		}
		if !agree {
			result.Alternative = ruleCat
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"model override: model says %s (%.2f), rules say %s", mlCat, pred.Confidence, ruleCat))
		}
		return result

	case pred.Confidence >= c.mlThreshold:
		if agree {
			return Result{
				Category:   ruleCat,
				Method:     MethodRulesMLAgree,
				Confidence: agreementBoostConf,
				Warnings:   warnings,
			}
		}
		return Result{
			Category:    ruleCat,
			Method:      MethodRulesFlagged,
			Confidence:  rulesConfidence(warnings),
			Alternative: mlCat,
			Warnings: append(warnings, fmt.Sprintf(
				"model disagrees: rules say %s, model says %s (%.2f)", ruleCat, mlCat, pred.Confidence)),
		}

	default:
		return rulesResult(ruleCat, warnings)
	}
}

func rulesResult(cat taxonomy.Category, warnings []string) Result {
	return Result{
		Category:   cat,
		Method:     MethodRules,
		Confidence: rulesConfidence(warnings),
		Warnings:   warnings,
	}
}

func rulesConfidence(warnings []string) float64 {
	if len(warnings) > 0 {
		return rulesWarnedConf
	}
	return rulesCleanConf
}
