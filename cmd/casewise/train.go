package main

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"casewise/internal/dataset"
	"casewise/internal/ml"
	"casewise/internal/retrain"
	"casewise/internal/rules"
	"casewise/internal/taxonomy"
	"casewise/internal/worker"
)

// prepareCmd builds a labeled training dataset from raw case exports.
var prepareCmd = &cobra.Command{
	Use:   "prepare [input.csv...]",
	Short: "Build a labeled dataset from raw exports",
	Long: `Runs the rule engine over every row of every input file and emits one
labeled CSV. Files are processed in parallel (row processing within each
file stays sequential); a failing file is reported and skipped, never
aborting the batch. With --sample, rows are picked by training value:
ambiguous and non-trivial cases are preferred over routine ones.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrepare,
}

var (
	prepareOut         string
	prepareSample      int
	prepareSeed        int64
	prepareFileWorkers int
)

type preparedRow struct {
	procedure string
	category  string
	warnings  int
	score     int
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cm, err := loadColumnMap()
	if err != nil {
		return err
	}
	table, err := loadRuleTable()
	if err != nil {
		return err
	}
	engine := rules.NewEngine(table)

	fileWorkers := prepareFileWorkers
	if fileWorkers == 0 {
		fileWorkers = cfg.Workers.FileWorkers
	}
	// File-level parallelism is the outer axis, so per-file row processing
	// runs on a single worker.
	rowWorkers := worker.EffectiveWorkers(cfg.Workers.RowWorkers, len(args) > 1)

	perFile := make([][]preparedRow, len(args))
	fileErrs := worker.Process(cmd.Context(), len(args), fileWorkers, func(f int) error {
		rows, err := prepareFile(cmd, engine, cm, args[f], rowWorkers)
		if err != nil {
			return err
		}
		perFile[f] = rows
		return nil
	})

	var all []preparedRow
	succeeded := 0
	for f, err := range fileErrs {
		if err != nil {
			cmd.Printf("FAILED %s: %v\n", args[f], err)
			continue
		}
		succeeded++
		all = append(all, perFile[f]...)
	}
	cmd.Printf("Prepared %d files (%d failed), %d rows\n", succeeded, len(args)-succeeded, len(all))
	if len(all) == 0 {
		return fmt.Errorf("no rows prepared")
	}

	if prepareSample > 0 && prepareSample < len(all) {
		all = sampleByValue(all, prepareSample, prepareSeed)
		cmd.Printf("Sampled down to %d rows\n", len(all))
	}

	out := dataset.NewTable([]string{"procedure", "category"})
	for _, row := range all {
		out.Append([]string{row.procedure, row.category})
	}
	if err := out.Save(prepareOut); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", prepareOut)
	return nil
}

func prepareFile(cmd *cobra.Command, engine *rules.Engine, cm dataset.ColumnMap, path string, rowWorkers int) ([]preparedRow, error) {
	table, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	rows, warnings := table.Rows(cm)
	for _, w := range warnings {
		logger.Warn(w, zap.String("file", path))
	}

	prepared := make([]preparedRow, len(rows))
	worker.Process(cmd.Context(), len(rows), rowWorkers, func(i int) error {
		cat, rowWarnings := engine.Categorize(rows[i].Procedure, rows[i].Services)
		prepared[i] = preparedRow{
			procedure: rows[i].Procedure,
			category:  string(cat),
			warnings:  len(rowWarnings),
		}
		prepared[i].score = trainingValue(prepared[i])
		return nil
	})

	// Blank procedures teach the model nothing.
	kept := prepared[:0]
	for _, row := range prepared {
		if strings.TrimSpace(row.procedure) != "" {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// High-signal keywords: rows mentioning these tend to sit near category
// boundaries and are worth keeping in a sample.
var highValueKeywords = []string{
	"TAVR", "TRANSCATHETER", "OFF-PUMP", "ENDOVASCULAR", "COIL",
	"EMBOLIZATION", "CESAREAN", "ENDARTERECTOMY",
}

// trainingValue scores a row's usefulness for training. Ambiguity warnings
// dominate, then non-trivial categories, then boundary keywords.
func trainingValue(row preparedRow) int {
	score := 0
	if row.warnings > 0 {
		score += 5
	}
	if row.category != string(taxonomy.Other) {
		score += 3
	}
	upper := strings.ToUpper(row.procedure)
	for _, kw := range highValueKeywords {
		if strings.Contains(upper, kw) {
			score += 2
			break
		}
	}
	return score
}

// sampleByValue keeps n rows: half from the high-value band, 30% from the
// medium band, and the remainder from whatever is left. Bands are shuffled
// with a fixed seed before the cut so a pre-sorted input cannot bias the
// sample toward early rows, while the draw stays reproducible.
func sampleByValue(rows []preparedRow, n int, seed int64) []preparedRow {
	var high, medium, low []preparedRow
	for _, row := range rows {
		switch {
		case row.score >= 7:
			high = append(high, row)
		case row.score >= 3:
			medium = append(medium, row)
		default:
			low = append(low, row)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	for _, band := range [][]preparedRow{high, medium, low} {
		rng.Shuffle(len(band), func(i, j int) { band[i], band[j] = band[j], band[i] })
	}

	out := make([]preparedRow, 0, n)
	take := func(band []preparedRow, want int) {
		if want > len(band) {
			want = len(band)
		}
		out = append(out, band[:want]...)
	}
	take(high, n/2)
	take(medium, n*3/10)
	if remaining := n - len(out); remaining > 0 {
		take(low, remaining)
	}
	// Bands may run short; backfill from the others.
	if len(out) < n {
		for _, band := range [][]preparedRow{high, medium, low} {
			for _, row := range band {
				if len(out) >= n {
					break
				}
				if !containsRow(out, row) {
					out = append(out, row)
				}
			}
		}
	}
	return out
}

func containsRow(rows []preparedRow, row preparedRow) bool {
	for _, r := range rows {
		if r.procedure == row.procedure && r.category == row.category {
			return true
		}
	}
	return false
}

// splitCmd divides a labeled dataset into seen/unseen halves.
var splitCmd = &cobra.Command{
	Use:   "split [labeled.csv]",
	Short: "Split a labeled dataset into seen/unseen halves",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := dataset.Load(args[0])
		if err != nil {
			return err
		}
		result, err := retrain.StratifiedSplit(table, splitLabelColumn, splitRatio, splitSeed)
		if err != nil {
			return err
		}
		if err := result.Seen.Save(splitSeenOut); err != nil {
			return err
		}
		if err := result.Unseen.Save(splitUnseenOut); err != nil {
			return err
		}
		kind := "stratified"
		if !result.Stratified {
			kind = "unstratified (a class had <2 samples)"
		}
		cmd.Printf("Split %d rows %s: %d seen -> %s, %d unseen -> %s\n",
			table.Len(), kind, result.Seen.Len(), splitSeenOut, result.Unseen.Len(), splitUnseenOut)
		return nil
	},
}

var (
	splitLabelColumn string
	splitRatio       float64
	splitSeed        int64
	splitSeenOut     string
	splitUnseenOut   string
)

// trainCmd fits a model on a labeled dataset and saves the artifact.
var trainCmd = &cobra.Command{
	Use:   "train [seen.csv]",
	Short: "Train a model and save the artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := dataset.Load(args[0])
		if err != nil {
			return err
		}
		texts, labels, err := labeledColumns(table, trainLabelColumn)
		if err != nil {
			return err
		}

		artifact, err := ml.Train(texts, labels, trainLabelColumn)
		if err != nil {
			return err
		}
		outPath := trainOut
		if outPath == "" {
			outPath = cfg.Classifier.ModelPath
		}
		if err := artifact.Save(outPath); err != nil {
			return err
		}

		if err := validateArtifact(outPath, texts[0]); err != nil {
			return err
		}

		cmd.Printf("Trained on %d rows, %d categories\n", len(texts), len(artifact.Metadata.Categories))
		cmd.Printf("Training accuracy: %.3f\n", artifact.Metadata.Accuracy)
		cmd.Printf("Saved and validated %s\n", outPath)
		return nil
	},
}

var (
	trainLabelColumn string
	trainOut         string
)

// validateArtifact confirms the saved model works the way the runtime will
// consume it: reload from disk and run one prediction before declaring
// success.
func validateArtifact(path, smokeText string) error {
	reloaded, err := ml.LoadArtifact(path)
	if err != nil {
		return fmt.Errorf("artifact validation: reload %s: %w", path, err)
	}
	if _, err := ml.NewClassifier(reloaded).PredictOne(smokeText); err != nil {
		return fmt.Errorf("artifact validation: smoke prediction: %w", err)
	}
	return nil
}

// evaluateCmd measures a model against a held-out dataset.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [unseen.csv]",
	Short: "Evaluate a model on a held-out dataset",
	Long: `Predicts every row, bins confidence into high/medium/low, counts
agreement with the rule engine, and lists disagreement cases (optionally
writing them to a CSV for review). When the label column is present,
accuracy and per-class counts are reported too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelPath := evaluateModel
		if modelPath == "" {
			modelPath = cfg.Classifier.ModelPath
		}
		artifact, err := ml.LoadArtifact(modelPath)
		if err != nil {
			return err
		}
		classifier := ml.NewClassifier(artifact)

		ruleTable, err := loadRuleTable()
		if err != nil {
			return err
		}
		engine := rules.NewEngine(ruleTable)

		table, err := dataset.Load(args[0])
		if err != nil {
			return err
		}
		texts, labels, err := labeledColumns(table, evaluateLabelColumn)
		if err != nil {
			return err
		}

		preds, err := classifier.Predict(texts)
		if err != nil {
			return err
		}

		summary := summarizeEvaluation(texts, preds, engine)

		correct := 0
		perClass := make(map[string][2]int) // label -> [correct, total]
		for i, want := range labels {
			want = taxonomy.NormalizeLabel(want)
			counts := perClass[want]
			counts[1]++
			if preds[i].Label == want {
				correct++
				counts[0]++
			}
			perClass[want] = counts
		}

		total := len(texts)
		cmd.Printf("Evaluated %d cases with %s\n\n", total, modelPath)
		cmd.Println("Confidence distribution:")
		cmd.Printf("  High   (>=0.85):   %4d (%.1f%%)\n", summary.high, pct(summary.high, total))
		cmd.Printf("  Medium (0.7-0.85): %4d (%.1f%%)\n", summary.medium, pct(summary.medium, total))
		cmd.Printf("  Low    (<0.7):     %4d (%.1f%%)\n", summary.low, pct(summary.low, total))

		disagreements := summary.flagged.Len()
		cmd.Printf("\nAgreement with rules: %d (%.1f%%), disagrees: %d (%.1f%%)\n",
			summary.agreements, pct(summary.agreements, total), disagreements, pct(disagreements, total))
		for i := 0; i < disagreements && i < evaluateListLimit; i++ {
			cmd.Printf("  %-48s model=%s rules=%s (%s)\n",
				truncate(summary.flagged.Get(i, "procedure"), 48),
				summary.flagged.Get(i, "ml_prediction"), summary.flagged.Get(i, "rule_prediction"),
				summary.flagged.Get(i, "confidence"))
		}
		if disagreements > evaluateListLimit {
			cmd.Printf("  ... and %d more\n", disagreements-evaluateListLimit)
		}
		if evaluateFlagOut != "" && disagreements > 0 {
			if err := summary.flagged.Save(evaluateFlagOut); err != nil {
				return err
			}
			cmd.Printf("Flagged cases written to %s\n", evaluateFlagOut)
		}

		cmd.Printf("\nAccuracy: %.3f (%d/%d)\n", float64(correct)/float64(len(labels)), correct, len(labels))

		classes := make([]string, 0, len(perClass))
		for c := range perClass {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		for _, c := range classes {
			counts := perClass[c]
			cmd.Printf("  %-32s %3d/%3d\n", c, counts[0], counts[1])
		}
		return nil
	},
}

// evaluateListLimit bounds the inline disagreement listing; the full set goes
// to --flag-out.
const evaluateListLimit = 20

type evaluationSummary struct {
	high, medium, low int
	agreements        int
	flagged           *dataset.Table
}

// summarizeEvaluation bins prediction confidence and compares every model
// prediction against the rule engine (services empty, so both sides judge the
// procedure text alone). Bins use the decision policy's boundaries: high can
// override, medium can flag, low is ignored.
func summarizeEvaluation(texts []string, preds []ml.Prediction, engine *rules.Engine) evaluationSummary {
	s := evaluationSummary{
		flagged: dataset.NewTable([]string{"case_id", "procedure", "ml_prediction", "rule_prediction", "confidence"}),
	}
	for i, text := range texts {
		switch {
		case preds[i].Confidence >= 0.85:
			s.high++
		case preds[i].Confidence >= 0.7:
			s.medium++
		default:
			s.low++
		}

		ruleCat, _ := engine.Categorize(text, nil)
		if string(ruleCat) == preds[i].Label {
			s.agreements++
			continue
		}
		s.flagged.Append([]string{
			fmt.Sprintf("%d", i), text, preds[i].Label, string(ruleCat),
			fmt.Sprintf("%.3f", preds[i].Confidence),
		})
	}
	return s
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

var (
	evaluateModel       string
	evaluateLabelColumn string
	evaluateFlagOut     string
)

// labeledColumns extracts non-blank (procedure, label) pairs from a table.
func labeledColumns(table *dataset.Table, labelColumn string) ([]string, []string, error) {
	for _, col := range []string{"procedure", labelColumn} {
		if _, ok := table.Column(col); !ok {
			return nil, nil, fmt.Errorf("dataset is missing column %q", col)
		}
	}
	var texts, labels []string
	for i := 0; i < table.Len(); i++ {
		procedure := table.Get(i, "procedure")
		label := taxonomy.NormalizeLabel(table.Get(i, labelColumn))
		if strings.TrimSpace(procedure) == "" {
			continue
		}
		texts = append(texts, procedure)
		labels = append(labels, label)
	}
	if len(texts) == 0 {
		return nil, nil, fmt.Errorf("dataset has no usable labeled rows")
	}
	return texts, labels, nil
}

func init() {
	prepareCmd.Flags().StringVarP(&prepareOut, "out", "o", "labeled.csv", "Output labeled CSV")
	prepareCmd.Flags().IntVar(&prepareSample, "sample", 0, "Keep at most this many rows, preferring high-value ones")
	prepareCmd.Flags().Int64Var(&prepareSeed, "seed", retrain.DefaultSeed, "Sampling shuffle seed")
	prepareCmd.Flags().IntVar(&prepareFileWorkers, "file-workers", 0, "Concurrent files (default from config)")

	splitCmd.Flags().StringVar(&splitLabelColumn, "label-column", "category", "Label column name")
	splitCmd.Flags().Float64Var(&splitRatio, "ratio", retrain.DefaultUnseenRatio, "Unseen (holdout) fraction")
	splitCmd.Flags().Int64Var(&splitSeed, "seed", retrain.DefaultSeed, "Shuffle seed")
	splitCmd.Flags().StringVar(&splitSeenOut, "seen-out", "seen.csv", "Seen (training) output")
	splitCmd.Flags().StringVar(&splitUnseenOut, "unseen-out", "unseen.csv", "Unseen (holdout) output")

	trainCmd.Flags().StringVar(&trainLabelColumn, "label-column", "category", "Label column name")
	trainCmd.Flags().StringVarP(&trainOut, "out", "o", "", "Artifact output path (default from config)")

	evaluateCmd.Flags().StringVar(&evaluateModel, "model", "", "Model artifact path (default from config)")
	evaluateCmd.Flags().StringVar(&evaluateLabelColumn, "label-column", "category", "Label column name")
	evaluateCmd.Flags().StringVar(&evaluateFlagOut, "flag-out", "", "Write disagreement cases to this CSV")
}
