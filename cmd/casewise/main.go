// casewise is the clinical procedure categorization toolchain: a
// deterministic rule engine, a trained statistical model, the hybrid policy
// arbitrating between them, and the review/retrain loop that folds human
// corrections back into training data.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"casewise/internal/config"
	"casewise/internal/dataset"
	"casewise/internal/hybrid"
	"casewise/internal/logging"
	"casewise/internal/ml"
	"casewise/internal/rules"
	"casewise/internal/taxonomy"
	"casewise/internal/worker"
)

var (
	verbose   bool
	workspace string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "casewise",
	Short: "casewise - hybrid clinical procedure categorization",
	Long: `casewise converts free-text procedure descriptions and case metadata into
a fixed taxonomy of billing/reporting categories.

A deterministic keyword rule engine always runs; a trained model may
override it only at high confidence. Disagreements are routed to human
review, and accumulated corrections are merged back into training data.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
			workspace = wd
		}

		var err error
		cfg, err = config.Load(config.Path(workspace))
		if err != nil {
			return err
		}

		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// classifyCmd categorizes one dataset or one inline procedure.
var classifyCmd = &cobra.Command{
	Use:   "classify [input.csv]",
	Short: "Categorize a dataset (or one procedure with --text)",
	Long: `Runs the hybrid classifier over every row of a CSV dataset and writes the
input rows plus category, method, confidence, alternative, and warnings
columns. With --text, classifies a single procedure and prints the decision.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

var (
	classifyText    string
	classifyOut     string
	classifyModel   string
	classifyNoModel bool
	classifyWorkers int
)

func buildClassifier() (*hybrid.Classifier, error) {
	table, err := loadRuleTable()
	if err != nil {
		return nil, err
	}
	engine := rules.NewEngine(table)

	opts := []hybrid.Option{hybrid.WithThreshold(cfg.Classifier.MLThreshold)}
	modelPath := classifyModel
	if modelPath == "" {
		modelPath = cfg.Classifier.ModelPath
	}
	if !classifyNoModel {
		artifact, err := ml.LoadArtifact(modelPath)
		switch {
		case err == nil:
			opts = append(opts, hybrid.WithModel(ml.NewClassifier(artifact)))
			logger.Info("model loaded", zap.String("path", modelPath))
		case errors.Is(err, ml.ErrArtifactMissing):
			// Degrading to rules-only is the caller's call; here it is a
			// deliberate one, and it is logged.
			logger.Warn("no model artifact; running rules-only", zap.String("path", modelPath))
		default:
			return nil, err
		}
	}
	return hybrid.New(engine, opts...), nil
}

func loadRuleTable() ([]rules.Rule, error) {
	if cfg.Classifier.RulesPath == "" {
		return nil, nil
	}
	return rules.LoadRules(cfg.Classifier.RulesPath)
}

func loadColumnMap() (dataset.ColumnMap, error) {
	if cfg.Classifier.ColumnMapPath == "" {
		return dataset.DefaultColumnMap(), nil
	}
	return dataset.LoadColumnMap(cfg.Classifier.ColumnMapPath)
}

func runClassify(cmd *cobra.Command, args []string) error {
	classifier, err := buildClassifier()
	if err != nil {
		return err
	}

	if classifyText != "" {
		result, err := classifier.Classify(classifyText, nil)
		if err != nil {
			return err
		}
		printResult(cmd, classifyText, result)
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("provide an input CSV or --text")
	}
	return classifyDataset(cmd, classifier, args[0])
}

func classifyDataset(cmd *cobra.Command, classifier *hybrid.Classifier, inputPath string) error {
	cm, err := loadColumnMap()
	if err != nil {
		return err
	}
	table, err := dataset.Load(inputPath)
	if err != nil {
		return err
	}
	rows, warnings := table.Rows(cm)
	for _, w := range warnings {
		logger.Warn(w)
	}

	out := dataset.NewTable(append(append([]string(nil), table.Header...),
		"assigned_category", "method", "confidence", "alternative", "warnings"))

	workers := worker.EffectiveWorkers(effectiveRowWorkers(), false)
	results := make([]hybrid.Result, len(rows))
	errs := worker.Process(cmd.Context(), len(rows), workers, func(i int) error {
		r, err := classifier.Classify(rows[i].Procedure, rows[i].Services)
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})

	failed := 0
	for i := range rows {
		if errs[i] != nil {
			// Per-row failures degrade to a zero-confidence placeholder so
			// one bad row never sinks the batch.
			failed++
			results[i] = hybrid.Result{
				Category:   taxonomy.Other,
				Method:     hybrid.MethodRules,
				Confidence: 0,
				Warnings:   []string{fmt.Sprintf("row processing failed: %v", errs[i])},
			}
		}
		r := results[i]
		out.Append(append(append([]string(nil), table.Records[i]...),
			string(r.Category), string(r.Method), fmt.Sprintf("%.3f", r.Confidence),
			string(r.Alternative), strings.Join(r.Warnings, " | ")))
	}

	outPath := classifyOut
	if outPath == "" {
		outPath = strings.TrimSuffix(inputPath, ".csv") + "_categorized.csv"
	}
	if err := out.Save(outPath); err != nil {
		return err
	}

	cmd.Printf("Classified %d rows (%d failed) -> %s\n", len(rows), failed, outPath)
	logger.Info("classification complete",
		zap.Int("rows", len(rows)), zap.Int("failed", failed), zap.String("output", outPath))
	return nil
}

func effectiveRowWorkers() int {
	if classifyWorkers != 0 {
		return classifyWorkers
	}
	return cfg.Workers.RowWorkers
}

func printResult(cmd *cobra.Command, procedure string, r hybrid.Result) {
	cmd.Printf("Procedure:  %s\n", procedure)
	cmd.Printf("Category:   %s\n", r.Category)
	cmd.Printf("Method:     %s\n", r.Method)
	cmd.Printf("Confidence: %.2f\n", r.Confidence)
	if r.Alternative != "" {
		cmd.Printf("Alternative: %s\n", r.Alternative)
	}
	for _, w := range r.Warnings {
		cmd.Printf("Warning:    %s\n", w)
	}
}

// debugCmd traces every rule evaluation for one case.
var debugCmd = &cobra.Command{
	Use:   "debug [procedure]",
	Short: "Trace rule evaluation for one procedure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadRuleTable()
		if err != nil {
			return err
		}
		engine := rules.NewEngine(table)

		services, _ := cmd.Flags().GetStringSlice("service")
		cat, warnings, steps := engine.Trace(args[0], services)

		for _, step := range steps {
			if step.Excluded {
				cmd.Printf("  [%s] rule %q matched %v but excluded by %v\n",
					step.Service, step.RuleName, step.MatchedKeywords, step.ExcludedBy)
				continue
			}
			cmd.Printf("  [%s] rule %q matched %v -> %s\n",
				step.Service, step.RuleName, step.MatchedKeywords, step.Resolved)
		}
		for _, w := range warnings {
			cmd.Printf("  warning: %s\n", w)
		}
		cmd.Printf("Category: %s\n", cat)
		return nil
	},
}

// initCmd writes a default config to the workspace.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config to .casewise/config.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Path(workspace)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		cmd.Printf("Wrote %s\n", path)
		return nil
	},
}

// categoriesCmd lists the taxonomy with its review number keys.
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the category taxonomy",
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, cat := range taxonomy.All {
			cmd.Printf("%2d. %s\n", i+1, cat)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	classifyCmd.Flags().StringVar(&classifyText, "text", "", "Classify a single procedure text")
	classifyCmd.Flags().StringVarP(&classifyOut, "out", "o", "", "Output CSV path")
	classifyCmd.Flags().StringVar(&classifyModel, "model", "", "Model artifact path (default from config)")
	classifyCmd.Flags().BoolVar(&classifyNoModel, "no-model", false, "Skip the model, rules only")
	classifyCmd.Flags().IntVar(&classifyWorkers, "workers", 0, "Row workers (0 = all cores)")

	debugCmd.Flags().StringSlice("service", nil, "Service string (repeatable)")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(retrainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
