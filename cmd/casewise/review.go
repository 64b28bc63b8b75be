package main

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"casewise/internal/dataset"
	"casewise/internal/ml"
	"casewise/internal/retrain"
	"casewise/internal/review"
	"casewise/internal/rules"

	"casewise/cmd/casewise/ui"
)

// reviewCmd runs the interactive correction loop.
var reviewCmd = &cobra.Command{
	Use:   "review [data.csv]",
	Short: "Review model/rule disagreements and record corrections",
	Long: `Builds a ranked review queue from a dataset (disagreements first, then
lowest model confidence) and walks through it interactively. Decisions are
autosaved every 10 labels; progress is resumable per (data, model) pair.`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

var (
	reviewModel    string
	reviewFocus    string
	reviewResume   bool
	reviewLabels   string
	reviewProgress string
	reviewClassic  bool
	reviewLimit    int
)

func runReview(cmd *cobra.Command, args []string) error {
	dataPath := args[0]
	modelPath := reviewModel
	if modelPath == "" {
		modelPath = cfg.Classifier.ModelPath
	}

	focusName := reviewFocus
	if focusName == "" {
		focusName = cfg.Review.Focus
	}
	focus, err := review.ParseFocus(focusName)
	if err != nil {
		return err
	}

	artifact, err := ml.LoadArtifact(modelPath)
	if err != nil {
		return err
	}
	classifier := ml.NewClassifier(artifact)

	cm, err := loadColumnMap()
	if err != nil {
		return err
	}
	table, err := dataset.Load(dataPath)
	if err != nil {
		return err
	}
	rows, warnings := table.Rows(cm)
	for _, w := range warnings {
		logger.Warn(w)
	}

	ruleTable, err := loadRuleTable()
	if err != nil {
		return err
	}
	queue, err := review.BuildQueue(rows, rules.NewEngine(ruleTable), classifier, focus, cfg.Review.LowConfidence)
	if err != nil {
		return err
	}
	if reviewLimit > 0 && len(queue) > reviewLimit {
		queue = queue[:reviewLimit]
	}
	if len(queue) == 0 {
		cmd.Println("Nothing to review.")
		return nil
	}

	labelsPath := reviewLabels
	if labelsPath == "" {
		labelsPath = cfg.Review.LabelsPath
	}
	progressPath := reviewProgress
	if progressPath == "" {
		progressPath = cfg.Review.ProgressPath
	}

	journal, err := review.OpenJournal(cfg.Review.JournalPath)
	if err != nil {
		// The journal is an audit trail, not the system of record; review
		// proceeds without it.
		logger.Warn("review journal unavailable", zap.Error(err))
		journal = nil
	}
	if journal != nil {
		defer journal.Close()
	}

	session := review.NewSession(review.SessionConfig{
		Queue:        queue,
		LabelsPath:   labelsPath,
		ProgressPath: progressPath,
		DataPath:     dataPath,
		ModelPath:    modelPath,
		Resume:       reviewResume,
		Journal:      journal,
	})

	if reviewClassic || !isatty.IsTerminal(os.Stdin.Fd()) {
		err = runClassicReview(cmd, session)
	} else {
		err = ui.Run(session)
	}
	if err != nil {
		return err
	}

	cmd.Printf("Reviewed %d cases (%d skipped); labels in %s\n",
		session.Applied(), session.Skipped(), labelsPath)
	return nil
}

// runClassicReview is the plain line-mode loop for non-TTY sessions.
func runClassicReview(cmd *cobra.Command, session *review.Session) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())

	for {
		c, ok := session.Current()
		if !ok {
			cmd.Println("Queue exhausted.")
			return session.Finish()
		}

		pos, total := session.Position()
		cmd.Printf("\n[%d/%d] %s\n", pos, total, c.Procedure)
		cmd.Printf("  rules: %-32s model: %s (%.2f)\n", c.RulePrediction, c.MLPrediction, c.MLConfidence)
		if c.Disagreement {
			cmd.Println("  DISAGREEMENT")
		}
		cmd.Printf("  recommended: %s\n", c.Recommended())
		cmd.Print("  [a]ccept [f]rules [j]model [o]ther [1-11] [s]kip [q]uit > ")

		if !scanner.Scan() {
			return session.Finish()
		}
		input := strings.TrimSpace(strings.ToLower(scanner.Text()))

		var err error
		switch input {
		case "a", "":
			err = session.Accept()
		case "f":
			err = session.ChooseRule()
		case "j":
			err = session.ChooseML()
		case "o":
			err = session.ChooseOther()
		case "s":
			err = session.Skip()
		case "q":
			return session.Finish()
		default:
			if n, convErr := strconv.Atoi(input); convErr == nil {
				err = session.ChooseNumber(n)
			} else {
				cmd.Printf("  unrecognized input %q\n", input)
				continue
			}
		}
		if err != nil {
			cmd.Printf("  error: %v\n", err)
		}
	}
}

// retrainCmd merges review corrections into new train/eval datasets.
var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Merge review corrections into new train/eval datasets",
	Long: `Applies the accumulated override map to the seen/unseen pair: relabels
corrected seen rows, promotes overridden unseen rows into training, dedups
by procedure key, and upweights true corrections. Fails fast when inputs
are missing, outputs exist without --force, or there are no overrides.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		labelsPath := retrainLabels
		if labelsPath == "" {
			labelsPath = cfg.Review.LabelsPath
		}
		multiplier := retrainMultiplier
		if multiplier == 0 {
			multiplier = cfg.Retrain.Multiplier
		}

		metrics, err := retrain.Merge(retrain.MergeConfig{
			SeenPath:    retrainSeen,
			UnseenPath:  retrainUnseen,
			LabelsPath:  labelsPath,
			LabelColumn: retrainLabelColumn,
			RetrainOut:  retrainOut,
			EvalOut:     retrainEvalOut,
			Multiplier:  multiplier,
			Force:       retrainForce,
		})
		if err != nil {
			return err
		}

		cmd.Printf("Overrides:        %d\n", metrics.Overrides)
		cmd.Printf("Seen relabeled:   %d (%d true corrections)\n", metrics.SeenRelabeled, metrics.TrueCorrections)
		cmd.Printf("Promoted:         %d\n", metrics.Promoted)
		cmd.Printf("Retrain rows:     %d -> %s\n", metrics.RetrainRows, retrainOut)
		cmd.Printf("Remaining eval:   %d -> %s\n", metrics.EvalRows, retrainEvalOut)
		cmd.Printf("Next: casewise train %s --label-column %s\n", retrainOut, retrainLabelColumn)
		return nil
	},
}

var (
	retrainSeen        string
	retrainUnseen      string
	retrainLabels      string
	retrainLabelColumn string
	retrainOut         string
	retrainEvalOut     string
	retrainMultiplier  int
	retrainForce       bool
)

func init() {
	reviewCmd.Flags().StringVar(&reviewModel, "model", "", "Model artifact path (default from config)")
	reviewCmd.Flags().StringVar(&reviewFocus, "focus", "", "Queue focus: all, disagreement, low_confidence, priority")
	reviewCmd.Flags().BoolVar(&reviewResume, "resume", false, "Resume prior progress for this (data, model) pair")
	reviewCmd.Flags().StringVar(&reviewLabels, "labels", "", "Labels CSV path (default from config)")
	reviewCmd.Flags().StringVar(&reviewProgress, "progress", "", "Progress JSON path (default from config)")
	reviewCmd.Flags().BoolVar(&reviewClassic, "classic", false, "Plain line-mode interface")
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 0, "Review at most this many cases")

	retrainCmd.Flags().StringVar(&retrainSeen, "seen", "seen.csv", "Seen (training) dataset")
	retrainCmd.Flags().StringVar(&retrainUnseen, "unseen", "unseen.csv", "Unseen (holdout) dataset")
	retrainCmd.Flags().StringVar(&retrainLabels, "labels", "", "Review labels CSV (default from config)")
	retrainCmd.Flags().StringVar(&retrainLabelColumn, "label-column", "category", "Label column name")
	retrainCmd.Flags().StringVar(&retrainOut, "out", "retrain.csv", "Retrain dataset output")
	retrainCmd.Flags().StringVar(&retrainEvalOut, "eval-out", "eval.csv", "Remaining eval dataset output")
	retrainCmd.Flags().IntVar(&retrainMultiplier, "multiplier", 0, "Copies per true correction (default from config)")
	retrainCmd.Flags().BoolVar(&retrainForce, "force", false, "Overwrite existing outputs")
}
