package review

import (
	"fmt"

	"casewise/internal/logging"
	"casewise/internal/taxonomy"
)

// autosaveEvery bounds data loss to at most autosaveEvery-1 decisions on
// abnormal termination.
const autosaveEvery = 10

// SessionConfig configures a review session.
type SessionConfig struct {
	Queue        []Case
	LabelsPath   string
	ProgressPath string
	DataPath     string
	ModelPath    string
	Resume       bool
	Journal      *Journal // optional audit journal, may be nil
}

// Session is the resumable review state machine. It is strictly
// single-threaded: every decision persists progress before the session
// yields control back to input handling.
type Session struct {
	queue        []Case
	pos          int
	staged       []Label
	progress     Progress
	labelsPath   string
	progressPath string
	journal      *Journal
	applied      int
	skipped      int
}

// NewSession starts (or resumes) a session over a built queue. With Resume
// set, prior progress is honored only when it was recorded for the exact
// same (data, model) pair.
func NewSession(cfg SessionConfig) *Session {
	progress := Progress{DataPath: cfg.DataPath, ModelPath: cfg.ModelPath}
	if cfg.Resume {
		progress = LoadProgress(cfg.ProgressPath, cfg.DataPath, cfg.ModelPath)
	}
	s := &Session{
		queue:        cfg.Queue,
		progress:     progress,
		labelsPath:   cfg.LabelsPath,
		progressPath: cfg.ProgressPath,
		journal:      cfg.Journal,
	}
	s.skipReviewed()
	logging.Review("session started: %d queued, %d already reviewed", len(cfg.Queue), len(progress.ReviewedIndices))
	return s
}

func (s *Session) skipReviewed() {
	for s.pos < len(s.queue) && s.progress.Reviewed(s.queue[s.pos].Index) {
		s.pos++
	}
}

// Current returns the case awaiting a decision. ok is false when the queue
// is exhausted.
func (s *Session) Current() (Case, bool) {
	if s.pos >= len(s.queue) {
		return Case{}, false
	}
	return s.queue[s.pos], true
}

// Position returns (1-based current position, queue length) for display.
func (s *Session) Position() (int, int) { return s.pos + 1, len(s.queue) }

// Applied returns the number of decisions applied this session.
func (s *Session) Applied() int { return s.applied }

// Skipped returns the number of cases skipped this session.
func (s *Session) Skipped() int { return s.skipped }

// StagedCount returns the number of labels staged but not yet flushed.
func (s *Session) StagedCount() int { return len(s.staged) }

// Accept applies the recommended category for the current case.
func (s *Session) Accept() error {
	c, ok := s.Current()
	if !ok {
		return fmt.Errorf("no case to accept")
	}
	return s.apply(c, c.Recommended())
}

// ChooseRule applies the rule engine's prediction.
func (s *Session) ChooseRule() error {
	c, ok := s.Current()
	if !ok {
		return fmt.Errorf("no case to label")
	}
	return s.apply(c, c.RulePrediction)
}

// ChooseML applies the model's prediction.
func (s *Session) ChooseML() error {
	c, ok := s.Current()
	if !ok {
		return fmt.Errorf("no case to label")
	}
	return s.apply(c, c.MLPrediction)
}

// ChooseOther labels the case as the catch-all category.
func (s *Session) ChooseOther() error {
	c, ok := s.Current()
	if !ok {
		return fmt.Errorf("no case to label")
	}
	return s.apply(c, string(taxonomy.Other))
}

// ChooseNumber labels the case by its 1-based taxonomy number.
func (s *Session) ChooseNumber(n int) error {
	c, ok := s.Current()
	if !ok {
		return fmt.Errorf("no case to label")
	}
	cat, valid := taxonomy.ByNumber(n)
	if !valid {
		return fmt.Errorf("category number %d out of range 1..%d", n, len(taxonomy.All))
	}
	return s.apply(c, string(cat))
}

// Skip advances past the current case without recording anything; the case
// stays unreviewed and reappears on resume.
func (s *Session) Skip() error {
	if _, ok := s.Current(); !ok {
		return fmt.Errorf("no case to skip")
	}
	s.skipped++
	s.pos++
	s.skipReviewed()
	return nil
}

// apply stages a label, persists progress immediately, and autosaves the
// staged buffer every autosaveEvery decisions.
func (s *Session) apply(c Case, category string) error {
	label := Label{
		Procedure:     c.Procedure,
		HumanCategory: taxonomy.NormalizeLabel(category),
		RuleCategory:  c.RulePrediction,
		MLCategory:    c.MLPrediction,
		Confidence:    3,
		Notes:         "",
		SourceCaseID:  c.CaseID,
	}
	s.staged = append(s.staged, label)
	s.applied++

	if s.journal != nil {
		if err := s.journal.Record(c, label.HumanCategory); err != nil {
			logging.Get(logging.CategoryReview).Warn("journal write failed: %v", err)
		}
	}

	s.progress.MarkReviewed(c.Index)
	if err := s.progress.Save(s.progressPath); err != nil {
		return err
	}

	s.pos++
	s.skipReviewed()

	if len(s.staged)%autosaveEvery == 0 {
		return s.flushStaged()
	}
	return nil
}

func (s *Session) flushStaged() error {
	if len(s.staged) == 0 {
		return nil
	}
	if err := MergeLabels(s.labelsPath, s.staged); err != nil {
		return err
	}
	s.staged = s.staged[:0]
	return nil
}

// Finish flushes any staged labels. Call on quit or queue exhaustion.
func (s *Session) Finish() error {
	logging.Review("session finished: %d applied, %d skipped", s.applied, s.skipped)
	return s.flushStaged()
}
