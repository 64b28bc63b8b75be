package review

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"casewise/internal/logging"
)

// Journal is an append-only SQLite record of review decisions. Unlike the
// labels CSV (which deduplicates by procedure), the journal keeps every
// decision ever made, so earlier corrections remain auditable after being
// overridden.
type Journal struct {
	db        *sql.DB
	sessionID string
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS review_decisions (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	case_index     INTEGER NOT NULL,
	procedure      TEXT NOT NULL,
	human_category TEXT NOT NULL,
	rule_category  TEXT,
	ml_category    TEXT,
	ml_confidence  REAL,
	decided_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_session ON review_decisions(session_id);
CREATE INDEX IF NOT EXISTS idx_decisions_procedure ON review_decisions(procedure);
`

// OpenJournal opens (creating if needed) the decision journal at path and
// starts a new session.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open review journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init review journal schema: %w", err)
	}

	j := &Journal{db: db, sessionID: uuid.NewString()}
	logging.Review("opened review journal %s (session %s)", path, j.sessionID)
	return j, nil
}

// SessionID returns the identifier of the current journal session.
func (j *Journal) SessionID() string { return j.sessionID }

// Record appends one decision.
func (j *Journal) Record(c Case, humanCategory string) error {
	_, err := j.db.Exec(`
		INSERT INTO review_decisions
			(id, session_id, case_index, procedure, human_category, rule_category, ml_category, ml_confidence, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), j.sessionID, c.Index, c.Procedure, humanCategory,
		c.RulePrediction, c.MLPrediction, c.MLConfidence, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record review decision: %w", err)
	}
	return nil
}

// SessionCounts returns decisions-per-session, newest sessions included.
func (j *Journal) SessionCounts() (map[string]int, error) {
	rows, err := j.db.Query(`SELECT session_id, COUNT(*) FROM review_decisions GROUP BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query session counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// History returns every recorded decision for a procedure, oldest first.
func (j *Journal) History(procedure string) ([]string, error) {
	rows, err := j.db.Query(`
		SELECT human_category FROM review_decisions
		WHERE procedure = ? ORDER BY decided_at, rowid`, procedure)
	if err != nil {
		return nil, fmt.Errorf("query decision history: %w", err)
	}
	defer rows.Close()

	var history []string
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, err
		}
		history = append(history, cat)
	}
	return history, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}
