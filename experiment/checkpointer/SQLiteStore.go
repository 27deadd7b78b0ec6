package checkpointer

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store that saves Checkpoints as rows of a SQLite
// database. Rows are keyed by a run identifier and the iteration, so
// that many runs may share a single database file.
type SQLiteStore struct {
	db  *sql.DB
	run string
	tag string
}

// NewSQLiteStore opens or creates the SQLite database at path. If run
// is empty, a new random run identifier is generated.
func NewSQLiteStore(path, run, tag string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("newSQLiteStore: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("newSQLiteStore: could not create "+
				"directory: %v", err)
		}
	}

	if run == "" {
		run = uuid.New().String()
	} else if _, err := uuid.Parse(run); err != nil {
		return nil, fmt.Errorf("newSQLiteStore: invalid run id %q: %v",
			run, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("newSQLiteStore: could not open "+
			"database: %v", err)
	}

	store := &SQLiteStore{db: db, run: run, tag: tag}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("newSQLiteStore: %v", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			reason TEXT NOT NULL,
			tag TEXT NOT NULL,
			policy BLOB NOT NULL,
			value BLOB NOT NULL,
			rewards BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run, iteration)
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("could not create schema: %v", err)
	}
	return nil
}

// Run returns the identifier of the run Checkpoints are saved under
func (s *SQLiteStore) Run() string {
	return s.run
}

// LatestRun returns the identifier of the run which most recently
// saved a Checkpoint to the SQLite database at path
func LatestRun(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("latestRun: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", fmt.Errorf("latestRun: could not open database: %v", err)
	}
	defer db.Close()

	var run string
	err = db.QueryRow(`
		SELECT run FROM checkpoints
		ORDER BY created_at DESC, iteration DESC LIMIT 1
	`).Scan(&run)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("latestRun: no checkpoint has been saved")
	}
	if err != nil {
		return "", fmt.Errorf("latestRun: %v", err)
	}
	return run, nil
}

// Save saves a Checkpoint. Saving the same iteration twice replaces
// the earlier Checkpoint.
func (s *SQLiteStore) Save(c Checkpoint) error {
	policy, err := encode(c.Policy)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	value, err := encode(c.Value)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	rewards, err := encode(c.Rewards)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO checkpoints
			(run, iteration, reason, tag, policy, value, rewards, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.run, c.Iteration, string(c.Reason), s.tag, policy, value, rewards,
		time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Load loads the Checkpoint of the latest iteration of the run
func (s *SQLiteStore) Load() (Checkpoint, error) {
	row := s.db.QueryRow(`
		SELECT iteration, reason, policy, value, rewards
		FROM checkpoints WHERE run = ?
		ORDER BY iteration DESC LIMIT 1
	`, s.run)
	c, err := scan(row)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load: %v", err)
	}
	return c, nil
}

// LoadIteration loads the Checkpoint saved at a specific iteration of
// the run
func (s *SQLiteStore) LoadIteration(iteration int) (Checkpoint, error) {
	row := s.db.QueryRow(`
		SELECT iteration, reason, policy, value, rewards
		FROM checkpoints WHERE run = ? AND iteration = ?
	`, s.run, iteration)
	c, err := scan(row)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("loadIteration: %v", err)
	}
	return c, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scan(row *sql.Row) (Checkpoint, error) {
	var c Checkpoint
	var reason string
	var policy, value, rewards []byte
	err := row.Scan(&c.Iteration, &reason, &policy, &value, &rewards)
	if err == sql.ErrNoRows {
		return Checkpoint{}, fmt.Errorf("no checkpoint has been saved")
	}
	if err != nil {
		return Checkpoint{}, err
	}
	c.Reason = Reason(reason)

	if c.Policy, err = decode(policy); err != nil {
		return Checkpoint{}, err
	}
	if c.Value, err = decode(value); err != nil {
		return Checkpoint{}, err
	}
	if c.Rewards, err = decode(rewards); err != nil {
		return Checkpoint{}, err
	}
	return c, nil
}

func encode(data []float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return nil, fmt.Errorf("could not encode data: %v", err)
	}
	return buf.Bytes(), nil
}

func decode(blob []byte) ([]float64, error) {
	var data []float64
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&data); err != nil {
		return nil, fmt.Errorf("could not decode data: %v", err)
	}
	return data, nil
}
