package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by GetQuery for unknown ids.
var ErrNotFound = errors.New("memory: not found")

// DefaultListLimit caps ListQueries when no limit is given.
const DefaultListLimit = 20

// QueryRecord is one served query.
type QueryRecord struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id,omitempty"`
	UserID       string    `json:"user_id"`
	Model        string    `json:"model"`
	Query        string    `json:"query"`
	Summary      string    `json:"summary"`
	Results      string    `json:"results"` // JSON array of tool outcomes
	ToolCalls    int       `json:"tool_calls"`
	FailedCalls  int       `json:"failed_calls"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists query history.
type Store interface {
	RecordQuery(ctx context.Context, r *QueryRecord) error
	// ListQueries returns the newest records first. An empty userID lists
	// every user.
	ListQueries(ctx context.Context, userID string, limit int) ([]*QueryRecord, error)
	GetQuery(ctx context.Context, id string) (*QueryRecord, error)
	Close() error
}

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS queries (
    id            TEXT PRIMARY KEY,
    request_id    TEXT,
    user_id       TEXT NOT NULL,
    model         TEXT NOT NULL,
    query         TEXT NOT NULL,
    summary       TEXT NOT NULL,
    results       TEXT NOT NULL,
    tool_calls    INTEGER NOT NULL DEFAULT 0,
    failed_calls  INTEGER NOT NULL DEFAULT 0,
    input_tokens  INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd      REAL NOT NULL DEFAULT 0.0,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    error         TEXT,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_queries_user_created ON queries(user_id, created_at);
`

// DefaultDBPath returns the default database path (~/.config/fincall/fincall.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("memory: cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fincall", "fincall.db"), nil
}

// NewStore opens (or creates) a SQLite database at the given path and initializes the schema.
func NewStore(dbPath string) (Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("memory: failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("memory: failed to open database %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: failed to initialize schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) RecordQuery(ctx context.Context, r *QueryRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Results == "" {
		r.Results = "[]"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (id, request_id, user_id, model, query, summary, results, tool_calls, failed_calls,
		                      input_tokens, output_tokens, cost_usd, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.UserID, r.Model, r.Query, r.Summary, r.Results, r.ToolCalls, r.FailedCalls,
		r.InputTokens, r.OutputTokens, r.CostUSD, r.DurationMs, r.Error, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("memory: record query: %w", err)
	}
	return nil
}

const selectQuery = `SELECT id, request_id, user_id, model, query, summary, results, tool_calls, failed_calls,
        input_tokens, output_tokens, cost_usd, duration_ms, error, created_at FROM queries`

func (s *sqliteStore) ListQueries(ctx context.Context, userID string, limit int) ([]*QueryRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = s.db.QueryContext(ctx, selectQuery+` ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectQuery+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: list queries: %w", err)
	}
	defer rows.Close()

	var records []*QueryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: list queries scan: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *sqliteStore) GetQuery(ctx context.Context, id string) (*QueryRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectQuery+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: query %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get query: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*QueryRecord, error) {
	r := &QueryRecord{}
	var requestID, errText sql.NullString
	if err := row.Scan(&r.ID, &requestID, &r.UserID, &r.Model, &r.Query, &r.Summary, &r.Results,
		&r.ToolCalls, &r.FailedCalls, &r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.DurationMs,
		&errText, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.RequestID = requestID.String
	r.Error = errText.String
	return r, nil
}
