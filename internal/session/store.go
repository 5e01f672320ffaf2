package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/engine"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Store is the SQLite transcript database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets `duet history` read while a session is writing
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		task       TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		summary    TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL,
		work_dir   TEXT NOT NULL,
		status     TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		turns      INTEGER NOT NULL DEFAULT 0,
		tokens     INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		blocks     INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS executions (
		session_id TEXT NOT NULL,
		turn       INTEGER NOT NULL,
		block      INTEGER NOT NULL,
		lang       TEXT NOT NULL,
		filename   TEXT NOT NULL DEFAULT '',
		exit_code  INTEGER NOT NULL,
		status     TEXT NOT NULL DEFAULT '',
		reason     TEXT NOT NULL DEFAULT '',
		timed_out  INTEGER NOT NULL DEFAULT 0,
		stdout     TEXT NOT NULL DEFAULT '',
		stderr     TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, turn, block),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateSession records the start of a session.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	query := `
		INSERT INTO sessions (session_id, task, title, model, work_dir, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			task = excluded.task,
			model = excluded.model,
			work_dir = excluded.work_dir,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, sess.ID, sess.Task, sess.Title, sess.Model, sess.WorkDir,
		string(sess.Status), sess.CreatedAt.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", sess.ID, err)
	}
	return nil
}

// AppendMessage stores msg at position seq of the session history.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, seq int, msg engine.ChatMessage) error {
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO messages (session_id, seq, role, name, content, blocks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, sessionID, seq, string(msg.Role), msg.Name, msg.Content, len(msg.CodeBlocks), now); err != nil {
		return fmt.Errorf("failed to insert message %d: %w", seq, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE session_id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return tx.Commit()
}

// AppendExecution stores every block result of one turn.
func (s *Store) AppendExecution(ctx context.Context, sessionID string, turn int, exec engine.Execution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO executions
			(session_id, turn, block, lang, filename, exit_code, status, reason, timed_out, stdout, stderr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range exec.Results {
		if _, err := stmt.ExecContext(ctx, sessionID, turn, i, r.Lang, r.Filename, r.ExitCode, r.Status, r.Reason,
			boolToInt(r.TimedOut), r.Stdout, r.Stderr); err != nil {
			return fmt.Errorf("failed to insert execution %d/%d: %w", turn, i, err)
		}
	}
	return tx.Commit()
}

// Finish records the terminal state of st.
func (s *Store) Finish(ctx context.Context, st *engine.State) error {
	var errMsg string
	if st.Err != nil {
		errMsg = st.Err.Error()
	}
	query := `
		UPDATE sessions
		SET status = ?, reason = ?, error = ?, turns = ?, tokens = ?, updated_at = ?
		WHERE session_id = ?
	`
	res, err := s.db.ExecContext(ctx, query, string(st.Status), string(st.Reason), errMsg, st.Turn, st.Totals.Total,
		time.Now().Unix(), st.ID)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", st.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTask stores the task text of a session.
func (s *Store) SetTask(ctx context.Context, sessionID, task string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET task = ? WHERE session_id = ?`, task, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set task: %w", err)
	}
	return nil
}

// SetTitle stores a generated title and optional summary.
func (s *Store) SetTitle(ctx context.Context, sessionID, title, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, summary = ? WHERE session_id = ?`, title, summary, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, task, title, summary, model, work_dir, status, reason, error, turns, tokens, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		sess             Session
		status, reason   string
		created, updated int64
	)
	err := row.Scan(&sess.ID, &sess.Task, &sess.Title, &sess.Summary, &sess.Model, &sess.WorkDir,
		&status, &reason, &sess.Error, &sess.Turns, &sess.Tokens, &created, &updated)
	if err != nil {
		return Session{}, err
	}
	sess.Status = engine.Status(status)
	sess.Reason = engine.Reason(reason)
	sess.CreatedAt = time.Unix(created, 0)
	sess.UpdatedAt = time.Unix(updated, 0)
	return sess, nil
}

// Get returns one session.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &sess, nil
}

// List returns the most recently updated sessions first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Messages returns the stored history of a session in order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, role, name, content, blocks, created_at
		FROM messages WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m := Message{SessionID: sessionID}
		var role string
		var created int64
		if err := rows.Scan(&m.Seq, &role, &m.Name, &m.Content, &m.Blocks, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = engine.MessageRole(role)
		m.CreatedAt = time.Unix(created, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Executions returns the stored block results of a session ordered by turn and block.
func (s *Store) Executions(ctx context.Context, sessionID string) ([]ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn, block, lang, filename, exit_code, status, reason, timed_out, stdout, stderr
		FROM executions WHERE session_id = ? ORDER BY turn, block
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		rec := ExecutionRecord{SessionID: sessionID}
		var timedOut int
		r := &rec.Result
		if err := rows.Scan(&rec.Turn, &rec.Block, &r.Lang, &r.Filename, &r.ExitCode, &r.Status, &r.Reason,
			&timedOut, &r.Stdout, &r.Stderr); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		r.TimedOut = timedOut != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
