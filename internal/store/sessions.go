package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/vibe/internal/agent"
	"github.com/rahul/vibe/internal/filetree"
	"github.com/rahul/vibe/internal/llm"
	"github.com/rahul/vibe/internal/plan"
)

// SessionStore keeps sessions in sqlite. The file tree is not stored: it is
// rebuilt on load by folding the stored steps again.
type SessionStore struct {
	DB *sql.DB
}

func NewSessionStore(dbPath string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			prompt TEXT,
			provider TEXT,
			project_type TEXT,
			next_id INTEGER,
			created_at INTEGER,
			updated_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			seq INTEGER,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			session_id TEXT,
			id INTEGER,
			kind TEXT,
			title TEXT,
			description TEXT,
			path TEXT,
			code TEXT,
			command TEXT,
			status TEXT,
			PRIMARY KEY (session_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, seq);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SessionStore{DB: db}, nil
}

func (h *SessionStore) Close() error {
	return h.DB.Close()
}

// SaveSession replaces the stored copy of s.
func (h *SessionStore) SaveSession(ctx context.Context, s *agent.Session) error {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, prompt, provider, project_type, next_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			prompt = excluded.prompt,
			provider = excluded.provider,
			project_type = excluded.project_type,
			next_id = excluded.next_id,
			updated_at = excluded.updated_at`,
		s.ID, s.Prompt, s.Provider, string(s.Type), s.NextID, s.CreatedAt.UnixNano(), s.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	for _, q := range []string{`DELETE FROM messages WHERE session_id = ?`, `DELETE FROM steps WHERE session_id = ?`} {
		if _, err := tx.ExecContext(ctx, q, s.ID); err != nil {
			return err
		}
	}

	for i, m := range s.Messages {
		_, err := tx.ExecContext(ctx, `INSERT INTO messages (session_id, seq, role, content) VALUES (?, ?, ?, ?)`,
			s.ID, i, string(m.Role), m.Content)
		if err != nil {
			return fmt.Errorf("save message %d: %w", i, err)
		}
	}

	for _, st := range s.Steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO steps (session_id, id, kind, title, description, path, code, command, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, st.ID, string(st.Kind), st.Title, st.Description, st.Path, st.Code, st.Command, string(st.Status))
		if err != nil {
			return fmt.Errorf("save step %d: %w", st.ID, err)
		}
	}

	return tx.Commit()
}

func (h *SessionStore) LoadSession(ctx context.Context, id string) (*agent.Session, error) {
	s := &agent.Session{ID: id}
	var pt string
	var created, updated int64
	err := h.DB.QueryRowContext(ctx,
		`SELECT prompt, provider, project_type, next_id, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&s.Prompt, &s.Provider, &pt, &s.NextID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agent.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Type = agent.ProjectType(pt)
	s.CreatedAt = time.Unix(0, created)
	s.UpdatedAt = time.Unix(0, updated)

	if s.Messages, err = h.messages(ctx, id); err != nil {
		return nil, err
	}
	if s.Steps, err = h.steps(ctx, id); err != nil {
		return nil, err
	}
	s.Tree = filetree.Build(s.Steps)
	return s, nil
}

func (h *SessionStore) messages(ctx context.Context, id string) ([]llm.Message, error) {
	rows, err := h.DB.QueryContext(ctx, `SELECT role, content FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llm.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		history = append(history, llm.Message{Role: llm.Role(role), Content: content})
	}
	return history, rows.Err()
}

func (h *SessionStore) steps(ctx context.Context, id string) ([]plan.Step, error) {
	rows, err := h.DB.QueryContext(ctx, `
		SELECT id, kind, title, description, path, code, command, status
		FROM steps WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []plan.Step
	for rows.Next() {
		var st plan.Step
		var kind, status string
		if err := rows.Scan(&st.ID, &kind, &st.Title, &st.Description, &st.Path, &st.Code, &st.Command, &status); err != nil {
			return nil, err
		}
		st.Kind = plan.Kind(kind)
		st.Status = plan.Status(status)
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (h *SessionStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM steps WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// IdleSessions lists sessions last updated before the given time.
func (h *SessionStore) IdleSessions(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := h.DB.QueryContext(ctx, `SELECT id FROM sessions WHERE updated_at < ? ORDER BY updated_at`, before.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
