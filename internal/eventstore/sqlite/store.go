package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Martian-dev/mailpoll/internal/incident"
	"github.com/Martian-dev/mailpoll/internal/platform"
)

//go:embed schema.sql
var schemaSQL string

// EventIncidentEmitted is the outbox event type of emitted incidents
const EventIncidentEmitted = "incident.emitted"

// Store is the platform backed by a local SQLite database: cursor state,
// emitted incidents, their attachment files and the publication outbox
type Store struct {
	DB *sqlx.DB

	// Subject prefixes outbox subjects; the state key is appended
	Subject string
}

// StoredIncident is an emitted incident row
type StoredIncident struct {
	ID        string `db:"id"`
	Instance  string `db:"instance"`
	MessageID string `db:"message_id"`
	Name      string `db:"name"`
	Occurred  string `db:"occurred"`
	Payload   []byte `db:"payload"`
	CreatedAt int64  `db:"created_at"`
}

type outboxRow struct {
	ID      int64  `db:"id"`
	Subject string `db:"subject"`
	Payload []byte `db:"payload"`
	MsgID   string `db:"msg_id"`
}

// Open opens or creates the database at dbPath
func Open(dbPath, subject string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if subject == "" {
		subject = "mailpoll.incidents"
	}
	return &Store{DB: db, Subject: subject}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.DB.Close()
}

// LoadState returns the cursor state stored under key, or nil
func (s *Store) LoadState(ctx context.Context, key string) ([]byte, error) {
	var state []byte
	err := s.DB.GetContext(ctx, &state, `SELECT state FROM cursor_state WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return state, nil
}

// PersistState replaces the cursor state stored under key
func (s *Store) PersistState(ctx context.Context, key string, state []byte) error {
	return persistState(ctx, s.DB, key, state)
}

// DeleteState removes the cursor state stored under key
func (s *Store) DeleteState(ctx context.Context, key string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM cursor_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// EmitIncidents stores the incidents of one tick together with their
// attachment files and outbox entries
func (s *Store) EmitIncidents(ctx context.Context, key string, incidents []incident.Incident) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return s.emitTx(ctx, tx, key, incidents)
	})
}

// CommitTick emits incidents and persists the cursor state atomically
func (s *Store) CommitTick(ctx context.Context, key string, state []byte, incidents []incident.Incident) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.emitTx(ctx, tx, key, incidents); err != nil {
			return err
		}
		return persistState(ctx, tx, key, state)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) emitTx(ctx context.Context, tx *sqlx.Tx, key string, incidents []incident.Incident) error {
	now := time.Now().Unix()
	subject := s.Subject + "." + key

	for i := range incidents {
		inc := &incidents[i]
		for j := range inc.Attachment {
			file := &inc.Attachment[j]
			file.Path = uuid.NewString()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO files (id, name, data, created_at) VALUES (?, ?, ?, ?)
			`, file.Path, file.Name, file.Data, now)
			if err != nil {
				return fmt.Errorf("failed to insert file: %w", err)
			}
		}

		payload, err := json.Marshal(inc)
		if err != nil {
			return fmt.Errorf("failed to marshal incident: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO incidents (id, instance, message_id, name, occurred, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), key, inc.MessageID, inc.Name, inc.Occurred, payload, now)
		if err != nil {
			return fmt.Errorf("failed to insert incident: %w", err)
		}

		// UNIQUE msg_id keeps a re-emitted message from being published twice
		msgID := fmt.Sprintf("%s|%s|%s", EventIncidentEmitted, key, inc.MessageID)
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO outbox (ts, subject, event_type, payload, msg_id, next_attempt_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, now, subject, EventIncidentEmitted, payload, msgID, now)
		if err != nil {
			return fmt.Errorf("failed to insert outbox entry: %w", err)
		}
	}
	return nil
}

func persistState(ctx context.Context, db sqlx.ExecerContext, key string, state []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO cursor_state (key, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, key, state, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// Incidents returns the most recent incidents emitted for instance
func (s *Store) Incidents(ctx context.Context, instance string, limit int) ([]StoredIncident, error) {
	var rows []StoredIncident
	err := s.DB.SelectContext(ctx, &rows, `
		SELECT id, instance, message_id, name, occurred, payload, created_at
		FROM incidents
		WHERE instance = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, instance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	return rows, nil
}

// File returns the name and content of a stored attachment
func (s *Store) File(ctx context.Context, id string) (string, []byte, error) {
	var row struct {
		Name string `db:"name"`
		Data []byte `db:"data"`
	}
	if err := s.DB.GetContext(ctx, &row, `SELECT name, data FROM files WHERE id = ?`, id); err != nil {
		return "", nil, fmt.Errorf("failed to load file: %w", err)
	}
	return row.Name, row.Data, nil
}

// DequeueOutbox fetches unpublished messages from outbox
func (s *Store) DequeueOutbox(ctx context.Context, limit int) ([]platform.OutboxMessage, error) {
	var rows []outboxRow
	err := s.DB.SelectContext(ctx, &rows, `
		SELECT id, subject, payload, msg_id
		FROM outbox
		WHERE published_at IS NULL
		  AND next_attempt_at <= ?
		ORDER BY id
		LIMIT ?
	`, time.Now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}

	messages := make([]platform.OutboxMessage, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, platform.OutboxMessage{
			ID:      r.ID,
			Subject: r.Subject,
			Payload: r.Payload,
			MsgID:   r.MsgID,
		})
	}
	return messages, nil
}

// MarkPublished marks an outbox message as published
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE outbox SET published_at = ? WHERE id = ?
	`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark published: %w", err)
	}
	return nil
}

// MarkOutboxRetry updates retry count and next attempt time
func (s *Store) MarkOutboxRetry(ctx context.Context, id int64, backoff time.Duration) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE outbox
		SET retries = retries + 1,
		    next_attempt_at = ?
		WHERE id = ?
	`, time.Now().Add(backoff).Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark retry: %w", err)
	}
	return nil
}

var (
	_ platform.Platform  = (*Store)(nil)
	_ platform.Committer = (*Store)(nil)
	_ platform.Outbox    = (*Store)(nil)
)
