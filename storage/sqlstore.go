package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/youssefsiam38/historypg/types"
)

// sqlQuerier is a common interface for *sql.DB and *sql.Tx
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on database/sql with the lib/pq driver.
// Appends are streamed with COPY.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an existing connection.
// The connection must use the "postgres" driver registered by lib/pq.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLStore opens a lib/pq connection and verifies it
func OpenSQLStore(ctx context.Context, connStr string) (*SQLStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// DB returns the underlying database connection
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *SQLStore) getQuerier(ctx context.Context) sqlQuerier {
	if tx := SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// Migrate creates the tables used by the store if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.getQuerier(ctx).ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// InTx runs fn inside a transaction. If ctx already carries one, fn joins it.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if SQLTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("historypg/storage: rollback failed: %v", err)
		}
	}()

	if err := fn(WithSQLTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetItems retrieves all messages for a session in stored order
func (s *SQLStore) GetItems(ctx context.Context, sessionID string) ([]*types.Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	query := `
		SELECT id, role, content, extra, created_at
		FROM historypg_messages
		WHERE session_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.getQuerier(ctx).QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		var msg types.Message
		var role string
		var extraJSON []byte

		if err := rows.Scan(&msg.ID, &role, &msg.Content, &extraJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = types.Role(role)

		if err := decodeExtra(&msg, extraJSON); err != nil {
			return nil, err
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// DeleteItems deletes every message of a session
func (s *SQLStore) DeleteItems(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	_, err := s.getQuerier(ctx).ExecContext(ctx, `DELETE FROM historypg_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// AddItems appends messages with COPY. COPY needs a transaction, so one is
// opened unless ctx already carries one.
func (s *SQLStore) AddItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(messages) == 0 {
		return nil
	}

	return s.InTx(ctx, func(ctx context.Context) error {
		tx := SQLTxFromContext(ctx)

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("historypg_messages", "id", "session_id", "role", "content", "extra"))
		if err != nil {
			return fmt.Errorf("failed to prepare copy: %w", err)
		}

		for _, msg := range messages {
			extraJSON, err := encodeExtra(msg)
			if err != nil {
				stmt.Close()
				return err
			}

			// lib/pq sends []byte as bytea, jsonb needs text
			var extra any
			if extraJSON != nil {
				extra = string(extraJSON)
			}

			if _, err := stmt.ExecContext(ctx, uuid.New().String(), sessionID, string(msg.Role), msg.Content, extra); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to queue message: %w", err)
			}
		}

		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to save messages: %w", err)
		}

		if err := stmt.Close(); err != nil {
			return fmt.Errorf("failed to close copy: %w", err)
		}
		return nil
	})
}

// ReplaceItems swaps a session's messages in one transaction
func (s *SQLStore) ReplaceItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		if err := s.DeleteItems(ctx, sessionID); err != nil {
			return err
		}
		return s.AddItems(ctx, sessionID, messages)
	})
}

// RecordCompaction saves a compaction event
func (s *SQLStore) RecordCompaction(ctx context.Context, event *CompactionEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	query := `
		INSERT INTO historypg_compaction_events
			(id, session_id, mode, original_messages, final_messages,
			 dropped_headers, scrubbed_messages, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := s.getQuerier(ctx).ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.Mode,
		event.OriginalMessages,
		event.FinalMessages,
		event.DroppedHeaders,
		event.ScrubbedMessages,
		event.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save compaction event: %w", err)
	}

	return nil
}

// GetCompactionHistory retrieves compaction history for a session, newest first
func (s *SQLStore) GetCompactionHistory(ctx context.Context, sessionID string) ([]*CompactionEvent, error) {
	query := `
		SELECT id, session_id, mode, original_messages, final_messages,
		       dropped_headers, scrubbed_messages, duration_ms, created_at
		FROM historypg_compaction_events
		WHERE session_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.getQuerier(ctx).QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query compaction history: %w", err)
	}
	defer rows.Close()

	var events []*CompactionEvent
	for rows.Next() {
		var event CompactionEvent
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Mode,
			&event.OriginalMessages,
			&event.FinalMessages,
			&event.DroppedHeaders,
			&event.ScrubbedMessages,
			&event.DurationMs,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan compaction event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating compaction events: %w", err)
	}

	return events, nil
}

// DeleteSessions removes the messages of several sessions at once
func (s *SQLStore) DeleteSessions(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	_, err := s.getQuerier(ctx).ExecContext(ctx,
		`DELETE FROM historypg_messages WHERE session_id = ANY($1)`, pq.Array(sessionIDs))
	if err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// DeleteCompactionEventsBefore removes compaction events older than before
func (s *SQLStore) DeleteCompactionEventsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.getQuerier(ctx).ExecContext(ctx,
		`DELETE FROM historypg_compaction_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete compaction events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted compaction events: %w", err)
	}
	return int(n), nil
}

var (
	_ Store         = (*SQLStore)(nil)
	_ Replacer      = (*SQLStore)(nil)
	_ Transactor    = (*SQLStore)(nil)
	_ EventRecorder = (*SQLStore)(nil)
	_ EventPruner   = (*SQLStore)(nil)
)
