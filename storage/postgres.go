package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/youssefsiam38/historypg/types"
)

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements Store using PostgreSQL with pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pgxpool.Pool
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// Migrate creates the tables used by the store if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.getQuerier(ctx).Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// InTx runs fn inside a transaction. If ctx already carries one, fn joins it
// and the caller stays responsible for committing.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after Commit returns pgx.ErrTxClosed
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Printf("historypg/storage: rollback failed: %v", err)
		}
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetItems retrieves all messages for a session in stored order
func (s *PostgresStore) GetItems(ctx context.Context, sessionID string) ([]*types.Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	query := `
		SELECT id, role, content, extra, created_at
		FROM historypg_messages
		WHERE session_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID)
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
func (s *PostgresStore) DeleteItems(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	_, err := s.getQuerier(ctx).Exec(ctx, `DELETE FROM historypg_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// AddItems appends messages to a session in a single batch
func (s *PostgresStore) AddItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(messages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO historypg_messages (id, session_id, role, content, extra, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	for _, msg := range messages {
		extraJSON, err := encodeExtra(msg)
		if err != nil {
			return err
		}

		batch.Queue(query,
			uuid.New().String(),
			sessionID,
			string(msg.Role),
			msg.Content,
			extraJSON,
		)
	}

	results := s.getQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for range messages {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	return nil
}

// ReplaceItems swaps a session's messages in one transaction
func (s *PostgresStore) ReplaceItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	return s.InTx(ctx, func(ctx context.Context) error {
		if err := s.DeleteItems(ctx, sessionID); err != nil {
			return err
		}
		return s.AddItems(ctx, sessionID, messages)
	})
}

// RecordCompaction saves a compaction event
func (s *PostgresStore) RecordCompaction(ctx context.Context, event *CompactionEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	query := `
		INSERT INTO historypg_compaction_events
			(id, session_id, mode, original_messages, final_messages,
			 dropped_headers, scrubbed_messages, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := s.getQuerier(ctx).Exec(ctx, query,
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
func (s *PostgresStore) GetCompactionHistory(ctx context.Context, sessionID string) ([]*CompactionEvent, error) {
	query := `
		SELECT id, session_id, mode, original_messages, final_messages,
		       dropped_headers, scrubbed_messages, duration_ms, created_at
		FROM historypg_compaction_events
		WHERE session_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID)
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

// DeleteCompactionEventsBefore removes compaction events older than before
func (s *PostgresStore) DeleteCompactionEventsBefore(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.getQuerier(ctx).Exec(ctx,
		`DELETE FROM historypg_compaction_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete compaction events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var (
	_ Store         = (*PostgresStore)(nil)
	_ Replacer      = (*PostgresStore)(nil)
	_ Transactor    = (*PostgresStore)(nil)
	_ EventRecorder = (*PostgresStore)(nil)
	_ EventPruner   = (*PostgresStore)(nil)
)
