package historypg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/youssefsiam38/historypg/compaction"
	"github.com/youssefsiam38/historypg/storage"
	"github.com/youssefsiam38/historypg/types"
)

// Session is a handle on one session's history
type Session struct {
	client *Client
	id     string
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// ListMessages returns the session's messages in stored order
func (s *Session) ListMessages(ctx context.Context) ([]*types.Message, error) {
	if s.id == "" {
		return nil, NewHistoryError("ListMessages", ErrEmptySessionID)
	}

	messages, err := s.client.store.GetItems(ctx, s.id)
	if err != nil {
		return nil, s.storageError("ListMessages", err)
	}
	return messages, nil
}

// Append adds messages to the end of the session
func (s *Session) Append(ctx context.Context, messages ...*types.Message) error {
	if s.id == "" {
		return NewHistoryError("Append", ErrEmptySessionID)
	}
	if len(messages) == 0 {
		return nil
	}

	if err := s.client.hooks.TriggerBeforeAppend(ctx, s.id, messages); err != nil {
		return NewHistoryErrorWithSession("Append", s.id, err).
			WithContext("hook", "before_append")
	}

	if err := s.client.store.AddItems(ctx, s.id, messages); err != nil {
		return s.storageError("Append", err)
	}
	return nil
}

// ReplaceAll swaps the session's history for messages. Stores implementing
// storage.Replacer do this atomically; others delete and then append.
func (s *Session) ReplaceAll(ctx context.Context, messages []*types.Message) error {
	if s.id == "" {
		return NewHistoryError("ReplaceAll", ErrEmptySessionID)
	}

	if !s.client.acquire(s.id) {
		return NewHistoryErrorWithSession("ReplaceAll", s.id, ErrCompactionInProgress)
	}
	defer s.client.release(s.id)

	if r, ok := s.client.store.(storage.Replacer); ok {
		if err := r.ReplaceItems(ctx, s.id, messages); err != nil {
			return s.storageError("ReplaceAll", err)
		}
		return nil
	}

	if err := s.client.store.DeleteItems(ctx, s.id); err != nil {
		return s.storageError("ReplaceAll", err).WithContext("step", "delete")
	}
	if len(messages) == 0 {
		return nil
	}
	if err := s.client.store.AddItems(ctx, s.id, messages); err != nil {
		return s.storageError("ReplaceAll", err).WithContext("step", "append")
	}
	return nil
}

// Compact rewrites the session's history: superseded header messages are
// dropped, scrub fields are removed from every user message except the
// latest, and a fresh header with the given content is appended last.
func (s *Session) Compact(ctx context.Context, header string) (*compaction.Result, error) {
	return s.client.compact(ctx, s.id, header)
}

// CompactTx runs Compact inside an existing PostgreSQL transaction.
// The store must be a *storage.PostgresStore; the caller commits or rolls
// back tx.
func (s *Session) CompactTx(ctx context.Context, tx pgx.Tx, header string) (*compaction.Result, error) {
	if _, ok := s.client.store.(*storage.PostgresStore); !ok {
		return nil, NewHistoryErrorWithSession("CompactTx", s.id,
			fmt.Errorf("%w: CompactTx requires a PostgresStore", ErrInvalidConfig))
	}
	return s.client.compact(storage.WithTx(ctx, tx), s.id, header)
}

// CompactSQLTx runs Compact inside an existing database/sql transaction.
// The store must be a *storage.SQLStore; the caller commits or rolls back tx.
func (s *Session) CompactSQLTx(ctx context.Context, tx *sql.Tx, header string) (*compaction.Result, error) {
	if _, ok := s.client.store.(*storage.SQLStore); !ok {
		return nil, NewHistoryErrorWithSession("CompactSQLTx", s.id,
			fmt.Errorf("%w: CompactSQLTx requires a SQLStore", ErrInvalidConfig))
	}
	return s.client.compact(storage.WithSQLTx(ctx, tx), s.id, header)
}

// Recover restores the session from a staged copy, see Client.Recover
func (s *Session) Recover(ctx context.Context) (bool, error) {
	return s.client.Recover(ctx, s.id)
}

func (s *Session) storageError(op string, err error) *HistoryError {
	return NewHistoryErrorWithSession(op, s.id, fmt.Errorf("%w: %w", ErrStorageError, err))
}
