package storage

import (
	"context"
	"errors"
	"time"

	"github.com/youssefsiam38/historypg/types"
)

var (
	// ErrEmptySessionID is returned when an operation is called without a session ID
	ErrEmptySessionID = errors.New("session id is required")

	// ErrNoStagedItems is returned when no staged copy exists for a session
	ErrNoStagedItems = errors.New("no staged items for session")
)

// Store defines the storage contract for session histories.
// Every operation is scoped to exactly one session ID.
type Store interface {
	// GetItems returns the session's messages in stored order
	GetItems(ctx context.Context, sessionID string) ([]*types.Message, error)

	// DeleteItems removes the session's whole message list
	DeleteItems(ctx context.Context, sessionID string) error

	// AddItems appends messages to the session, preserving the given order
	AddItems(ctx context.Context, sessionID string, messages []*types.Message) error
}

// Replacer is implemented by stores that can swap a session's list atomically.
type Replacer interface {
	ReplaceItems(ctx context.Context, sessionID string, messages []*types.Message) error
}

// Stager is implemented by stores that can keep a recovery copy of a session's
// list while it is being rewritten.
type Stager interface {
	// StageItems stores a copy of messages under the session's staging key,
	// overwriting any previous copy
	StageItems(ctx context.Context, sessionID string, messages []*types.Message) error

	// StagedItems returns the staged copy, or ErrNoStagedItems
	StagedItems(ctx context.Context, sessionID string) ([]*types.Message, error)

	// DropStaged removes the staged copy. Dropping a missing copy is not an error.
	DropStaged(ctx context.Context, sessionID string) error
}

// StagedSession identifies a staged copy that has not been dropped
type StagedSession struct {
	SessionID string
	StagedAt  time.Time
}

// StagedLister is implemented by stagers that can enumerate their staged
// copies, so that copies left by a crashed process can be found.
type StagedLister interface {
	ListStaged(ctx context.Context) ([]StagedSession, error)
}

// EventRecorder is implemented by stores that keep an audit trail of compactions.
type EventRecorder interface {
	RecordCompaction(ctx context.Context, event *CompactionEvent) error
	GetCompactionHistory(ctx context.Context, sessionID string) ([]*CompactionEvent, error)
}

// EventPruner is implemented by stores that can delete old compaction events
type EventPruner interface {
	// DeleteCompactionEventsBefore removes events created before the given
	// time and returns how many were removed
	DeleteCompactionEventsBefore(ctx context.Context, before time.Time) (int, error)
}

// CompactionEvent represents a history compaction
type CompactionEvent struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Mode             string    `json:"mode"`
	OriginalMessages int       `json:"original_messages"`
	FinalMessages    int       `json:"final_messages"`
	DroppedHeaders   int       `json:"dropped_headers"`
	ScrubbedMessages int       `json:"scrubbed_messages"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}
