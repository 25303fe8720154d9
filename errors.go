package historypg

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/historypg/compaction"
	"github.com/youssefsiam38/historypg/storage"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = compaction.ErrInvalidConfig

	// ErrStorageError is returned when a storage operation failed
	ErrStorageError = compaction.ErrStorageError

	// ErrEmptySessionID is returned when an operation is called without a session ID
	ErrEmptySessionID = storage.ErrEmptySessionID

	// ErrNoStagedItems is returned by stores when a session has no staged copy
	ErrNoStagedItems = storage.ErrNoStagedItems

	// ErrCompactionInProgress is returned when a session is already being
	// rewritten by this client
	ErrCompactionInProgress = errors.New("compaction already in progress for session")
)

// HistoryError represents an error with additional context
type HistoryError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *HistoryError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *HistoryError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *HistoryError) WithContext(key string, value any) *HistoryError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewHistoryError creates a new HistoryError
func NewHistoryError(op string, err error) *HistoryError {
	return &HistoryError{
		Op:  op,
		Err: err,
	}
}

// NewHistoryErrorWithSession creates a new HistoryError with session ID
func NewHistoryErrorWithSession(op string, sessionID string, err error) *HistoryError {
	return &HistoryError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
