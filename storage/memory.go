package storage

import (
	"context"
	"sync"
	"time"

	"github.com/youssefsiam38/historypg/types"
)

// MemoryStore is an in-process Store. It implements Stager but not Replacer,
// so compactions against it run the staged delete-then-append sequence.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*types.Message
	staged   map[string]stagedCopy
}

type stagedCopy struct {
	messages []*types.Message
	at       time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]*types.Message),
		staged:   make(map[string]stagedCopy),
	}
}

// GetItems returns a copy of the session's messages
func (s *MemoryStore) GetItems(ctx context.Context, sessionID string) ([]*types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.CloneMessages(s.sessions[sessionID]), nil
}

// DeleteItems removes the session's list
func (s *MemoryStore) DeleteItems(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// AddItems appends copies of messages to the session
func (s *MemoryStore) AddItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = append(s.sessions[sessionID], types.CloneMessages(messages)...)
	return nil
}

// StageItems keeps a copy of messages for recovery
func (s *MemoryStore) StageItems(ctx context.Context, sessionID string, messages []*types.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.staged[sessionID] = stagedCopy{
		messages: types.CloneMessages(messages),
		at:       time.Now(),
	}
	return nil
}

// StagedItems returns the staged copy for the session
func (s *MemoryStore) StagedItems(ctx context.Context, sessionID string) ([]*types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	staged, ok := s.staged[sessionID]
	if !ok {
		return nil, ErrNoStagedItems
	}

	items := types.CloneMessages(staged.messages)
	if items == nil {
		items = []*types.Message{}
	}
	return items, nil
}

// DropStaged removes the staged copy for the session
func (s *MemoryStore) DropStaged(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.staged, sessionID)
	return nil
}

// ListStaged returns every staged copy that has not been dropped
func (s *MemoryStore) ListStaged(ctx context.Context) ([]StagedSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StagedSession, 0, len(s.staged))
	for id, staged := range s.staged {
		out = append(out, StagedSession{SessionID: id, StagedAt: staged.at})
	}
	return out, nil
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ Stager       = (*MemoryStore)(nil)
	_ StagedLister = (*MemoryStore)(nil)
)
