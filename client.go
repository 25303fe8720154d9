package historypg

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/youssefsiam38/historypg/compaction"
	"github.com/youssefsiam38/historypg/hooks"
	"github.com/youssefsiam38/historypg/storage"
)

// Client owns a store and hands out session handles.
//
// A Client is safe for concurrent use. Rewrites of one session (Compact,
// ReplaceAll, Recover) are serialized in-process: a second rewrite of a
// session that is already being rewritten fails fast with
// ErrCompactionInProgress. Different sessions never block each other.
type Client struct {
	store     storage.Store
	compactor *compaction.Compactor
	hooks     *hooks.Registry
	logger    Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a client over store.
//
// Example:
//
//	pool, _ := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	client, err := historypg.New(
//	    storage.NewPostgresStore(pool),
//	    historypg.WithLogger(slog.Default()),
//	)
func New(store storage.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, NewHistoryError("New", fmt.Errorf("%w: store is required", ErrInvalidConfig))
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.hooks == nil {
		cfg.hooks = hooks.NewRegistry()
	}

	compactor, err := compaction.New(store, cfg.compactionConfig(), cfg.logger)
	if err != nil {
		return nil, NewHistoryError("New", err)
	}

	return &Client{
		store:     store,
		compactor: compactor,
		hooks:     cfg.hooks,
		logger:    cfg.logger,
		active:    make(map[string]struct{}),
	}, nil
}

// Session returns a handle bound to sessionID. Handles are cheap and hold
// no state beyond the ID.
func (c *Client) Session(sessionID string) *Session {
	return &Session{client: c, id: sessionID}
}

// Store returns the underlying store
func (c *Client) Store() storage.Store {
	return c.store
}

// Hooks returns the hook registry
func (c *Client) Hooks() *hooks.Registry {
	return c.hooks
}

// Recover restores a session from the copy staged by a compaction that
// failed midway. It reports whether a staged copy existed.
func (c *Client) Recover(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, NewHistoryError("Recover", ErrEmptySessionID)
	}

	if !c.acquire(sessionID) {
		return false, NewHistoryErrorWithSession("Recover", sessionID, ErrCompactionInProgress)
	}
	defer c.release(sessionID)

	restored, err := c.compactor.Recover(ctx, sessionID)
	if err != nil {
		return restored, NewHistoryErrorWithSession("Recover", sessionID, err)
	}
	return restored, nil
}

// CompactionHistory returns the recorded compactions of a session, newest
// first, on stores that keep an audit trail. Other stores return nil.
func (c *Client) CompactionHistory(ctx context.Context, sessionID string) ([]*storage.CompactionEvent, error) {
	recorder, ok := c.store.(storage.EventRecorder)
	if !ok {
		return nil, nil
	}

	events, err := recorder.GetCompactionHistory(ctx, sessionID)
	if err != nil {
		return nil, NewHistoryErrorWithSession("CompactionHistory", sessionID,
			fmt.Errorf("%w: %w", ErrStorageError, err))
	}
	return events, nil
}

// compact runs hooks around one compaction while holding the session slot
func (c *Client) compact(ctx context.Context, sessionID, header string) (*compaction.Result, error) {
	if sessionID == "" {
		return nil, NewHistoryError("Compact", ErrEmptySessionID)
	}

	if !c.acquire(sessionID) {
		return nil, NewHistoryErrorWithSession("Compact", sessionID, ErrCompactionInProgress)
	}
	defer c.release(sessionID)

	if err := c.hooks.TriggerBeforeCompaction(ctx, sessionID); err != nil {
		return nil, NewHistoryErrorWithSession("Compact", sessionID, err).
			WithContext("hook", "before_compaction")
	}

	result, err := c.compactor.Compact(ctx, sessionID, header)
	if err != nil {
		herr := NewHistoryErrorWithSession("Compact", sessionID, err)
		var compactionErr *compaction.CompactionError
		if errors.As(err, &compactionErr) {
			for k, v := range compactionErr.Context {
				herr.WithContext(k, v)
			}
		}
		return nil, herr
	}

	if err := c.hooks.TriggerAfterCompaction(ctx, result); err != nil {
		c.logger.Warn("after-compaction hook failed",
			"session_id", sessionID,
			"error", err,
		)
	}

	return result, nil
}

// acquire claims the rewrite slot for sessionID
func (c *Client) acquire(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.active[sessionID]; busy {
		return false
	}
	c.active[sessionID] = struct{}{}
	return true
}

// release frees the rewrite slot for sessionID
func (c *Client) release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, sessionID)
}
