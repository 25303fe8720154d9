package compaction

import (
	"context"
	"errors"
	"time"

	"github.com/youssefsiam38/historypg/storage"
	"github.com/youssefsiam38/historypg/types"
)

// Logger interface for compaction logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Mode describes how a rewrite was applied to the store.
type Mode string

const (
	// ModeAtomic replaced the history in one store operation.
	ModeAtomic Mode = "atomic"

	// ModeStaged wrote a recovery copy before deleting and re-appending.
	ModeStaged Mode = "staged"

	// ModeSequential deleted and re-appended with no recovery copy.
	ModeSequential Mode = "sequential"
)

// Result contains the outcome of a compaction operation.
type Result struct {
	// SessionID is the compacted session.
	SessionID string

	// Mode is how the rewrite was applied.
	Mode Mode

	// OriginalMessages is the message count before compaction.
	OriginalMessages int

	// FinalMessages is the message count after compaction, header included.
	FinalMessages int

	// DroppedHeaders is the number of superseded header-role messages removed.
	DroppedHeaders int

	// ScrubbedMessages is the number of user messages whose content was scrubbed.
	ScrubbedMessages int

	// Duration is how long the compaction took.
	Duration time.Duration
}

// Compactor rewrites session histories held in a storage.Store.
type Compactor struct {
	store  storage.Store
	config *Config
	logger Logger
}

// New creates a new Compactor with the given configuration.
// If config is nil, default configuration is used.
func New(store storage.Store, config *Config, logger Logger) (*Compactor, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = noopLogger{}
	}

	return &Compactor{
		store:  store,
		config: config,
		logger: logger,
	}, nil
}

// Config returns the compactor's configuration.
func (c *Compactor) Config() *Config {
	return c.config
}

// Compact rewrites the history of one session and appends a fresh header
// message with the given content. Store failures are returned wrapped in a
// CompactionError matching ErrStorageError.
func (c *Compactor) Compact(ctx context.Context, sessionID, header string) (*Result, error) {
	start := time.Now()

	if sessionID == "" {
		return nil, NewCompactionError("Compact", storage.ErrEmptySessionID)
	}

	messages, err := c.store.GetItems(ctx, sessionID)
	if err != nil {
		return nil, storageError("GetItems", sessionID, err)
	}

	plan := BuildPlan(messages, header, c.config)

	c.logger.Debug("compaction plan built",
		"session_id", sessionID,
		"others", len(plan.Others),
		"users", len(plan.Users),
		"dropped_headers", plan.DroppedHeaders,
		"scrubbed", plan.ScrubbedMessages,
	)

	result := &Result{
		SessionID:        sessionID,
		OriginalMessages: len(messages),
		FinalMessages:    plan.Len(),
		DroppedHeaders:   plan.DroppedHeaders,
		ScrubbedMessages: plan.ScrubbedMessages,
	}

	switch {
	case c.replacer() != nil:
		result.Mode = ModeAtomic
		err = c.applyAtomic(ctx, sessionID, plan, result, start)
	case c.stager() != nil:
		result.Mode = ModeStaged
		err = c.applyStaged(ctx, sessionID, messages, plan)
	default:
		result.Mode = ModeSequential
		err = c.rewrite(ctx, sessionID, plan)
	}
	if err != nil {
		c.logger.Error("compaction failed",
			"session_id", sessionID,
			"mode", result.Mode,
			"error", err,
		)
		return nil, err
	}

	result.Duration = time.Since(start)

	if result.Mode != ModeAtomic {
		// Outside a transaction the audit row is best effort
		if err := c.record(ctx, result); err != nil {
			c.logger.Warn("failed to record compaction event",
				"session_id", sessionID,
				"error", err,
			)
		}
	}

	c.logger.Info("compaction complete",
		"session_id", sessionID,
		"mode", result.Mode,
		"original_messages", result.OriginalMessages,
		"final_messages", result.FinalMessages,
		"dropped_headers", result.DroppedHeaders,
		"scrubbed_messages", result.ScrubbedMessages,
		"duration_ms", result.Duration.Milliseconds(),
	)

	return result, nil
}

// Recover restores a session from the staged copy left by a failed staged
// compaction. It reports whether anything was restored. A copy left next to a
// rewrite that did complete is dropped without touching the live history.
func (c *Compactor) Recover(ctx context.Context, sessionID string) (bool, error) {
	stager := c.stagerAny()
	if stager == nil {
		return false, nil
	}

	staged, err := stager.StagedItems(ctx, sessionID)
	if errors.Is(err, storage.ErrNoStagedItems) {
		return false, nil
	}
	if err != nil {
		return false, storageError("StagedItems", sessionID, err)
	}

	live, err := c.store.GetItems(ctx, sessionID)
	if err != nil {
		return false, storageError("GetItems", sessionID, err)
	}

	if c.rewriteCompleted(live, staged) {
		if err := stager.DropStaged(context.WithoutCancel(ctx), sessionID); err != nil {
			return false, storageError("DropStaged", sessionID, err)
		}

		c.logger.Info("staged copy discarded, rewrite had completed",
			"session_id", sessionID,
			"messages", len(live),
		)
		return false, nil
	}

	if r := c.replacer(); r != nil {
		if err := r.ReplaceItems(ctx, sessionID, staged); err != nil {
			return false, storageError("ReplaceItems", sessionID, err)
		}
	} else {
		if err := c.store.DeleteItems(ctx, sessionID); err != nil {
			return false, storageError("DeleteItems", sessionID, err)
		}
		if err := c.store.AddItems(ctx, sessionID, staged); err != nil {
			return false, storageError("AddItems", sessionID, err)
		}
	}

	if err := stager.DropStaged(context.WithoutCancel(ctx), sessionID); err != nil {
		return true, storageError("DropStaged", sessionID, err)
	}

	c.logger.Info("session restored from staged copy",
		"session_id", sessionID,
		"messages", len(staged),
	)

	return true, nil
}

// applyAtomic swaps the history with one ReplaceItems call. On stores that
// support transactions the compaction event is written in the same one.
func (c *Compactor) applyAtomic(ctx context.Context, sessionID string, plan *Plan, result *Result, start time.Time) error {
	write := func(ctx context.Context) error {
		if err := c.replacer().ReplaceItems(ctx, sessionID, plan.Messages()); err != nil {
			return storageError("ReplaceItems", sessionID, err)
		}
		result.Duration = time.Since(start)
		if err := c.record(ctx, result); err != nil {
			return storageError("RecordCompaction", sessionID, err)
		}
		return nil
	}

	tx, ok := c.store.(storage.Transactor)
	if !ok {
		return write(ctx)
	}

	err := tx.InTx(ctx, write)
	var compactionErr *CompactionError
	if err != nil && !errors.As(err, &compactionErr) {
		return storageError("InTx", sessionID, err)
	}
	return err
}

// applyStaged saves the original history before rewriting it. The staged
// copy is only dropped once every append succeeded.
func (c *Compactor) applyStaged(ctx context.Context, sessionID string, original []*types.Message, plan *Plan) error {
	stager := c.stager()

	if err := stager.StageItems(ctx, sessionID, original); err != nil {
		return storageError("StageItems", sessionID, err)
	}

	if err := c.rewrite(ctx, sessionID, plan); err != nil {
		var compactionErr *CompactionError
		if errors.As(err, &compactionErr) {
			compactionErr.WithContext("staged", true)
		}
		return err
	}

	// The rewrite has committed; a cancellation now must not strand the copy
	if err := stager.DropStaged(context.WithoutCancel(ctx), sessionID); err != nil {
		return storageError("DropStaged", sessionID, err)
	}
	return nil
}

// rewriteCompleted reports whether live starts with the rewrite planned from
// staged followed by a header-role message, meaning the last append of the
// rewrite committed. Anything appended after it is ignored.
func (c *Compactor) rewriteCompleted(live, staged []*types.Message) bool {
	plan := BuildPlan(staged, "", c.config)
	body := plan.Len() - 1

	if len(live) <= body {
		return false
	}

	i := 0
	for _, group := range [][]*types.Message{plan.Others, plan.Users} {
		for _, want := range group {
			if live[i].Role != want.Role || live[i].Content != want.Content {
				return false
			}
			i++
		}
	}

	return live[body].Role == c.config.HeaderRole
}

// rewrite deletes the session and appends the plan group by group.
func (c *Compactor) rewrite(ctx context.Context, sessionID string, plan *Plan) error {
	if err := c.store.DeleteItems(ctx, sessionID); err != nil {
		return storageError("DeleteItems", sessionID, err)
	}

	if len(plan.Others) > 0 {
		if err := c.store.AddItems(ctx, sessionID, plan.Others); err != nil {
			return storageError("AddItems", sessionID, err).
				WithContext("group", "others")
		}
	}

	if len(plan.Users) > 0 {
		if err := c.store.AddItems(ctx, sessionID, plan.Users); err != nil {
			return storageError("AddItems", sessionID, err).
				WithContext("group", "users")
		}
	}

	if err := c.store.AddItems(ctx, sessionID, []*types.Message{plan.Header}); err != nil {
		return storageError("AddItems", sessionID, err).
			WithContext("group", "header")
	}

	return nil
}

// record writes the compaction event if the store keeps an audit trail.
func (c *Compactor) record(ctx context.Context, result *Result) error {
	recorder, ok := c.store.(storage.EventRecorder)
	if !ok {
		return nil
	}

	return recorder.RecordCompaction(ctx, &storage.CompactionEvent{
		SessionID:        result.SessionID,
		Mode:             string(result.Mode),
		OriginalMessages: result.OriginalMessages,
		FinalMessages:    result.FinalMessages,
		DroppedHeaders:   result.DroppedHeaders,
		ScrubbedMessages: result.ScrubbedMessages,
		DurationMs:       result.Duration.Milliseconds(),
	})
}

func (c *Compactor) replacer() storage.Replacer {
	if r, ok := c.store.(storage.Replacer); ok {
		return r
	}
	return nil
}

// stager returns the store's Stager when staging is enabled.
func (c *Compactor) stager() storage.Stager {
	if c.config.DisableStaging {
		return nil
	}
	return c.stagerAny()
}

// stagerAny returns the store's Stager regardless of configuration, so that
// copies left before staging was disabled can still be recovered.
func (c *Compactor) stagerAny() storage.Stager {
	if s, ok := c.store.(storage.Stager); ok {
		return s
	}
	return nil
}
