// Package maintenance runs periodic housekeeping against a history store:
// pruning old compaction events and restoring sessions whose compaction was
// interrupted after the original history had been staged.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/historypg"
	"github.com/youssefsiam38/historypg/storage"
)

// Default cleanup configuration values
const (
	DefaultCleanupInterval   = 1 * time.Minute
	DefaultEventRetention    = 30 * 24 * time.Hour
	DefaultStaleStagingAfter = 5 * time.Minute
)

// Recoverer restores a session from its staged copy. *historypg.Client
// implements it.
type Recoverer interface {
	Recover(ctx context.Context, sessionID string) (bool, error)
}

// CleanupConfig holds configuration for the cleanup service.
type CleanupConfig struct {
	// Interval is how often to run cleanup operations.
	// Default: 1 minute
	Interval time.Duration

	// EventRetention is how long compaction events are kept on stores that
	// implement storage.EventPruner. Negative disables pruning.
	// Default: 30 days
	EventRetention time.Duration

	// StaleStagingAfter is how old a staged copy must be before it is treated
	// as left behind by a crashed compaction and restored. It must exceed the
	// longest compaction, since a younger copy may belong to one in flight.
	// Default: 5 minutes
	StaleStagingAfter time.Duration

	// OnEventsPruned is called with the number of compaction events removed.
	OnEventsPruned func(count int)

	// OnSessionsRecovered is called with the IDs of restored sessions.
	OnSessionsRecovered func(sessionIDs []string)

	// OnError is called when a cleanup operation fails.
	OnError func(err error)
}

// DefaultCleanupConfig returns the default cleanup configuration.
func DefaultCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval:          DefaultCleanupInterval,
		EventRetention:    DefaultEventRetention,
		StaleStagingAfter: DefaultStaleStagingAfter,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *CleanupConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultCleanupInterval
	}
	if c.EventRetention == 0 {
		c.EventRetention = DefaultEventRetention
	}
	if c.StaleStagingAfter == 0 {
		c.StaleStagingAfter = DefaultStaleStagingAfter
	}
}

// CleanupResult holds the results of a cleanup operation.
type CleanupResult struct {
	// EventsPruned is the number of compaction events removed.
	EventsPruned int

	// RecoveredSessions lists the sessions restored from a staged copy.
	RecoveredSessions []string

	// Errors contains any errors that occurred during cleanup.
	Errors []error
}

// Cleanup performs periodic housekeeping for a store.
type Cleanup struct {
	store     storage.Store
	recoverer Recoverer
	config    *CleanupConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewCleanup creates a new cleanup service. recoverer may be nil, in which
// case staged copies are left alone.
func NewCleanup(store storage.Store, recoverer Recoverer, config *CleanupConfig) *Cleanup {
	if config == nil {
		config = DefaultCleanupConfig()
	} else {
		config.ApplyDefaults()
	}

	return &Cleanup{
		store:     store,
		recoverer: recoverer,
		config:    config,
	}
}

// Start begins the cleanup loop.
// It returns immediately and runs cleanup operations in a goroutine.
func (c *Cleanup) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.done = make(chan struct{})
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)

	return nil
}

// Stop stops the cleanup loop and waits for the current pass to finish.
func (c *Cleanup) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}

	c.cancel()

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.started.Store(false)
	return nil
}

// IsRunning returns true if the cleanup service is running.
func (c *Cleanup) IsRunning() bool {
	return c.started.Load()
}

// run is the main cleanup loop.
func (c *Cleanup) run(ctx context.Context) {
	defer close(c.done)

	// Run cleanup immediately on start
	c.runCleanup(ctx)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCleanup(ctx)
		}
	}
}

// runCleanup performs all cleanup operations and reports through callbacks.
func (c *Cleanup) runCleanup(ctx context.Context) {
	result := c.RunOnce(ctx)

	if c.config.OnEventsPruned != nil && result.EventsPruned > 0 {
		c.config.OnEventsPruned(result.EventsPruned)
	}

	if c.config.OnSessionsRecovered != nil && len(result.RecoveredSessions) > 0 {
		c.config.OnSessionsRecovered(result.RecoveredSessions)
	}

	if c.config.OnError != nil {
		for _, err := range result.Errors {
			c.config.OnError(err)
		}
	}
}

// RunOnce performs cleanup operations once and returns the result.
// This can be called manually for testing or one-off cleanup.
func (c *Cleanup) RunOnce(ctx context.Context) *CleanupResult {
	result := &CleanupResult{}

	pruned, err := c.pruneEvents(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.EventsPruned = pruned

	recovered, errs := c.recoverStaged(ctx)
	result.RecoveredSessions = recovered
	result.Errors = append(result.Errors, errs...)

	return result
}

// pruneEvents deletes compaction events older than the retention period.
func (c *Cleanup) pruneEvents(ctx context.Context) (int, error) {
	pruner, ok := c.store.(storage.EventPruner)
	if !ok || c.config.EventRetention < 0 {
		return 0, nil
	}

	n, err := pruner.DeleteCompactionEventsBefore(ctx, time.Now().Add(-c.config.EventRetention))
	if err != nil {
		return 0, fmt.Errorf("prune compaction events: %w", err)
	}
	return n, nil
}

// recoverStaged restores every session whose staged copy is older than
// StaleStagingAfter.
func (c *Cleanup) recoverStaged(ctx context.Context) ([]string, []error) {
	lister, ok := c.store.(storage.StagedLister)
	if !ok || c.recoverer == nil {
		return nil, nil
	}

	staged, err := lister.ListStaged(ctx)
	if err != nil {
		return nil, []error{fmt.Errorf("list staged sessions: %w", err)}
	}

	horizon := time.Now().Add(-c.config.StaleStagingAfter)

	var recovered []string
	var errs []error
	for _, s := range staged {
		if s.StagedAt.After(horizon) {
			continue
		}

		restored, err := c.recoverer.Recover(ctx, s.SessionID)
		if errors.Is(err, historypg.ErrCompactionInProgress) {
			continue
		}
		if err != nil {
			// Continue with other sessions even if one fails
			errs = append(errs, fmt.Errorf("recover session %s: %w", s.SessionID, err))
			continue
		}
		if restored {
			recovered = append(recovered, s.SessionID)
		}
	}

	return recovered, errs
}
