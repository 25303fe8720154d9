package hooks

import (
	"context"
	"sync"

	"github.com/youssefsiam38/historypg/compaction"
	"github.com/youssefsiam38/historypg/types"
)

// BeforeAppendHook is called before messages are appended to a session
type BeforeAppendHook func(ctx context.Context, sessionID string, messages []*types.Message) error

// BeforeCompactionHook is called before a session is compacted.
// Returning an error aborts the compaction before the store is touched.
type BeforeCompactionHook func(ctx context.Context, sessionID string) error

// AfterCompactionHook is called after a session was compacted
type AfterCompactionHook func(ctx context.Context, result *compaction.Result) error

// Registry holds all registered hooks
type Registry struct {
	mu               sync.RWMutex
	beforeAppend     []BeforeAppendHook
	beforeCompaction []BeforeCompactionHook
	afterCompaction  []AfterCompactionHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		beforeAppend:     []BeforeAppendHook{},
		beforeCompaction: []BeforeCompactionHook{},
		afterCompaction:  []AfterCompactionHook{},
	}
}

// OnBeforeAppend registers a hook to be called before messages are appended
func (r *Registry) OnBeforeAppend(hook BeforeAppendHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeAppend = append(r.beforeAppend, hook)
}

// OnBeforeCompaction registers a hook to be called before compaction
func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompaction = append(r.beforeCompaction, hook)
}

// OnAfterCompaction registers a hook to be called after compaction
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// TriggerBeforeAppend calls all registered before-append hooks
func (r *Registry) TriggerBeforeAppend(ctx context.Context, sessionID string, messages []*types.Message) error {
	r.mu.RLock()
	hooks := make([]BeforeAppendHook, len(r.beforeAppend))
	copy(hooks, r.beforeAppend)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, messages); err != nil {
			return err
		}
	}
	return nil
}

// TriggerBeforeCompaction calls all registered before-compaction hooks
func (r *Registry) TriggerBeforeCompaction(ctx context.Context, sessionID string) error {
	r.mu.RLock()
	hooks := make([]BeforeCompactionHook, len(r.beforeCompaction))
	copy(hooks, r.beforeCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompaction calls all registered after-compaction hooks
func (r *Registry) TriggerAfterCompaction(ctx context.Context, result *compaction.Result) error {
	r.mu.RLock()
	hooks := make([]AfterCompactionHook, len(r.afterCompaction))
	copy(hooks, r.afterCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Register attaches every hook method h implements to r.
// h may implement any of BeforeAppend, BeforeCompaction and AfterCompaction.
func (r *Registry) Register(h any) {
	if v, ok := h.(interface {
		BeforeAppend(context.Context, string, []*types.Message) error
	}); ok {
		r.OnBeforeAppend(v.BeforeAppend)
	}
	if v, ok := h.(interface {
		BeforeCompaction(context.Context, string) error
	}); ok {
		r.OnBeforeCompaction(v.BeforeCompaction)
	}
	if v, ok := h.(interface {
		AfterCompaction(context.Context, *compaction.Result) error
	}); ok {
		r.OnAfterCompaction(v.AfterCompaction)
	}
}
