package historypg

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/youssefsiam38/historypg/compaction"
	"github.com/youssefsiam38/historypg/hooks"
	"github.com/youssefsiam38/historypg/internal/testutil"
	"github.com/youssefsiam38/historypg/storage"
	"github.com/youssefsiam38/historypg/types"
)

const header = "Grade the next answer strictly."

// blockingStore holds GetItems until release is closed.
type blockingStore struct {
	*storage.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) GetItems(ctx context.Context, sessionID string) ([]*types.Message, error) {
	if sessionID == "blocked" {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.MemoryStore.GetItems(ctx, sessionID)
}

// warnCounter is a Logger that counts warnings.
type warnCounter struct {
	noopLogger
	mu    sync.Mutex
	warns int
}

func (l *warnCounter) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns++
}

func history() []*types.Message {
	return []*types.Message{
		types.NewMessage(types.RoleAssistant, "hi"),
		types.NewMessage(types.RoleUser, `{"grade_details":1}`),
		types.NewMessage(types.RoleDeveloper, "old"),
		types.NewMessage(types.RoleUser, "latest, not json"),
	}
}

func newTestClient(t *testing.T, store storage.Store, opts ...Option) *Client {
	t.Helper()
	c, err := New(store, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		store storage.Store
		opts  []Option
	}{
		{name: "nil store", store: nil},
		{name: "user header role", store: storage.NewMemoryStore(), opts: []Option{WithHeaderRole(types.RoleUser)}},
		{name: "empty header role", store: storage.NewMemoryStore(), opts: []Option{WithHeaderRole("")}},
		{name: "blank scrub field", store: storage.NewMemoryStore(), opts: []Option{WithScrubFields("grade_details", "")}},
		{name: "nil logger", store: storage.NewMemoryStore(), opts: []Option{WithLogger(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.store, tt.opts...)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSession_AppendAndList(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, storage.NewMemoryStore())
	session := client.Session("s1")

	if session.ID() != "s1" {
		t.Errorf("ID() = %q, want s1", session.ID())
	}

	if err := session.Append(ctx, history()...); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := session.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(got) != 4 || got[3].Content != "latest, not json" {
		t.Errorf("ListMessages() = %v", got)
	}
}

func TestSession_EmptyID(t *testing.T) {
	ctx := context.Background()
	session := newTestClient(t, storage.NewMemoryStore()).Session("")

	if _, err := session.ListMessages(ctx); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("ListMessages() error = %v, want ErrEmptySessionID", err)
	}
	if err := session.Append(ctx, types.NewMessage(types.RoleUser, "x")); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("Append() error = %v, want ErrEmptySessionID", err)
	}
	if _, err := session.Compact(ctx, header); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("Compact() error = %v, want ErrEmptySessionID", err)
	}
}

func TestSession_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	client := newTestClient(t, store)

	_ = client.Session("a").Append(ctx, history()...)
	_ = client.Session("b").Append(ctx, history()...)

	replacement := []*types.Message{types.NewMessage(types.RoleUser, "only")}
	if err := client.Session("a").ReplaceAll(ctx, replacement); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	a, _ := store.GetItems(ctx, "a")
	if len(a) != 1 || a[0].Content != "only" {
		t.Errorf("session a = %v, want [only]", a)
	}

	b, _ := store.GetItems(ctx, "b")
	if len(b) != 4 {
		t.Errorf("session b has %d messages, want 4", len(b))
	}

	if err := client.Session("a").ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("ReplaceAll(nil) error = %v", err)
	}
	a, _ = store.GetItems(ctx, "a")
	if len(a) != 0 {
		t.Errorf("session a = %v, want empty", a)
	}
}

func TestSession_Compact(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, storage.NewMemoryStore())
	session := client.Session("s1")
	_ = session.Append(ctx, history()...)

	result, err := session.Compact(ctx, header)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if result.Mode != compaction.ModeStaged {
		t.Errorf("Mode = %q, want staged", result.Mode)
	}

	got, _ := session.ListMessages(ctx)
	want := []struct {
		role    types.Role
		content string
	}{
		{types.RoleAssistant, "hi"},
		{types.RoleUser, "{}"},
		{types.RoleUser, "latest, not json"},
		{types.RoleDeveloper, header},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Role != w.role || got[i].Content != w.content {
			t.Errorf("message %d = %v, want {%s %q}", i, got[i], w.role, w.content)
		}
	}
}

func TestSession_CompactOptions(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, storage.NewMemoryStore(),
		WithScrubFields("feedback"),
		WithHeaderRole(types.RoleSystem),
		WithStaging(false),
	)
	session := client.Session("s1")
	_ = session.Append(ctx,
		types.NewMessage(types.RoleSystem, "old"),
		types.NewMessage(types.RoleUser, `{"feedback":"x","grade_details":1}`),
		types.NewMessage(types.RoleUser, "latest"),
	)

	result, err := session.Compact(ctx, "new")
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if result.Mode != compaction.ModeSequential {
		t.Errorf("Mode = %q, want sequential", result.Mode)
	}

	got, _ := session.ListMessages(ctx)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[0].Content != `{"grade_details":1}` {
		t.Errorf("scrubbed content = %q", got[0].Content)
	}
	if got[2].Role != types.RoleSystem || got[2].Content != "new" {
		t.Errorf("header = %v", got[2])
	}
}

func TestCompact_BeforeHookAborts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	registry := hooks.NewRegistry()
	hookErr := errors.New("session locked upstream")
	registry.OnBeforeCompaction(func(ctx context.Context, sessionID string) error {
		return hookErr
	})

	client := newTestClient(t, store, WithHooks(registry))
	_ = client.Session("s1").Append(ctx, history()...)

	_, err := client.Session("s1").Compact(ctx, header)
	if !errors.Is(err, hookErr) {
		t.Fatalf("Compact() error = %v, want %v", err, hookErr)
	}

	var herr *HistoryError
	if !errors.As(err, &herr) || herr.Context["hook"] != "before_compaction" {
		t.Errorf("unexpected error context: %v", err)
	}

	got, _ := store.GetItems(ctx, "s1")
	if len(got) != 4 || got[2].Content != "old" {
		t.Errorf("history changed after aborted compaction: %v", got)
	}
}

func TestCompact_AfterHook(t *testing.T) {
	ctx := context.Background()
	logger := &warnCounter{}
	client := newTestClient(t, storage.NewMemoryStore(), WithLogger(logger))

	var seen *compaction.Result
	client.Hooks().OnAfterCompaction(func(ctx context.Context, result *compaction.Result) error {
		seen = result
		return errors.New("metrics sink down")
	})

	_ = client.Session("s1").Append(ctx, history()...)
	result, err := client.Session("s1").Compact(ctx, header)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if seen != result {
		t.Error("after hook did not receive the result")
	}
	if logger.warns != 1 {
		t.Errorf("warnings = %d, want 1", logger.warns)
	}
}

func TestAppend_BeforeHookAborts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	client := newTestClient(t, store)
	client.Hooks().OnBeforeAppend(func(ctx context.Context, sessionID string, messages []*types.Message) error {
		return errors.New("rejected")
	})

	if err := client.Session("s1").Append(ctx, history()...); err == nil {
		t.Fatal("Append() error = nil, want hook error")
	}

	got, _ := store.GetItems(ctx, "s1")
	if len(got) != 0 {
		t.Errorf("messages stored despite hook error: %v", got)
	}
}

func TestCompact_SameSessionSerialized(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{
		MemoryStore: storage.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	client := newTestClient(t, store)
	_ = client.Session("blocked").Append(ctx, history()...)
	_ = client.Session("free").Append(ctx, history()...)

	done := make(chan error, 1)
	go func() {
		_, err := client.Session("blocked").Compact(ctx, header)
		done <- err
	}()
	<-store.entered

	if _, err := client.Session("blocked").Compact(ctx, header); !errors.Is(err, ErrCompactionInProgress) {
		t.Errorf("second Compact() error = %v, want ErrCompactionInProgress", err)
	}
	if err := client.Session("blocked").ReplaceAll(ctx, nil); !errors.Is(err, ErrCompactionInProgress) {
		t.Errorf("ReplaceAll() error = %v, want ErrCompactionInProgress", err)
	}
	if _, err := client.Session("free").Compact(ctx, header); err != nil {
		t.Errorf("Compact() on another session error = %v", err)
	}

	close(store.release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("first Compact() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Compact() did not finish")
	}

	// The slot is released once the first compaction returns
	store.entered = make(chan struct{}, 1)
	if _, err := client.Session("blocked").Compact(ctx, header); err != nil {
		t.Errorf("Compact() after release error = %v", err)
	}
}

func TestClient_CompactionHistoryUnsupported(t *testing.T) {
	events, err := newTestClient(t, storage.NewMemoryStore()).CompactionHistory(context.Background(), "s1")
	if err != nil || events != nil {
		t.Errorf("CompactionHistory() = %v, %v, want nil, nil", events, err)
	}
}

func TestClient_RecoverNothingStaged(t *testing.T) {
	restored, err := newTestClient(t, storage.NewMemoryStore()).Session("s1").Recover(context.Background())
	if err != nil || restored {
		t.Errorf("Recover() = %v, %v, want false, nil", restored, err)
	}
}

func TestSession_CompactTxRequiresPostgres(t *testing.T) {
	_, err := newTestClient(t, storage.NewMemoryStore()).Session("s1").CompactTx(context.Background(), nil, header)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("CompactTx() error = %v, want ErrInvalidConfig", err)
	}
}

func TestIntegration_Client_Postgres(t *testing.T) {
	testutil.RequireIntegration(t)

	db := testutil.NewTestDB(t)
	if db == nil {
		return
	}
	t.Cleanup(db.Close)

	ctx := context.Background()
	store := storage.NewPostgresStore(db.Pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	client := newTestClient(t, store)
	sessionID := testutil.NewSessionID()
	session := client.Session(sessionID)
	if err := session.Append(ctx, history()...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	result, err := session.Compact(ctx, header)
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if result.Mode != compaction.ModeAtomic {
		t.Errorf("Mode = %q, want atomic", result.Mode)
	}

	events, err := client.CompactionHistory(ctx, sessionID)
	if err != nil {
		t.Fatalf("CompactionHistory failed: %v", err)
	}
	if len(events) != 1 || events[0].Mode != string(compaction.ModeAtomic) {
		t.Errorf("unexpected events: %+v", events)
	}

	t.Run("rolled back with caller transaction", func(t *testing.T) {
		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}

		if _, err := session.CompactTx(ctx, tx, "discarded"); err != nil {
			t.Fatalf("CompactTx failed: %v", err)
		}
		if err := tx.Rollback(ctx); err != nil {
			t.Fatalf("Rollback failed: %v", err)
		}

		got, _ := session.ListMessages(ctx)
		if got[len(got)-1].Content != header {
			t.Errorf("header = %q, want rollback to keep %q", got[len(got)-1].Content, header)
		}
	})

	t.Run("history newest first", func(t *testing.T) {
		if _, err := session.Compact(ctx, "second header"); err != nil {
			t.Fatalf("Compact failed: %v", err)
		}

		events, err := client.CompactionHistory(ctx, sessionID)
		if err != nil {
			t.Fatalf("CompactionHistory failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
		if events[0].OriginalMessages != result.FinalMessages || events[1].OriginalMessages != result.OriginalMessages {
			t.Errorf("events not newest first: %+v, %+v", events[0], events[1])
		}
		if events[0].CreatedAt.Before(events[1].CreatedAt) {
			t.Errorf("events out of order: %v before %v", events[0].CreatedAt, events[1].CreatedAt)
		}
	})
}
