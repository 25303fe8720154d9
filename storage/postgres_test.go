package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/youssefsiam38/historypg/internal/testutil"
	"github.com/youssefsiam38/historypg/types"
)

func newTestPostgresStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	testutil.RequireIntegration(t)

	db := testutil.NewTestDB(t)
	if db == nil {
		return nil, nil
	}
	t.Cleanup(db.Close)

	ctx := context.Background()
	store := NewPostgresStore(db.Pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}

	return store, ctx
}

func TestIntegration_PostgresStore_MessageOperations(t *testing.T) {
	store, ctx := newTestPostgresStore(t)
	sessionID := testutil.NewSessionID()

	msgs := []*types.Message{
		types.NewMessage(types.RoleUser, `{"grade_details":1,"q":"héllo"}`),
		types.NewMessage(types.RoleAssistant, "answer"),
		{
			Role:  types.RoleTool,
			Extra: map[string]json.RawMessage{"call_id": json.RawMessage(`"c1"`)},
		},
	}

	if err := store.AddItems(ctx, sessionID, msgs); err != nil {
		t.Fatalf("AddItems failed: %v", err)
	}

	items, err := store.GetItems(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(items))
	}
	if items[0].Content != msgs[0].Content {
		t.Errorf("Expected content stored verbatim, got %q", items[0].Content)
	}
	if items[1].Role != types.RoleAssistant {
		t.Errorf("Expected assistant role, got %q", items[1].Role)
	}
	if string(items[2].Extra["call_id"]) != `"c1"` {
		t.Errorf("Expected extra call_id to survive, got %s", items[2].Extra["call_id"])
	}
	if items[0].ID == "" {
		t.Error("Expected store-assigned ID")
	}

	if err := store.DeleteItems(ctx, sessionID); err != nil {
		t.Fatalf("DeleteItems failed: %v", err)
	}
	items, _ = store.GetItems(ctx, sessionID)
	if len(items) != 0 {
		t.Errorf("Expected no messages after delete, got %d", len(items))
	}
}

func TestIntegration_PostgresStore_ReplaceIsScoped(t *testing.T) {
	store, ctx := newTestPostgresStore(t)
	a, b := testutil.NewSessionID(), testutil.NewSessionID()

	_ = store.AddItems(ctx, a, []*types.Message{types.NewMessage(types.RoleUser, "a1")})
	_ = store.AddItems(ctx, b, []*types.Message{types.NewMessage(types.RoleUser, "b1")})

	replacement := []*types.Message{
		types.NewMessage(types.RoleUser, "a2"),
		types.NewMessage(types.RoleDeveloper, "header"),
	}
	if err := store.ReplaceItems(ctx, a, replacement); err != nil {
		t.Fatalf("ReplaceItems failed: %v", err)
	}

	itemsA, _ := store.GetItems(ctx, a)
	if len(itemsA) != 2 || itemsA[0].Content != "a2" || itemsA[1].Content != "header" {
		t.Errorf("Unexpected replaced session: %v", itemsA)
	}

	itemsB, _ := store.GetItems(ctx, b)
	if len(itemsB) != 1 || itemsB[0].Content != "b1" {
		t.Errorf("Expected other session untouched, got %v", itemsB)
	}
}

func TestIntegration_PostgresStore_InTxRollsBack(t *testing.T) {
	store, ctx := newTestPostgresStore(t)
	sessionID := testutil.NewSessionID()

	_ = store.AddItems(ctx, sessionID, []*types.Message{types.NewMessage(types.RoleUser, "keep")})

	errBoom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context) error {
		if err := store.DeleteItems(ctx, sessionID); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Expected errBoom, got %v", err)
	}

	items, _ := store.GetItems(ctx, sessionID)
	if len(items) != 1 {
		t.Errorf("Expected delete to be rolled back, got %d messages", len(items))
	}
}

func TestIntegration_PostgresStore_CompactionHistory(t *testing.T) {
	store, ctx := newTestPostgresStore(t)
	sessionID := testutil.NewSessionID()

	event := &CompactionEvent{
		SessionID:        sessionID,
		Mode:             "atomic",
		OriginalMessages: 5,
		FinalMessages:    3,
		DroppedHeaders:   2,
		ScrubbedMessages: 1,
		DurationMs:       7,
	}
	if err := store.RecordCompaction(ctx, event); err != nil {
		t.Fatalf("RecordCompaction failed: %v", err)
	}
	if event.ID == "" {
		t.Error("Expected event ID to be assigned")
	}

	history, err := store.GetCompactionHistory(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetCompactionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(history))
	}
	if history[0].DroppedHeaders != 2 || history[0].Mode != "atomic" {
		t.Errorf("Unexpected event: %+v", history[0])
	}
}

func TestIntegration_PostgresStore_PruneCompactionEvents(t *testing.T) {
	store, ctx := newTestPostgresStore(t)
	sessionID := testutil.NewSessionID()

	for i := 0; i < 3; i++ {
		if err := store.RecordCompaction(ctx, &CompactionEvent{SessionID: sessionID, Mode: "atomic"}); err != nil {
			t.Fatalf("RecordCompaction failed: %v", err)
		}
	}

	n, err := store.DeleteCompactionEventsBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteCompactionEventsBefore failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no recent events pruned, got %d", n)
	}

	n, err = store.DeleteCompactionEventsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteCompactionEventsBefore failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 events pruned, got %d", n)
	}

	events, _ := store.GetCompactionHistory(ctx, sessionID)
	if len(events) != 0 {
		t.Errorf("Expected no events left, got %d", len(events))
	}
}
