package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wppsync/internal/bus"
	"github.com/matheus3301/wppsync/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecorderJournalsResults(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	r := NewRecorder(db, b, zap.NewNop())
	r.Start(context.Background())

	now := time.Now()
	reporter := BusReporter{Bus: b}
	reporter.Report(Result{ID: "a1", Action: ActionEdit, ConversationID: "c1", MessageID: "srv1", Content: "x", Emitted: true, Durability: DurabilityPending, CreatedAt: now, UpdatedAt: now})
	reporter.Report(Result{ID: "a1", Action: ActionEdit, ConversationID: "c1", MessageID: "srv1", Content: "x", Emitted: true, Durability: DurabilityFailed, Err: errors.New("500"), CreatedAt: now, UpdatedAt: now.Add(time.Second)})
	reporter.Report(Result{ID: "a2", Action: ActionSend, ConversationID: "c1", MessageID: "local-1", Content: "y", Durability: DurabilitySkipped, CreatedAt: now, UpdatedAt: now})

	r.Stop()

	all, err := db.ListActions(false, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d actions, want 2", len(all))
	}

	a1, err := db.GetAction("a1")
	if err != nil {
		t.Fatal(err)
	}
	if a1.Durability != "failed" || a1.Error != "500" || !a1.Emitted {
		t.Errorf("a1 = %+v", a1)
	}

	failed, err := db.ListActions(true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != "a1" {
		t.Errorf("failed = %+v", failed)
	}
}

func TestRecorderIgnoresForeignPayloads(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	r := NewRecorder(db, b, zap.NewNop())
	r.Start(context.Background())
	b.Emit(bus.OutboundResult, "not a result")
	r.Stop()

	all, err := db.ListActions(false, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("got %d actions, want 0", len(all))
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	r := NewRecorder(nil, bus.New(), zap.NewNop())
	r.Stop()
}
