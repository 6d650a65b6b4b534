package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"exstock/internal/models"
	"exstock/internal/testutil"
)

type fakeSource struct {
	quantities map[string]int64
	err        error
}

func (f *fakeSource) OnHand(keys []string) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]int64)
	for _, k := range keys {
		if v, ok := f.quantities[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func seedOutstanding(t *testing.T, store *Store, key string, qty int64, initial string) {
	t.Helper()
	l := testLine(key, qty, initial)
	if err := store.CreateRequisition(testRequisition("ana@example.com"),
		[]models.ReservationLine{l}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestApplyWritesBackFulfillments(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := NewStore(conn)
	sweeper := NewSweeper(store)
	seedOutstanding(t, store, "1001", 20, "50")
	seedOutstanding(t, store, "2002", 5, "80")

	var notified int
	sweeper.Notify = func(fulfilled int, pending map[string]int64) { notified = fulfilled }

	pending, err := sweeper.Apply(map[string]decimal.Decimal{
		"1001": dec("30"), // moved: fulfill
		"2002": dec("80"), // unchanged: pending
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if pending["1001"] != 0 || pending["2002"] != 5 {
		t.Fatalf("pending = %v", pending)
	}
	if notified != 1 {
		t.Fatalf("notified = %d", notified)
	}

	lines, _ := store.OutstandingLines()
	if len(lines) != 1 || lines[0].ItemKey != "2002" {
		t.Fatalf("outstanding after apply = %v", lines)
	}
}

func TestApplyKeepsLinesReservedOnWriteFailure(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := NewStore(conn)
	sweeper := NewSweeper(store)
	seedOutstanding(t, store, "1001", 20, "50")

	// Reads keep working; the fulfilled-flag update is blocked.
	if _, err := conn.Exec(`CREATE TRIGGER block_fulfill BEFORE UPDATE ON purchase_items
		BEGIN SELECT RAISE(ABORT, 'update blocked'); END`); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	pending, err := sweeper.Apply(map[string]decimal.Decimal{"1001": dec("30")}, time.Now().UTC())
	if err == nil {
		t.Fatal("expected write-back error")
	}
	// The decided line could not be recorded as fulfilled, so it still
	// counts as reserved.
	if pending["1001"] != 20 {
		t.Fatalf("pending = %v, want 1001:20", pending)
	}

	lines, _ := store.OutstandingLines()
	if len(lines) != 1 {
		t.Fatalf("line vanished without a recorded fulfillment: %v", lines)
	}
}

func TestSweepAllCoversEveryOutstandingKey(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := NewStore(conn)
	sweeper := NewSweeper(store)
	seedOutstanding(t, store, "1001", 20, "50")
	seedOutstanding(t, store, "2002", 5, "80")
	seedOutstanding(t, store, "3003", 7, "12.5")

	// Raw centi-units from the gateway: 1001 moved, 2002 unchanged, 3003
	// absent (no decision).
	src := &fakeSource{quantities: map[string]int64{"1001": 3000, "2002": 8000}}

	pending, err := sweeper.SweepAll(src, time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if pending["1001"] != 0 || pending["2002"] != 5 || pending["3003"] != 7 {
		t.Fatalf("pending = %v", pending)
	}
}

func TestSweepAllSkippedWhenSourceDown(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := NewStore(conn)
	sweeper := NewSweeper(store)
	seedOutstanding(t, store, "1001", 20, "50")

	src := &fakeSource{err: errors.New("gateway down")}
	if _, err := sweeper.SweepAll(src, time.Now().UTC()); err == nil {
		t.Fatal("expected error")
	}

	// No partial sweep was applied.
	lines, _ := store.OutstandingLines()
	if len(lines) != 1 {
		t.Fatalf("outstanding = %v", lines)
	}
}

func TestSweepAllNoOutstanding(t *testing.T) {
	store := NewStore(testutil.SetupTestDB(t))
	sweeper := NewSweeper(store)

	src := &fakeSource{err: errors.New("must not be called")}
	pending, err := sweeper.SweepAll(src, time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %v", pending)
	}
}
