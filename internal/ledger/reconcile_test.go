package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"exstock/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func line(id int64, key string, qty int64, initial string, createdAt time.Time) models.ReservationLine {
	return models.ReservationLine{
		ID:            id,
		ItemKey:       key,
		QtyToFulfill:  qty,
		InitialOnHand: dec(initial),
		CreatedAt:     createdAt,
	}
}

func TestReconcileUnchangedStockStaysPending(t *testing.T) {
	now := time.Now().UTC()
	res := Reconcile(
		map[string]decimal.Decimal{"1001": dec("50")},
		[]models.ReservationLine{line(1, "1001", 20, "50", now.Add(-time.Hour))},
		now)

	if len(res.ToFulfill) != 0 {
		t.Fatalf("expected no fulfillments, got %v", res.ToFulfill)
	}
	if res.PendingByItem["1001"] != 20 {
		t.Fatalf("pending = %d, want 20", res.PendingByItem["1001"])
	}
}

func TestReconcileAnyDeltaFulfills(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name    string
		current string
	}{
		{"decrease", "30"},
		{"increase", "50.01"},
		{"tiny decrease", "49.99"},
		{"to zero", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reconcile(
				map[string]decimal.Decimal{"1001": dec(tc.current)},
				[]models.ReservationLine{line(1, "1001", 20, "50", now.Add(-time.Hour))},
				now)
			if len(res.ToFulfill) != 1 || res.ToFulfill[0] != 1 {
				t.Fatalf("toFulfill = %v, want [1]", res.ToFulfill)
			}
			if res.PendingByItem["1001"] != 0 {
				t.Fatalf("pending = %d, want 0", res.PendingByItem["1001"])
			}
		})
	}
}

func TestReconcileStalenessFulfillsWithoutDelta(t *testing.T) {
	now := time.Now().UTC()
	res := Reconcile(
		map[string]decimal.Decimal{"1001": dec("50")},
		[]models.ReservationLine{line(1, "1001", 20, "50", now.Add(-StalenessWindow))},
		now)
	if len(res.ToFulfill) != 1 {
		t.Fatalf("aged line not fulfilled: %v", res.ToFulfill)
	}

	// One second short of the window stays pending.
	res = Reconcile(
		map[string]decimal.Decimal{"1001": dec("50")},
		[]models.ReservationLine{line(1, "1001", 20, "50", now.Add(-StalenessWindow+time.Second))},
		now)
	if len(res.ToFulfill) != 0 {
		t.Fatalf("fresh line fulfilled early: %v", res.ToFulfill)
	}
}

func TestReconcileAbsentItemYieldsNoDecision(t *testing.T) {
	now := time.Now().UTC()
	res := Reconcile(
		map[string]decimal.Decimal{},
		[]models.ReservationLine{line(1, "1001", 20, "50", now.Add(-time.Hour))},
		now)

	// Absent from the snapshot is not zero stock. The line stays pending,
	// not fulfilled.
	if len(res.ToFulfill) != 0 {
		t.Fatalf("absent item fulfilled: %v", res.ToFulfill)
	}
	if res.PendingByItem["1001"] != 20 {
		t.Fatalf("pending = %d, want 20", res.PendingByItem["1001"])
	}
}

func TestReconcileAbsentItemNotExpiredByAge(t *testing.T) {
	now := time.Now().UTC()

	// Staleness expiry needs an on-hand reading too. A line the snapshot
	// never covered stays pending no matter how old it is.
	res := Reconcile(
		map[string]decimal.Decimal{},
		[]models.ReservationLine{line(1, "1001", 20, "50", now.Add(-6*24*time.Hour))},
		now)
	if len(res.ToFulfill) != 0 {
		t.Fatalf("absent aged line force-expired: %v", res.ToFulfill)
	}
	if res.PendingByItem["1001"] != 20 {
		t.Fatalf("pending = %d, want 20", res.PendingByItem["1001"])
	}

	// The same aged line with a reading is expired as usual.
	res = Reconcile(
		map[string]decimal.Decimal{"1001": dec("50")},
		[]models.ReservationLine{line(1, "1001", 20, "50", now.Add(-6*24*time.Hour))},
		now)
	if len(res.ToFulfill) != 1 {
		t.Fatalf("aged line with reading not fulfilled: %v", res.ToFulfill)
	}
}

func TestReconcileSkipsFulfilledLines(t *testing.T) {
	now := time.Now().UTC()
	done := line(1, "1001", 20, "50", now.Add(-time.Hour))
	done.Fulfilled = true
	res := Reconcile(map[string]decimal.Decimal{"1001": dec("10")}, []models.ReservationLine{done}, now)
	if len(res.ToFulfill) != 0 || len(res.PendingByItem) != 0 {
		t.Fatalf("fulfilled line reprocessed: %+v", res)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	now := time.Now().UTC()
	onHand := map[string]decimal.Decimal{"1001": dec("30"), "2002": dec("80")}
	lines := []models.ReservationLine{
		line(1, "1001", 20, "50", now.Add(-time.Hour)),
		line(2, "2002", 5, "80", now.Add(-time.Hour)),
	}

	first := Reconcile(onHand, lines, now)
	if len(first.ToFulfill) != 1 || first.ToFulfill[0] != 1 {
		t.Fatalf("first pass toFulfill = %v", first.ToFulfill)
	}

	// Apply the first pass's effects, then rerun with unchanged inputs.
	lines[0].Fulfilled = true
	second := Reconcile(onHand, lines, now)
	if len(second.ToFulfill) != 0 {
		t.Fatalf("second pass not idempotent: %v", second.ToFulfill)
	}
	if second.PendingByItem["2002"] != 5 {
		t.Fatalf("pending = %v", second.PendingByItem)
	}
}

func TestReconcileLifecycleScenario(t *testing.T) {
	t0 := time.Now().UTC()
	l := line(1, "1001", 20, "50", t0)

	// t0+1h, stock unchanged: stays pending, net 30.
	res := Reconcile(map[string]decimal.Decimal{"1001": dec("50")}, []models.ReservationLine{l}, t0.Add(time.Hour))
	if len(res.ToFulfill) != 0 || res.PendingByItem["1001"] != 20 {
		t.Fatalf("t0+1h: %+v", res)
	}
	if got := NetAvailable(dec("50"), res.PendingByItem["1001"]); !got.Equal(dec("30")) {
		t.Fatalf("net at t0+1h = %s, want 30", got)
	}

	// t0+2h, stock moved to 30: fulfilled, pending clears, net 30.
	res = Reconcile(map[string]decimal.Decimal{"1001": dec("30")}, []models.ReservationLine{l}, t0.Add(2*time.Hour))
	if len(res.ToFulfill) != 1 || res.PendingByItem["1001"] != 0 {
		t.Fatalf("t0+2h: %+v", res)
	}
	if got := NetAvailable(dec("30"), res.PendingByItem["1001"]); !got.Equal(dec("30")) {
		t.Fatalf("net at t0+2h = %s, want 30", got)
	}
}

func TestNetAvailableNotClamped(t *testing.T) {
	if got := NetAvailable(dec("10"), 30); !got.Equal(dec("-20")) {
		t.Fatalf("net = %s, want -20", got)
	}
}

func TestHasBlockingReservation(t *testing.T) {
	pending := map[string]int64{"1001": 1}
	if !HasBlockingReservation(pending, "1001") {
		t.Fatal("expected blocking reservation")
	}
	if HasBlockingReservation(pending, "2002") {
		t.Fatal("unexpected blocking reservation")
	}
}
