// Package ledger keeps reservation lines honest against live ERP stock.
// Nothing outside this system ever marks a line fulfilled; the backend
// office processes requests out of band, and the reconciliation sweep infers
// completion from what the stock numbers do.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"exstock/internal/models"
)

// StalenessWindow is how long a reservation stays trusted with no stock
// movement before the sweep assumes the backend handled it offline.
const StalenessWindow = 5 * 24 * time.Hour

// Result is one reconciliation pass over a set of outstanding lines.
type Result struct {
	// PendingByItem sums QtyToFulfill per item key for every line the pass
	// decided is still genuinely reserved.
	PendingByItem map[string]int64
	// ToFulfill holds the line IDs the pass decided are complete.
	ToFulfill []int64
}

// Reconcile classifies each outstanding line against the on-hand snapshot.
//
// A line is considered processed when the item's on-hand level differs from
// the level captured at reservation time, in either direction and by any
// amount, or when the line has aged past StalenessWindow. Items absent from
// the snapshot yield no decision at all, staleness expiry included: absence
// means the snapshot didn't cover the item, not that its stock is zero, so
// the line stays pending until a pass that can actually see it. Lines
// already marked fulfilled are skipped, so re-running a pass over the same
// inputs is a no-op.
func Reconcile(onHand map[string]decimal.Decimal, lines []models.ReservationLine, now time.Time) Result {
	res := Result{PendingByItem: make(map[string]int64)}

	for _, line := range lines {
		if line.Fulfilled {
			continue
		}

		current, seen := onHand[line.ItemKey]
		if !seen {
			res.PendingByItem[line.ItemKey] += line.QtyToFulfill
			continue
		}
		if !current.Equal(line.InitialOnHand) {
			res.ToFulfill = append(res.ToFulfill, line.ID)
			continue
		}
		if now.Sub(line.CreatedAt) >= StalenessWindow {
			res.ToFulfill = append(res.ToFulfill, line.ID)
			continue
		}
		res.PendingByItem[line.ItemKey] += line.QtyToFulfill
	}
	return res
}

// NetAvailable is the stock a new requester may claim: on-hand minus what
// outstanding reservations already promise. It can go to zero or below;
// anything not strictly positive is not requestable.
func NetAvailable(onHand decimal.Decimal, pending int64) decimal.Decimal {
	return onHand.Sub(decimal.NewFromInt(pending))
}

// HasBlockingReservation reports whether any outstanding reservation exists
// for the item. One outstanding reservation blocks all further requests for
// that item, regardless of remaining stock.
func HasBlockingReservation(pending map[string]int64, itemKey string) bool {
	return pending[itemKey] > 0
}
