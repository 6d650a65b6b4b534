// Package workflow validates cart edits and turns a draft into a persisted
// requisition.
package workflow

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exstock/internal/cart"
	"exstock/internal/catalog"
	"exstock/internal/ledger"
	"exstock/internal/models"
)

// Validation failures surfaced to the caller for correction. None of them
// are retried automatically.
var (
	ErrInvalidQuantity      = errors.New("quantity must be a positive whole number")
	ErrDuplicateItem        = errors.New("item is already in the cart")
	ErrBlockedByReservation = errors.New("item has an outstanding reservation")
	ErrInsufficientStock    = errors.New("requested quantity exceeds available stock")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrSubmitInFlight       = errors.New("a submission is already in progress")
)

// Workflow runs the requisition state machine over a session's cart draft.
type Workflow struct {
	store *ledger.Store
}

func New(store *ledger.Store) *Workflow {
	return &Workflow{store: store}
}

// AddLine validates a request against the current availability picture and
// appends it to the draft. The checks run in a fixed order: quantity sanity,
// duplicate item, blocking reservation, then stock level. The cart container
// itself would merge a duplicate add; this layer rejects it instead, so the
// user edits the existing line deliberately rather than growing it by
// accident.
//
// On success the line captures the item's raw on-hand quantity at this
// instant. That captured value, not a fresh read, is what the sweep later
// compares against.
func (wf *Workflow) AddLine(draft *cart.Draft, item catalog.Item, qty int64, pending map[string]int64) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if draft.Has(item.Key) {
		return ErrDuplicateItem
	}
	if ledger.HasBlockingReservation(pending, item.Key) {
		return ErrBlockedByReservation
	}
	net := ledger.NetAvailable(item.OnHand, pending[item.Key])
	if net.LessThanOrEqual(decimal.Zero) || decimal.NewFromInt(qty).GreaterThan(net) {
		return ErrInsufficientStock
	}

	draft.Add(cart.Line{
		ItemKey:       item.Key,
		ItemID:        item.NumericID(),
		SKU:           item.SKU,
		Description:   item.Description,
		BusinessUnit:  item.BusinessUnit,
		Qty:           qty,
		AvailableQty:  net,
		InitialOnHand: item.OnHand,
		AddedAt:       time.Now().UTC(),
	})
	return nil
}

// RemoveLine drops an item from the draft. Nothing was reserved yet, so
// there is no ledger side effect.
func (wf *Workflow) RemoveLine(draft *cart.Draft, itemKey string) bool {
	return draft.Remove(itemKey)
}

// Submit turns the draft into a requisition: one header plus one reservation
// line per cart line, inserted atomically. The draft clears only after the
// insert lands; any failure returns it to the building phase untouched.
//
// A concurrent submission holding one of the same items loses here with
// ErrBlockedByReservation, raised by the store's outstanding-line uniqueness
// rather than by each client's own availability view.
func (wf *Workflow) Submit(draft *cart.Draft, requestedBy, description string) (*models.Requisition, error) {
	if len(draft.Lines()) == 0 {
		return nil, ErrEmptyCart
	}
	lines, ok := draft.BeginSubmit()
	if !ok {
		return nil, ErrSubmitInFlight
	}

	now := time.Now().UTC()
	req := &models.Requisition{
		ID:             uuid.NewString(),
		DocumentNumber: DocumentNumber(now),
		RequestedBy:    requestedBy,
		Description:    description,
	}

	resLines := make([]models.ReservationLine, 0, len(lines))
	for _, l := range lines {
		resLines = append(resLines, models.ReservationLine{
			RequisitionID: req.ID,
			ItemKey:       l.ItemKey,
			ItemID:        l.ItemID,
			BusinessUnit:  l.BusinessUnit,
			RequestedQty:  l.Qty,
			QtyToFulfill:  l.Qty,
			AvailableQty:  l.AvailableQty,
			InitialOnHand: l.InitialOnHand,
			CreatedAt:     now,
		})
	}

	if err := wf.store.CreateRequisition(req, resLines); err != nil {
		draft.FailSubmit()
		if errors.Is(err, ledger.ErrItemReserved) {
			return nil, fmt.Errorf("%w: %v", ErrBlockedByReservation, err)
		}
		return nil, err
	}

	draft.CompleteSubmit()
	req.Lines = resLines
	return req, nil
}

// DocumentNumber builds a human-referenceable document id: the submission
// millisecond plus a short random suffix against same-millisecond collisions.
func DocumentNumber(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}
