package ledger

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SnapshotSource supplies current on-hand quantities, in raw centi-units,
// for a set of item keys.
type SnapshotSource interface {
	OnHand(keys []string) (map[string]int64, error)
}

// Sweeper runs reconciliation passes and persists their outcome.
type Sweeper struct {
	store *Store

	// Notify, when set, is called after a pass that fulfilled lines.
	Notify func(fulfilled int, pending map[string]int64)
}

func NewSweeper(store *Store) *Sweeper {
	return &Sweeper{store: store}
}

// Apply reconciles the outstanding lines against the snapshot and writes the
// fulfillments back before the pending totals are trusted.
//
// When the write-back fails the decided lines stay outstanding in the store,
// so the returned pending map counts them as still reserved. The caller gets
// both the best-effort map and the error; serving availability from it keeps
// items blocked rather than releasing a reservation that was never recorded.
func (s *Sweeper) Apply(onHand map[string]decimal.Decimal, now time.Time) (map[string]int64, error) {
	lines, err := s.store.OutstandingLines()
	if err != nil {
		return nil, err
	}

	res := Reconcile(onHand, lines, now)

	if err := s.store.MarkFulfilled(res.ToFulfill); err != nil {
		log.Error().Err(err).Int("lines", len(res.ToFulfill)).
			Msg("fulfillment write-back failed, keeping lines reserved")
		undecided := make(map[int64]bool, len(res.ToFulfill))
		for _, id := range res.ToFulfill {
			undecided[id] = true
		}
		for _, line := range lines {
			if undecided[line.ID] {
				res.PendingByItem[line.ItemKey] += line.QtyToFulfill
			}
		}
		return res.PendingByItem, err
	}

	if len(res.ToFulfill) > 0 {
		log.Info().Int("fulfilled", len(res.ToFulfill)).
			Int("pending_items", len(res.PendingByItem)).
			Msg("reconciliation pass applied")
		if s.Notify != nil {
			s.Notify(len(res.ToFulfill), res.PendingByItem)
		}
	}
	return res.PendingByItem, nil
}

// SweepAll reconciles every outstanding item key, not just the ones a user
// happens to be looking at. It asks the source for current quantities of all
// distinct outstanding keys and applies one pass over the result.
func (s *Sweeper) SweepAll(src SnapshotSource, now time.Time) (map[string]int64, error) {
	keys, err := s.store.OutstandingKeys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	raw, err := src.OnHand(keys)
	if err != nil {
		// No snapshot, no decisions. Everything stays reserved.
		return nil, err
	}

	onHand := make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		onHand[k] = decimal.New(v, -2)
	}
	return s.Apply(onHand, now)
}

// RunEvery sweeps the full outstanding set on a fixed interval until stop is
// closed.
func (s *Sweeper) RunEvery(interval time.Duration, src SnapshotSource, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.SweepAll(src, time.Now().UTC()); err != nil {
				log.Warn().Err(err).Msg("background sweep skipped")
			}
		}
	}
}
