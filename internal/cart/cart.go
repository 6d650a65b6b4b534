// Package cart holds in-progress requisition drafts. Drafts live in memory,
// scoped to the session that built them, and are never persisted; only a
// successful submit turns a draft into durable reservation lines.
package cart

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Phase is where a draft sits in its lifecycle.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseBuilding
	PhaseSubmitting
	PhaseSubmitted
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "building"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSubmitted:
		return "submitted"
	default:
		return "empty"
	}
}

// Line is one item claim inside a draft.
type Line struct {
	ItemKey       string          `json:"item_key"`
	ItemID        int64           `json:"item_id"`
	SKU           string          `json:"sku"`
	Description   string          `json:"description"`
	BusinessUnit  string          `json:"business_unit"`
	Qty           int64           `json:"qty"`
	AvailableQty  decimal.Decimal `json:"available_qty"`
	InitialOnHand decimal.Decimal `json:"initial_on_hand"`
	AddedAt       time.Time       `json:"added_at"`
}

// Draft is one session's unsubmitted requisition.
type Draft struct {
	mu    sync.Mutex
	phase Phase
	lines []Line
}

// Add puts a line in the draft. Adding an item already present merges the
// quantities into the existing line; the captured on-hand anchor and the
// added-at moment stay from the first add.
func (d *Draft) Add(line Line) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.lines {
		if d.lines[i].ItemKey == line.ItemKey {
			d.lines[i].Qty += line.Qty
			d.phase = PhaseBuilding
			return
		}
	}
	d.lines = append(d.lines, line)
	d.phase = PhaseBuilding
}

// Has reports whether the draft already contains the item.
func (d *Draft) Has(itemKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.lines {
		if l.ItemKey == itemKey {
			return true
		}
	}
	return false
}

// Remove drops the item's line, if present.
func (d *Draft) Remove(itemKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, l := range d.lines {
		if l.ItemKey == itemKey {
			d.lines = append(d.lines[:i], d.lines[i+1:]...)
			if len(d.lines) == 0 {
				d.phase = PhaseEmpty
			}
			return true
		}
	}
	return false
}

// Clear empties the draft.
func (d *Draft) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = nil
	d.phase = PhaseEmpty
}

// Lines returns a copy of the draft's lines in add order.
func (d *Draft) Lines() []Line {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Line, len(d.lines))
	copy(out, d.lines)
	return out
}

// Phase returns the draft's current lifecycle phase.
func (d *Draft) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// BeginSubmit moves the draft into the submitting phase and returns its
// lines. It fails when the draft is empty or a submit is already in flight,
// which keeps double-clicked submissions from producing two requisitions.
func (d *Draft) BeginSubmit() ([]Line, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != PhaseBuilding || len(d.lines) == 0 {
		return nil, false
	}
	d.phase = PhaseSubmitting
	out := make([]Line, len(d.lines))
	copy(out, d.lines)
	return out, true
}

// CompleteSubmit marks the submit as landed and empties the draft.
func (d *Draft) CompleteSubmit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = nil
	d.phase = PhaseSubmitted
}

// FailSubmit returns the draft to building so the user can retry or edit.
func (d *Draft) FailSubmit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phase = PhaseBuilding
}

// Store keeps one draft per session token. Two sessions never share a draft.
type Store struct {
	mu      sync.Mutex
	drafts  map[string]*Draft
	touched map[string]time.Time
}

func NewStore() *Store {
	return &Store{
		drafts:  make(map[string]*Draft),
		touched: make(map[string]time.Time),
	}
}

// Get returns the session's draft, creating an empty one on first use.
func (s *Store) Get(session string) *Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[session]
	if !ok {
		d = &Draft{}
		s.drafts[session] = d
	}
	s.touched[session] = time.Now()
	return d
}

// Drop discards the session's draft, e.g. on logout.
func (s *Store) Drop(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, session)
	delete(s.touched, session)
}

// PurgeIdle discards drafts whose sessions have not touched them since
// cutoff. Sessions expire without a logout (lapsed cookies, bearer tokens
// that simply stop coming back), so their drafts are reaped here instead.
func (s *Store) PurgeIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for session, at := range s.touched {
		if at.Before(cutoff) {
			delete(s.drafts, session)
			delete(s.touched, session)
			purged++
		}
	}
	return purged
}
