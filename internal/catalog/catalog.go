// Package catalog reads surplus stock from the ERP gateway and carries the
// snapshot types the reconciliation sweep consumes.
package catalog

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Item is one surplus stock record from the ERP. The gateway serves two row
// shapes: full rows carry both the numeric item id and the legacy
// alphanumeric SKU, older rows carry the numeric id only. decodeRow resolves
// both into this one type; Key is the stable identity used everywhere else.
type Item struct {
	Key          string          `json:"key"`
	SKU          string          `json:"sku"`
	Description  string          `json:"description"`
	Lot          string          `json:"lot"`
	Location     string          `json:"location"`
	Unit         string          `json:"unit"`
	BusinessUnit string          `json:"business_unit"`
	OnHand       decimal.Decimal `json:"on_hand"`
}

// NumericID returns the ERP numeric item id, or 0 when the key is a legacy
// SKU.
func (it Item) NumericID() int64 {
	n, err := strconv.ParseInt(it.Key, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// row is the gateway wire shape. Quantities arrive as raw centi-units
// (the ERP stores on-hand scaled by 100); quantity() converts exactly.
type row struct {
	ItemID    string `json:"itm"`
	LegacySKU string `json:"litm"`
	Desc      string `json:"dsci"`
	Lot       string `json:"lotn"`
	Location  string `json:"secu"`
	Unit      string `json:"un"`
	OnHandRaw int64  `json:"pqoh"`
}

func (r row) quantity() decimal.Decimal {
	return decimal.New(r.OnHandRaw, -2)
}

func decodeRow(r row, businessUnit string) Item {
	key := r.ItemID
	sku := r.LegacySKU
	if key == "" {
		// Legacy shape: only the alphanumeric SKU identifies the item.
		key = r.LegacySKU
		sku = ""
	}
	return Item{
		Key:          key,
		SKU:          sku,
		Description:  r.Desc,
		Lot:          r.Lot,
		Location:     r.Location,
		Unit:         r.Unit,
		BusinessUnit: businessUnit,
		OnHand:       r.quantity(),
	}
}

// Snapshot is one fetched page of the catalog plus the fetch moment. A
// snapshot is read-only once built.
type Snapshot struct {
	Items     []Item    `json:"items"`
	Total     int       `json:"total"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	FetchedAt time.Time `json:"fetched_at"`

	byKey map[string]int
}

// NewSnapshot builds a snapshot and its key index.
func NewSnapshot(items []Item, total, page, pageSize int, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		Items:     items,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		FetchedAt: fetchedAt,
		byKey:     make(map[string]int, len(items)),
	}
	for i, it := range items {
		s.byKey[it.Key] = i
	}
	return s
}

// Lookup returns the item with the given key, if present in this snapshot.
func (s *Snapshot) Lookup(key string) (Item, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Item{}, false
	}
	return s.Items[i], true
}

// OnHand returns the key -> on-hand map the sweep consumes. Absence from the
// map means absence from the snapshot, never zero stock.
func (s *Snapshot) OnHand() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(s.Items))
	for _, it := range s.Items {
		m[it.Key] = it.OnHand
	}
	return m
}
