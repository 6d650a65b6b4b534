package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata. Stale is set when the catalog payload
// was served from the last-good snapshot cache instead of the ERP gateway.
type Meta struct {
	Total int  `json:"total,omitempty"`
	Page  int  `json:"page,omitempty"`
	Limit int  `json:"limit,omitempty"`
	Stale bool `json:"stale,omitempty"`
}

// Requisition is a submitted surplus request: one header plus its
// reservation lines, created atomically and immutable afterwards except for
// the fulfilled flag on each line.
type Requisition struct {
	ID             string            `json:"id"`
	DocumentNumber string            `json:"document_number"`
	RequestedBy    string            `json:"requested_by"`
	Description    string            `json:"description"`
	TotalItems     int               `json:"total_items"`
	CreatedAt      string            `json:"created_at"`
	Lines          []ReservationLine `json:"lines,omitempty"`
}

// ReservationLine claims a quantity of ERP stock pending backend processing.
// InitialOnHand anchors the reconciliation sweep's delta detection to the
// on-hand quantity the requester actually saw when the line was added.
// Lines are never deleted; the sweep is the only writer of Fulfilled.
type ReservationLine struct {
	ID            int64           `json:"id"`
	RequisitionID string          `json:"requisition_id"`
	ItemKey       string          `json:"item_key"`
	ItemID        int64           `json:"item_id"`
	BusinessUnit  string          `json:"business_unit"`
	RequestedQty  int64           `json:"requested_qty"`
	QtyToFulfill  int64           `json:"qty_to_fulfill"`
	AvailableQty  decimal.Decimal `json:"available_qty"`
	InitialOnHand decimal.Decimal `json:"initial_on_hand"`
	CreatedAt     time.Time       `json:"created_at"`
	Fulfilled     bool            `json:"fulfilled"`
}

// User is a local operator account (fallback login beside the identity
// provider).
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}
