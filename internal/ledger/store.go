package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"exstock/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	// ErrNotFound means no requisition exists with the given id.
	ErrNotFound = errors.New("ledger: requisition not found")
	// ErrItemReserved means another outstanding reservation already holds
	// one of the submitted items. The unique index on outstanding lines
	// raises this when two submissions race.
	ErrItemReserved = errors.New("ledger: item already reserved")
)

// Store persists requisitions and their reservation lines in SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRequisition inserts the header and all lines in one transaction.
// Either everything lands or nothing does; a requisition can never exist
// without its lines.
func (s *Store) CreateRequisition(req *models.Requisition, lines []models.ReservationLine) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := time.Now().UTC().Format(timeLayout)
	_, err = tx.Exec(`INSERT INTO purchases (id, document_number, requested_by, description, total_items, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.DocumentNumber, req.RequestedBy, req.Description, len(lines), createdAt)
	if err != nil {
		return fmt.Errorf("insert requisition: %w", err)
	}

	for _, line := range lines {
		_, err = tx.Exec(`INSERT INTO purchase_items
			(purchase_id, item_key, item_id, business_unit, requested_qty, qty_to_fulfill, available_qty, initial_on_hand, fulfilled, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			req.ID, line.ItemKey, line.ItemID, line.BusinessUnit,
			line.RequestedQty, line.QtyToFulfill,
			line.AvailableQty.String(), line.InitialOnHand.String(),
			line.CreatedAt.UTC().Format(timeLayout))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s", ErrItemReserved, line.ItemKey)
			}
			return fmt.Errorf("insert line %s: %w", line.ItemKey, err)
		}
	}

	req.TotalItems = len(lines)
	req.CreatedAt = createdAt
	return tx.Commit()
}

// OutstandingLines returns every line not yet marked fulfilled.
func (s *Store) OutstandingLines() ([]models.ReservationLine, error) {
	rows, err := s.db.Query(`SELECT id, purchase_id, item_key, item_id, business_unit,
		requested_qty, qty_to_fulfill, available_qty, initial_on_hand, fulfilled, created_at
		FROM purchase_items WHERE fulfilled = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

// OutstandingKeys returns the distinct item keys with at least one
// outstanding line. The background sweep feeds these to the gateway.
func (s *Store) OutstandingKeys() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT item_key FROM purchase_items WHERE fulfilled = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PendingByItem sums outstanding quantities per item straight from the
// store, with no reconciliation decisions. Used when the stock gateway is
// down: everything outstanding keeps counting as reserved.
func (s *Store) PendingByItem() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT item_key, SUM(qty_to_fulfill)
		FROM purchase_items WHERE fulfilled = 0 GROUP BY item_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := make(map[string]int64)
	for rows.Next() {
		var key string
		var qty int64
		if err := rows.Scan(&key, &qty); err != nil {
			return nil, err
		}
		pending[key] = qty
	}
	return pending, rows.Err()
}

// MarkFulfilled flips the given lines to fulfilled. Already fulfilled lines
// are unaffected, so retries are safe.
func (s *Store) MarkFulfilled(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(
		"UPDATE purchase_items SET fulfilled = 1 WHERE id IN ("+placeholders+")", args...)
	return err
}

// ListRequisitions returns one page of requisition headers, newest first,
// plus the total count.
func (s *Store) ListRequisitions(page, limit int) ([]models.Requisition, int, error) {
	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM purchases").Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	rows, err := s.db.Query(`SELECT id, document_number, requested_by, description, total_items, created_at
		FROM purchases ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reqs := []models.Requisition{}
	for rows.Next() {
		var r models.Requisition
		if err := rows.Scan(&r.ID, &r.DocumentNumber, &r.RequestedBy, &r.Description, &r.TotalItems, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, r)
	}
	return reqs, total, rows.Err()
}

// GetRequisition returns one requisition with its lines.
func (s *Store) GetRequisition(id string) (*models.Requisition, error) {
	var r models.Requisition
	err := s.db.QueryRow(`SELECT id, document_number, requested_by, description, total_items, created_at
		FROM purchases WHERE id = ?`, id).
		Scan(&r.ID, &r.DocumentNumber, &r.RequestedBy, &r.Description, &r.TotalItems, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT id, purchase_id, item_key, item_id, business_unit,
		requested_qty, qty_to_fulfill, available_qty, initial_on_hand, fulfilled, created_at
		FROM purchase_items WHERE purchase_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r.Lines, err = scanLines(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanLines(rows *sql.Rows) ([]models.ReservationLine, error) {
	var lines []models.ReservationLine
	for rows.Next() {
		var line models.ReservationLine
		var createdAt string
		if err := rows.Scan(&line.ID, &line.RequisitionID, &line.ItemKey, &line.ItemID,
			&line.BusinessUnit, &line.RequestedQty, &line.QtyToFulfill,
			&line.AvailableQty, &line.InitialOnHand, &line.Fulfilled, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			// SQLite may hand back its own DATETIME rendering.
			t, err = time.Parse(time.RFC3339, createdAt)
			if err != nil {
				return nil, fmt.Errorf("parse line created_at %q: %w", createdAt, err)
			}
		}
		line.CreatedAt = t.UTC()
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
