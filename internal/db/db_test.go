package db

import (
	"path/filepath"
	"testing"
)

func TestOpenMigratesAndSeeds(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "exstock.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := Seed(conn); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Seeding again must not duplicate the admin account.
	if err := Seed(conn); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	var users int
	if err := conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&users); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if users != 1 {
		t.Fatalf("users = %d, want 1", users)
	}

	for _, table := range []string{"purchases", "purchase_items", "sessions", "audit_log"} {
		var n int
		if err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestOutstandingUniqueIndex(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "exstock.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	insert := func(purchase, key string, fulfilled int) error {
		if _, err := conn.Exec(`INSERT OR IGNORE INTO purchases (id, document_number, requested_by)
			VALUES (?, ?, 'ana@example.com')`, purchase, "doc-"+purchase); err != nil {
			return err
		}
		_, err := conn.Exec(`INSERT INTO purchase_items
			(purchase_id, item_key, requested_qty, qty_to_fulfill, initial_on_hand, fulfilled, created_at)
			VALUES (?, ?, 1, 1, '50', ?, '2026-08-28 12:00:00')`, purchase, key, fulfilled)
		return err
	}

	if err := insert("p1", "1001", 0); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Second outstanding line for the same item is refused.
	if err := insert("p2", "1001", 0); err == nil {
		t.Fatal("duplicate outstanding line accepted")
	}
	// A fulfilled line for the same item is fine.
	if err := insert("p3", "1001", 1); err != nil {
		t.Fatalf("fulfilled insert: %v", err)
	}
}
