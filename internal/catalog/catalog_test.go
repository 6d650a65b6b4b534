package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDecodeRowFullShape(t *testing.T) {
	it := decodeRow(row{
		ItemID:    "1001",
		LegacySKU: "AB-778",
		Desc:      "Hex bolt M8",
		Lot:       "L42",
		Location:  "A-01-03",
		Unit:      "EA",
		OnHandRaw: 5025,
	}, "9301000050")

	if it.Key != "1001" || it.SKU != "AB-778" {
		t.Fatalf("identity = %q/%q", it.Key, it.SKU)
	}
	if it.NumericID() != 1001 {
		t.Fatalf("numeric id = %d", it.NumericID())
	}
	// Centi-units convert exactly: 5025 -> 50.25.
	if !it.OnHand.Equal(decimal.RequireFromString("50.25")) {
		t.Fatalf("on hand = %s, want 50.25", it.OnHand)
	}
}

func TestDecodeRowLegacyShape(t *testing.T) {
	it := decodeRow(row{
		LegacySKU: "AB-778",
		Desc:      "Hex bolt M8",
		OnHandRaw: 300,
	}, "9301000050")

	// Without a numeric id the legacy SKU is the identity, not a secondary.
	if it.Key != "AB-778" || it.SKU != "" {
		t.Fatalf("identity = %q/%q", it.Key, it.SKU)
	}
	if it.NumericID() != 0 {
		t.Fatalf("numeric id = %d", it.NumericID())
	}
	if !it.OnHand.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("on hand = %s, want 3", it.OnHand)
	}
}

func TestSnapshotLookupAndOnHand(t *testing.T) {
	snap := NewSnapshot([]Item{
		{Key: "1001", OnHand: decimal.RequireFromString("50.25")},
		{Key: "2002", OnHand: decimal.RequireFromString("0")},
	}, 2, 1, 50, time.Now().UTC())

	it, ok := snap.Lookup("1001")
	if !ok || !it.OnHand.Equal(decimal.RequireFromString("50.25")) {
		t.Fatalf("lookup = %+v, %v", it, ok)
	}
	if _, ok := snap.Lookup("9999"); ok {
		t.Fatal("found missing key")
	}

	onHand := snap.OnHand()
	if len(onHand) != 2 {
		t.Fatalf("on hand map = %v", onHand)
	}
	if _, ok := onHand["9999"]; ok {
		t.Fatal("absent item present in map")
	}
}
