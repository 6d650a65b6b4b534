// Package testutil holds shared helpers for handler and store tests.
package testutil

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"exstock/internal/auth"
	"exstock/internal/catalog"
	"exstock/internal/db"
)

// SetupTestDB creates an in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// In-memory SQLite: one connection, or each new conn sees an empty db.
	conn.SetMaxOpenConns(1)
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// CreateTestSession inserts a cookie session for the given identity and
// returns its token.
func CreateTestSession(t *testing.T, conn *sql.DB, email string) string {
	t.Helper()
	token, err := auth.CreateSession(conn, email, "cookie", time.Hour)
	if err != nil {
		t.Fatalf("create test session: %v", err)
	}
	return token
}

// AuthedRequest builds a request carrying the session cookie.
func AuthedRequest(t *testing.T, method, path string, body io.Reader, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	return req
}

// AssertStatus fails the test when the recorded status differs.
func AssertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

// DecodeEnvelope unmarshals the standard {data, meta} response body.
func DecodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v; body: %s", err, rec.Body.String())
	}
	return out
}

// FakeCatalog is a canned catalog.Source for handler tests.
type FakeCatalog struct {
	Snapshot   *catalog.Snapshot
	Quantities map[string]int64
	Units      []string
	Err        error
}

func (f *FakeCatalog) Fetch(page, pageSize int, search string) (*catalog.Snapshot, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if search != "" {
		var items []catalog.Item
		for _, it := range f.Snapshot.Items {
			if it.Key == search || it.SKU == search {
				items = append(items, it)
			}
		}
		return catalog.NewSnapshot(items, len(items), page, pageSize, time.Now().UTC()), nil
	}
	return f.Snapshot, nil
}

func (f *FakeCatalog) OnHand(keys []string) (map[string]int64, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(map[string]int64)
	for _, k := range keys {
		if v, ok := f.Quantities[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *FakeCatalog) BusinessUnits() ([]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Units, nil
}
