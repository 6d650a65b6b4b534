package auth_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exstock/internal/auth"
	"exstock/internal/db"
	"exstock/internal/testutil"
)

func TestVerifyLocalSeededAdmin(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	if err := db.Seed(conn); err != nil {
		t.Fatalf("seed: %v", err)
	}

	user, err := auth.VerifyLocal(conn, "admin", "changeme")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.Username != "admin" || user.Role != "admin" {
		t.Fatalf("user = %+v", user)
	}

	if _, err := auth.VerifyLocal(conn, "admin", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
	if _, err := auth.VerifyLocal(conn, "nobody", "changeme"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestVerifyLocalInactiveAccount(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	if err := db.Seed(conn); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := conn.Exec("UPDATE users SET active = 0 WHERE username = 'admin'"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := auth.VerifyLocal(conn, "admin", "changeme"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	conn := testutil.SetupTestDB(t)

	token, err := auth.CreateSession(conn, "ana@example.com", "cookie", time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	email, ok := auth.LookupSession(conn, token)
	if !ok || email != "ana@example.com" {
		t.Fatalf("lookup = %q, %v", email, ok)
	}

	auth.DeleteSession(conn, token)
	if _, ok := auth.LookupSession(conn, token); ok {
		t.Fatal("deleted session found")
	}
}

func TestPurgeExpired(t *testing.T) {
	conn := testutil.SetupTestDB(t)

	expired, _ := auth.CreateSession(conn, "old@example.com", "bearer", -time.Minute)
	live, _ := auth.CreateSession(conn, "ana@example.com", "cookie", time.Hour)

	auth.PurgeExpired(conn)

	var n int
	conn.QueryRow("SELECT COUNT(*) FROM sessions WHERE token = ?", expired).Scan(&n)
	if n != 0 {
		t.Fatal("expired session survived purge")
	}
	if _, ok := auth.LookupSession(conn, live); !ok {
		t.Fatal("live session purged")
	}
}

func identityServer(t *testing.T, emailByToken map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		email, ok := emailByToken[token]
		if !ok {
			w.WriteHeader(401)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"email": email})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifierResolvesEmail(t *testing.T) {
	srv := identityServer(t, map[string]string{"Bearer tok-1": "Ana@Example.COM"})
	v := auth.NewVerifier(srv.URL, "")

	email, err := v.Verify("tok-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if email != "ana@example.com" {
		t.Fatalf("email = %q", email)
	}

	if _, err := v.Verify("tok-2"); !errors.Is(err, auth.ErrTokenRejected) {
		t.Fatalf("err = %v", err)
	}
}

func TestVerifierAllowedDomain(t *testing.T) {
	srv := identityServer(t, map[string]string{
		"Bearer in":  "ana@example.com",
		"Bearer out": "eve@other.org",
	})
	v := auth.NewVerifier(srv.URL, "@example.com")

	if _, err := v.Verify("in"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := v.Verify("out"); !errors.Is(err, auth.ErrDomainNotAllowed) {
		t.Fatalf("err = %v", err)
	}
}
