// Package auth covers both ways into the system: local operator accounts
// with bcrypt passwords, and bearer tokens verified against the external
// identity provider. Either way ends in a row in the sessions table.
package auth

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"exstock/internal/models"
)

const (
	// SessionCookie is the cookie carrying the session token.
	SessionCookie = "exstock_session"

	// CookieTTL is the lifetime of a session created by local login.
	CookieTTL = 24 * time.Hour
	// BearerTTL is how long a verified identity-provider token is cached
	// before it must be verified again.
	BearerTTL = time.Hour
)

var ErrInvalidCredentials = errors.New("invalid username or password")

const timeLayout = "2006-01-02 15:04:05"

// VerifyLocal checks a username/password pair against the users table.
func VerifyLocal(db *sql.DB, username, password string) (*models.User, error) {
	var u models.User
	var hash string
	var active int
	err := db.QueryRow(`SELECT id, username, password_hash, email, role, active, created_at
		FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &hash, &u.Email, &u.Role, &active, &u.CreatedAt)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if active == 0 {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	u.Active = true
	return &u, nil
}

// CreateSession issues a session token for the given identity.
// kind is "cookie" for interactive logins and "bearer" for cached
// identity-provider verifications.
func CreateSession(db *sql.DB, email, kind string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	expires := time.Now().UTC().Add(ttl).Format(timeLayout)
	_, err := db.Exec(
		"INSERT INTO sessions (token, email, kind, expires_at) VALUES (?, ?, ?, ?)",
		token, email, kind, expires)
	if err != nil {
		return "", err
	}
	return token, nil
}

// LookupSession resolves a token to its identity. Expired tokens resolve to
// nothing.
func LookupSession(db *sql.DB, token string) (string, bool) {
	var email string
	var expiresAt string
	err := db.QueryRow("SELECT email, expires_at FROM sessions WHERE token = ?", token).
		Scan(&email, &expiresAt)
	if err != nil {
		return "", false
	}
	expires, err := time.Parse(timeLayout, expiresAt)
	if err != nil || time.Now().UTC().After(expires) {
		return "", false
	}
	return email, true
}

// DeleteSession removes a session, e.g. on logout.
func DeleteSession(db *sql.DB, token string) {
	db.Exec("DELETE FROM sessions WHERE token = ?", token)
}

// PurgeExpired drops lapsed sessions.
func PurgeExpired(db *sql.DB) {
	db.Exec("DELETE FROM sessions WHERE expires_at <= ?",
		time.Now().UTC().Format(timeLayout))
}
