// Package audit records who did what against the requisition ledger.
package audit

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Log writes one audit entry. Audit failures are logged and swallowed; the
// action that triggered the entry has already happened.
func Log(db *sql.DB, actor, action, module, recordID, summary, ip string) {
	_, err := db.Exec(`INSERT INTO audit_log (actor, action, module, record_id, summary, ip_address)
		VALUES (?, ?, ?, ?, ?, ?)`,
		actor, action, module, recordID, summary, ip)
	if err != nil {
		log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

// LogRequest is Log with the actor's IP taken from the request.
func LogRequest(db *sql.DB, r *http.Request, actor, action, module, recordID, summary string) {
	Log(db, actor, action, module, recordID, summary, ClientIP(r))
}

// ClientIP extracts the originating client address, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
