// Package admin serves local login, logout, and session introspection.
package admin

import (
	"net/http"
	"time"

	"exstock/internal/audit"
	"exstock/internal/auth"
	"exstock/internal/response"
	"exstock/internal/server"
)

type Handler struct {
	App *server.App
}

func NewHandler(app *server.App) *Handler {
	return &Handler{App: app}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin authenticates a local operator account and issues a session
// cookie.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", 400)
		return
	}

	user, err := auth.VerifyLocal(h.App.DB, req.Username, req.Password)
	if err != nil {
		response.Err(w, "Invalid username or password", 401)
		return
	}

	auth.PurgeExpired(h.App.DB)

	identity := user.Email
	if identity == "" {
		identity = user.Username
	}
	token, err := auth.CreateSession(h.App.DB, identity, "cookie", auth.CookieTTL)
	if err != nil {
		response.Err(w, "Failed to create session", 500)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(auth.CookieTTL),
	})

	audit.LogRequest(h.App.DB, r, identity, "login", "auth", "", "")
	response.JSON(w, user)
}

// HandleLogout ends the session and discards its cart draft.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		auth.DeleteSession(h.App.DB, cookie.Value)
		h.App.Carts.Drop(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	response.JSON(w, map[string]string{"status": "ok"})
}

// HandleMe returns the identity behind the session cookie.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		response.Err(w, "Unauthorized", 401)
		return
	}
	email, ok := auth.LookupSession(h.App.DB, cookie.Value)
	if !ok {
		response.Err(w, "Unauthorized", 401)
		return
	}
	response.JSON(w, map[string]string{"email": email})
}
