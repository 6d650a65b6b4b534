package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrTokenRejected    = errors.New("auth: identity provider rejected token")
	ErrDomainNotAllowed = errors.New("auth: email domain not allowed")
)

// Verifier validates bearer tokens against the external identity provider
// and enforces the allowed email domain, when one is configured.
type Verifier struct {
	baseURL       string
	allowedDomain string
	httpClient    *http.Client
}

func NewVerifier(baseURL, allowedDomain string) *Verifier {
	return &Verifier{
		baseURL:       strings.TrimRight(baseURL, "/"),
		allowedDomain: strings.ToLower(strings.TrimPrefix(allowedDomain, "@")),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify resolves a bearer token to the requester's email address.
func (v *Verifier) Verify(token string) (string, error) {
	req, err := http.NewRequest("GET", v.baseURL+"/userinfo", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return "", ErrTokenRejected
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("identity provider error %d", resp.StatusCode)
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("identity provider decode error: %w", err)
	}
	if body.Email == "" {
		return "", ErrTokenRejected
	}

	email := strings.ToLower(body.Email)
	if v.allowedDomain != "" && !strings.HasSuffix(email, "@"+v.allowedDomain) {
		return "", ErrDomainNotAllowed
	}
	return email, nil
}
