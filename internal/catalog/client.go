package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable marks gateway failures the caller may serve around with a
// cached snapshot. Auth misconfiguration and decode errors are not wrapped;
// those need an operator, not a fallback.
var ErrUnavailable = errors.New("catalog: stock gateway unavailable")

// Source is the read surface the handlers and the sweeper depend on.
type Source interface {
	Fetch(page, pageSize int, search string) (*Snapshot, error)
	OnHand(keys []string) (map[string]int64, error)
	BusinessUnits() ([]string, error)
}

// Client talks to the ERP stock gateway using OAuth2 client credentials.
// Tokens are cached until shortly before expiry.
type Client struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	businessUnit string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a gateway client scoped to one business unit.
func NewClient(baseURL, tokenURL, clientID, clientSecret, businessUnit string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		businessUnit: businessUnit,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// BusinessUnit returns the unit this client is scoped to.
func (c *Client) BusinessUnit() string { return c.businessUnit }

func (c *Client) authenticate() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	resp, err := c.httpClient.Post(
		c.tokenURL,
		"application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("%w: oauth request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway oauth error %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("gateway oauth decode error: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

func (c *Client) get(path string, query url.Values, out interface{}) error {
	token, err := c.authenticate()
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway decode error: %w", err)
	}
	return nil
}

// Fetch returns one page of the surplus catalog for this client's business
// unit. search matches description, legacy SKU, or numeric item id.
func (c *Client) Fetch(page, pageSize int, search string) (*Snapshot, error) {
	q := url.Values{
		"business_unit": {c.businessUnit},
		"page":          {strconv.Itoa(page)},
		"page_size":     {strconv.Itoa(pageSize)},
	}
	if search != "" {
		q.Set("search", search)
	}

	var body struct {
		Items    []row `json:"items"`
		Total    int   `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
	}
	if err := c.get("/stock", q, &body); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(body.Items))
	for _, r := range body.Items {
		items = append(items, decodeRow(r, c.businessUnit))
	}
	return NewSnapshot(items, body.Total, body.Page, body.PageSize, time.Now().UTC()), nil
}

// OnHand returns current raw centi-unit quantities for the given item keys.
// Keys the ERP no longer knows are absent from the result.
func (c *Client) OnHand(keys []string) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	token, err := c.authenticate()
	if err != nil {
		return nil, err
	}

	reqBody, _ := json.Marshal(map[string]interface{}{
		"business_unit": c.businessUnit,
		"keys":          keys,
	})
	req, err := http.NewRequest("POST", c.baseURL+"/stock/quantities", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(body))
	}

	var body struct {
		Quantities map[string]int64 `json:"quantities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("gateway decode error: %w", err)
	}
	if body.Quantities == nil {
		body.Quantities = map[string]int64{}
	}
	return body.Quantities, nil
}

// BusinessUnits lists the units the gateway credentials can see.
func (c *Client) BusinessUnits() ([]string, error) {
	var body struct {
		Items []string `json:"items"`
	}
	if err := c.get("/business-units", nil, &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}
