// Package formapi is the typed REST client for the Form Builder backend,
// the system employees submit their daily reports and service records to.
package formapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ErrUnauthorized means the service token was rejected by the Form Builder.
var ErrUnauthorized = errors.New("formapi: unauthorized")

// Config holds the outbound connection settings.
type Config struct {
	BaseURL      string
	ServiceToken string
}

// TokenInfo is what the Form Builder reports about a service token.
type TokenInfo struct {
	CompanyID   string   `json:"companyId"`
	CompanyName string   `json:"companyName"`
	Scopes      []string `json:"scopes"`
}

// Employee is the feed shape of an employee record.
type Employee struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	FirstName  *string `json:"firstName"`
	LastName   *string `json:"lastName"`
	Department *string `json:"department"`
	Active     bool    `json:"active"`
	UpdatedAt  string  `json:"updatedAt"`
}

// Submission is one submitted form document. Payload stays raw: the ingest
// layer maps it by document type.
type Submission struct {
	ID           string          `json:"id"`
	DocumentType string          `json:"documentType"`
	Username     string          `json:"username"`
	Date         string          `json:"date"` // YYYY-MM-DD
	UpdatedAt    string          `json:"updatedAt"`
	Payload      json.RawMessage `json:"payload"`
}

type submissionPage struct {
	Items []Submission `json:"items"`
}

type employeePage struct {
	Items []Employee `json:"items"`
}

type presignResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}

// Client talks to the Form Builder over HTTP with a service token. The
// token can be swapped at runtime when the binding changes in settings.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetConfig swaps the base URL and service token, e.g. after setup.
func (c *Client) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Configured reports whether the client has a base URL and service token.
func (c *Client) Configured() bool {
	cfg := c.config()
	return cfg.BaseURL != "" && cfg.ServiceToken != ""
}

// ValidateServiceToken checks a candidate token against the Form Builder
// without touching the client's stored configuration. Used by the setup flow
// before the token is persisted.
func (c *Client) ValidateServiceToken(ctx context.Context, baseURL, token string) (*TokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/token/info", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validate token: status %d", resp.StatusCode)
	}

	var info TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode token info: %w", err)
	}
	return &info, nil
}

// ListEmployees returns employees changed since the cursor. An empty cursor
// returns everything.
func (c *Client) ListEmployees(ctx context.Context, updatedAfter string) ([]Employee, error) {
	var page employeePage
	if err := c.get(ctx, "/api/v1/employees", url.Values{"updatedAfter": {updatedAfter}}, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ListSubmissions returns submissions changed since the cursor, oldest first.
func (c *Client) ListSubmissions(ctx context.Context, updatedAfter string) ([]Submission, error) {
	var page submissionPage
	if err := c.get(ctx, "/api/v1/submissions", url.Values{"updatedAfter": {updatedAfter}}, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// PresignedURL returns a short-lived download URL for a submission file.
func (c *Client) PresignedURL(ctx context.Context, submissionID, filename string) (string, error) {
	var resp presignResponse
	err := c.get(ctx, "/api/v1/submissions/"+submissionID+"/files/"+url.PathEscape(filename)+"/presign", nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// RegeneratePdf asks the Form Builder to re-render a submission's PDF after
// corrections, returning the new object key.
func (c *Client) RegeneratePdf(ctx context.Context, submissionID string, fields map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", fmt.Errorf("marshal regenerate request: %w", err)
	}

	cfg := c.config()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cfg.BaseURL+"/api/v1/submissions/"+submissionID+"/pdf", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.ServiceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("regenerate pdf: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("regenerate pdf: status %d", resp.StatusCode)
	}

	var out struct {
		ObjectKey string `json:"objectKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode regenerate response: %w", err)
	}
	return out.ObjectKey, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	cfg := c.config()
	if cfg.BaseURL == "" {
		return errors.New("formapi: not configured")
	}

	u := cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.ServiceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
