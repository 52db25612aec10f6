package vendordirectory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/localtable/localtable-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// Vendor is the directory's view of a restaurant: who owns it and whether it
// is currently listed.
type Vendor struct {
	ID          uuid.UUID
	OwnerUserID uuid.UUID
	OwnerEmail  string
	Name        string
	Active      bool
}

// Client resolves restaurant identifiers against the vendor directory service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a vendor directory client for the given base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor directory base URL is required")
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// GetVendor fetches directory data for a restaurant.
func (c *Client) GetVendor(ctx context.Context, vendorID uuid.UUID) (*Vendor, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "vendor directory client not configured")
	}
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor ID is required")
	}

	endpoint := fmt.Sprintf("%s/vendors/%s", c.baseURL, url.PathEscape(vendorID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build vendor lookup request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute vendor lookup request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "vendor lookup request failed")
	}

	var apiResp struct {
		ID          uuid.UUID `json:"id"`
		OwnerUserID uuid.UUID `json:"owner_user_id"`
		OwnerEmail  string    `json:"owner_email"`
		Name        string    `json:"name"`
		Active      bool      `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode vendor lookup response")
	}

	return &Vendor{
		ID:          apiResp.ID,
		OwnerUserID: apiResp.OwnerUserID,
		OwnerEmail:  apiResp.OwnerEmail,
		Name:        apiResp.Name,
		Active:      apiResp.Active,
	}, nil
}
