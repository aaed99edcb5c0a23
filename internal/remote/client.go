// Package remote provides read-only access to the authoritative item
// definitions, published versions and entitlement records. It performs no
// retries and no caching; both policies live with its callers.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/praxishq/coursesync/internal/model"
)

// ItemContent is the full remote payload for one item, the expensive fetch.
type ItemContent struct {
	ItemID  string `json:"itemId"`
	Version string `json:"version"`

	// Payload is empty when MinimalRecord is set.
	Payload []byte `json:"payload,omitempty"`

	ExpiresAt time.Time `json:"expiresAt"`

	// Cadenced marks items whose content rotates by cadence period.
	Cadenced bool `json:"cadenced,omitempty"`

	// MinimalRecord marks content delivered out of band; the local cache
	// stores identity and expiry metadata only.
	MinimalRecord bool `json:"minimalRecord,omitempty"`

	Compressed bool `json:"compressed,omitempty"`
}

// Client talks to the catalog backend over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds an oracle client. The http.Client is shared with the
// engine so the auth transport wrapper applies here too.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: baseURL}
}

// PublishedVersion returns the currently published version token for itemID.
func (c *Client) PublishedVersion(ctx context.Context, itemID string) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "published version",
		fmt.Sprintf("%s/api/items/%s/version", c.baseURL, url.PathEscape(itemID)), &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Entitlement returns the ownership record for (ownerID, itemID), or
// (nil, nil) when the owner has no record for the item.
func (c *Client) Entitlement(ctx context.Context, ownerID, itemID string) (*model.MembershipEntry, error) {
	var out model.MembershipEntry
	err := c.getJSON(ctx, "entitlement",
		fmt.Sprintf("%s/api/owners/%s/entitlements/%s", c.baseURL, url.PathEscape(ownerID), url.PathEscape(itemID)), &out)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// Entitlements lists every ownership record for ownerID.
func (c *Client) Entitlements(ctx context.Context, ownerID string) ([]model.MembershipEntry, error) {
	var out struct {
		Entitlements []model.MembershipEntry `json:"entitlements"`
	}
	if err := c.getJSON(ctx, "entitlements",
		fmt.Sprintf("%s/api/owners/%s/entitlements", c.baseURL, url.PathEscape(ownerID)), &out); err != nil {
		return nil, err
	}
	return out.Entitlements, nil
}

// Content fetches the full payload for (itemID, ownerID).
func (c *Client) Content(ctx context.Context, itemID, ownerID string) (*ItemContent, error) {
	var out ItemContent
	if err := c.getJSON(ctx, "content",
		fmt.Sprintf("%s/api/owners/%s/items/%s/content", c.baseURL, url.PathEscape(ownerID), url.PathEscape(itemID)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, op, rawURL string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return netErr(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusErr(op, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
