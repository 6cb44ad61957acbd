// Package market reads a wallet's indexed assets from the marketplace
// search API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"datatoken-market/internal/domain"
)

// Default configuration values. Fetches are single-shot: a failed fetch
// surfaces immediately and the UI keeps its prior state. WithMaxRetries
// is an explicit opt-in.
const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 0
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// Client queries the asset index HTTP API.
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries opts in to transport retries. Off by default: asset
// fetches are never retried automatically.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates an asset index client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Index response envelope. The _source wrapper mirrors the search
// backend's document format.
type userAssetsResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Assets  []assetEntry `json:"assets"`
}

type assetEntry struct {
	Source assetSource `json:"_source"`
}

type assetSource struct {
	ID  string `json:"id"`
	NFT struct {
		Address string `json:"address"`
	} `json:"nft"`
	Metadata struct {
		Name            string `json:"name"`
		Description     string `json:"description"`
		Author          string `json:"author"`
		Created         string `json:"created"`
		PreviewImageURL string `json:"previewImageUrl"`
	} `json:"metadata"`
	Datatokens []struct {
		Symbol  string `json:"symbol"`
		Address string `json:"address"`
	} `json:"datatokens"`
}

// UserAssets fetches the indexed assets owned by wallet on the given
// chain. A successful response with zero assets returns an empty slice,
// not an error.
func (c *Client) UserAssets(ctx context.Context, wallet string, chainID int64) ([]domain.AssetRecord, error) {
	endpoint := fmt.Sprintf("%s/api/user-assets/%s/%d", c.baseURL, url.PathEscape(wallet), chainID)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp userAssetsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode user assets: %w", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "request not successful"
		}
		return nil, fmt.Errorf("user assets: %s", msg)
	}

	assets := make([]domain.AssetRecord, 0, len(resp.Assets))
	for _, entry := range resp.Assets {
		src := entry.Source
		record := domain.AssetRecord{
			ID:         src.ID,
			NFTAddress: src.NFT.Address,
			Metadata: domain.AssetMetadata{
				Name:            src.Metadata.Name,
				Description:     src.Metadata.Description,
				Author:          src.Metadata.Author,
				Created:         src.Metadata.Created,
				PreviewImageURL: src.Metadata.PreviewImageURL,
			},
		}
		for _, dt := range src.Datatokens {
			record.Datatokens = append(record.Datatokens, domain.DatatokenRef{
				Symbol:  dt.Symbol,
				Address: dt.Address,
			})
		}
		assets = append(assets, record)
	}
	return assets, nil
}

// get performs a single GET. When retries are opted in, transport errors
// and 429 are retried with exponential backoff; other HTTP errors never
// are.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	if c.maxRetries > 0 {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, lastErr
}
