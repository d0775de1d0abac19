package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/courseflow/video-server-go/pkg/apperrors"
)

// ErrNotConfigured is returned when API credentials are missing.
var ErrNotConfigured = errors.New("mux credentials are not configured")

// Client handles Mux Video API operations.
type Client struct {
	tokenID     string
	tokenSecret string
	baseURL     string
	httpClient  *http.Client
}

// NewClient creates a new Mux Video client.
func NewClient(tokenID, tokenSecret, baseURL string) *Client {
	return &Client{
		tokenID:     tokenID,
		tokenSecret: tokenSecret,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsConfigured reports whether API credentials are present.
func (c *Client) IsConfigured() bool {
	return c.tokenID != "" && c.tokenSecret != ""
}

// PlaybackID identifies one playback policy entry on an asset.
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy"`
}

// AssetErrors describes why an asset failed to process.
type AssetErrors struct {
	Type     string   `json:"type"`
	Messages []string `json:"messages"`
}

// Asset represents a provider-side video object.
type Asset struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"` // preparing, ready, errored
	Passthrough string       `json:"passthrough,omitempty"`
	Duration    float64      `json:"duration,omitempty"`
	UploadID    string       `json:"upload_id,omitempty"`
	PlaybackIDs []PlaybackID `json:"playback_ids,omitempty"`
	Errors      *AssetErrors `json:"errors,omitempty"`
}

// FirstPlaybackID returns the first playback identifier, if any.
func (a *Asset) FirstPlaybackID() string {
	if a == nil || len(a.PlaybackIDs) == 0 {
		return ""
	}
	return a.PlaybackIDs[0].ID
}

// ErrorReason flattens asset error messages into a single string.
func (a *Asset) ErrorReason() string {
	if a == nil || a.Errors == nil {
		return ""
	}
	if len(a.Errors.Messages) > 0 {
		return strings.Join(a.Errors.Messages, "; ")
	}
	return a.Errors.Type
}

// DirectUpload represents a one-time direct upload session.
type DirectUpload struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Status   string `json:"status"` // waiting, asset_created, errored, cancelled, timed_out
	AssetID  string `json:"asset_id,omitempty"`
	Timeout  int    `json:"timeout,omitempty"`
	TestMode bool   `json:"test,omitempty"`
}

type createUploadRequest struct {
	CorsOrigin       string           `json:"cors_origin,omitempty"`
	NewAssetSettings newAssetSettings `json:"new_asset_settings"`
}

type newAssetSettings struct {
	PlaybackPolicy []string `json:"playback_policy"`
	Passthrough    string   `json:"passthrough,omitempty"`
}

type uploadEnvelope struct {
	Data DirectUpload `json:"data"`
}

type assetEnvelope struct {
	Data Asset `json:"data"`
}

// CreateDirectUpload requests a single-use upload destination. The passthrough
// value is echoed back on asset webhooks so later events can be correlated.
func (c *Client) CreateDirectUpload(ctx context.Context, passthrough, corsOrigin string) (*DirectUpload, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(createUploadRequest{
		CorsOrigin: corsOrigin,
		NewAssetSettings: newAssetSettings{
			PlaybackPolicy: []string{"signed"},
			Passthrough:    passthrough,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result uploadEnvelope
	if err := c.do(ctx, http.MethodPost, "/video/v1/uploads", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}

	return &result.Data, nil
}

// GetUpload retrieves the current state of an upload session.
func (c *Client) GetUpload(ctx context.Context, uploadID string) (*DirectUpload, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var result uploadEnvelope
	if err := c.do(ctx, http.MethodGet, "/video/v1/uploads/"+uploadID, nil, &result); err != nil {
		return nil, err
	}

	return &result.Data, nil
}

// GetAsset retrieves the processing state of an asset.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var result assetEnvelope
	if err := c.do(ctx, http.MethodGet, "/video/v1/assets/"+assetID, nil, &result); err != nil {
		return nil, err
	}

	return &result.Data, nil
}

// DeleteAsset deletes an asset by ID.
func (c *Client) DeleteAsset(ctx context.Context, assetID string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	return c.do(ctx, http.MethodDelete, "/video/v1/assets/"+assetID, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "courseflow-video-server/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return apperrors.New(
			"video provider request failed",
			http.StatusServiceUnavailable,
			apperrors.ErrProviderUnavailable,
			fmt.Errorf("mux API error: status=%d, body=%s", resp.StatusCode, string(bodyBytes)),
		)
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
