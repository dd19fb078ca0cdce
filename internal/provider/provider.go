// Package provider is the HTTP client for the external hosting provider.
// Uploads are content-addressed: the provider deduplicates on a SHA-1 of the
// raw bytes, so re-sending unchanged content is answered with a conflict
// status that counts as success. The whole protocol is idempotent end to end;
// callers may retry a failed publish without cleanup.
package provider

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sitecraft/sitecraft/internal/logging"
)

const (
	uploadPath     = "/v2/files"
	deploymentPath = "/v13/deployments"
)

// Config carries the provider endpoint and access credential. The token is
// supplied per publish request by the user and never persisted.
type Config struct {
	BaseURL string
	Token   string
}

// Client talks to the hosting provider. Construct one per publish attempt
// with the caller's token; there is no ambient/global client state.
type Client struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewClient creates a provider client. If httpClient is nil a default with a
// 30 second timeout is used.
func NewClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("provider: base URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("provider: access token is required")
	}

	componentLogger := logger.With(logging.Field{Key: "component", Value: "provider"})

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		cfg:    cfg,
		client: httpClient,
		logger: componentLogger,
	}, nil
}

// ContentHash returns the provider's deduplication key for raw content:
// the hex form of a SHA-1 over the bytes.
func ContentHash(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// UploadFile pushes raw bytes to the provider, declaring length and content
// hash. A conflict response means the provider already holds the content and
// is reported as success with AlreadyUploaded set.
func (c *Client) UploadFile(ctx context.Context, data []byte) (*UploadResult, error) {
	sha := ContentHash(data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+uploadPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-content-sha1", sha)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.ContentLength = int64(len(data))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return &UploadResult{SHA: sha, Size: len(data)}, nil
	case http.StatusConflict:
		// Expected outcome for content unchanged since a prior deployment.
		return &UploadResult{SHA: sha, Size: len(data), AlreadyUploaded: true}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidCredential
	default:
		c.logger.Warn("upload rejected",
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "sha", Value: sha})
		return nil, fmt.Errorf("%w: provider returned status %d", ErrUploadFailed, resp.StatusCode)
	}
}

// CreateDeployment submits a deployment request referencing every uploaded
// file by hash and returns the resulting public URL and deployment id.
func (c *Client) CreateDeployment(ctx context.Context, dreq DeploymentRequest) (*Deployment, error) {
	body := struct {
		Name            string    `json:"name"`
		Files           []FileRef `json:"files"`
		ProjectSettings struct {
			Framework *string `json:"framework"`
		} `json:"projectSettings"`
	}{
		Name:  dreq.Name,
		Files: dreq.Files,
	}
	body.ProjectSettings.Framework = dreq.Framework

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode deployment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+deploymentPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create deployment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeploymentFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredential
	case resp.StatusCode >= 300:
		// The provider's own message is safe to show when present.
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrDeploymentFailed, errBody.Error.Message)
		}
		return nil, fmt.Errorf("%w: provider returned status %d", ErrDeploymentFailed, resp.StatusCode)
	}

	var d Deployment
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDeploymentFailed, err)
	}
	if d.URL != "" && !strings.HasPrefix(d.URL, "http") {
		d.URL = "https://" + d.URL
	}

	c.logger.Info("deployment created",
		logging.Field{Key: "deployment_id", Value: d.ID},
		logging.Field{Key: "url", Value: d.URL})
	return &d, nil
}
