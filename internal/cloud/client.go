// Package cloud is the device's uplink: token acquisition, reading
// submission, and diagnostic reporting against the ColdSentry API, with an
// optional MQTT mirror for sites that run a local broker.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coldsentry-io/coldsentry/internal/faults"
	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// Reading is the payload submitted once per monitoring interval.
type Reading struct {
	SensorName   string  `json:"sensor_name"`
	TemperatureC float64 `json:"temperature_c"`
	Timestamp    int64   `json:"timestamp"`

	FirmwareRevision string `json:"firmware_revision,omitempty"`

	BatteryLevel    *float64 `json:"battery_level,omitempty"`
	BatteryCharging *bool    `json:"battery_charging,omitempty"`
}

// Reporter is the contract the reliability core holds against the cloud
// collaborator. A 401/403 response surfaces as *faults.AuthError and is the
// sole trigger for wiping stored credentials.
type Reporter interface {
	ObtainToken(ctx context.Context, email, password string) (string, error)
	SubmitReading(ctx context.Context, r Reading) (int, error)
	ReportErrors(ctx context.Context, errs []string) error
}

// Client talks JSON over HTTPS to the ColdSentry API.
type Client struct {
	BaseURL string
	Token   string

	http *http.Client
}

var _ Reporter = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken installs the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.Token = token
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// ObtainToken exchanges account credentials for a bearer token.
func (c *Client) ObtainToken(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	status, err := c.post(ctx, "/api/v1/tokens", tokenRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("token endpoint returned status %d", status)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}
	return resp.Token, nil
}

// SubmitReading posts one reading and returns the HTTP status code.
func (c *Client) SubmitReading(ctx context.Context, r Reading) (int, error) {
	return c.post(ctx, "/api/v1/readings", r, nil)
}

type errorReport struct {
	Errors     []string `json:"errors"`
	ReportedAt int64    `json:"reported_at"`
}

// ReportErrors forwards accumulated diagnostics upward.
func (c *Client) ReportErrors(ctx context.Context, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	status, err := c.post(ctx, "/api/v1/diagnostics", errorReport{
		Errors:     errs,
		ReportedAt: time.Now().Unix(),
	}, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("diagnostics endpoint returned status %d", status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return resp.StatusCode, &faults.AuthError{StatusCode: resp.StatusCode}
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	} else {
		// Drain so the connection can be reused.
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			log.Debug("drain response body", "path", path, "err", err)
		}
	}

	return resp.StatusCode, nil
}
