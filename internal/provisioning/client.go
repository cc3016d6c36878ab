package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls the external provisioning service that registers domains and
// sets up hosting. Payment is already secured by the time this runs, so a
// failure here must surface for operator retry rather than be retried blindly.
type Client struct {
	logger *slog.Logger
	apiKey string
	apiURL string
	client *http.Client
}

func NewClient(logger *slog.Logger, apiKey, apiURL string, timeout time.Duration) *Client {
	return &Client{
		logger: logger,
		apiKey: apiKey,
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type provisionRequest struct {
	ServiceType string          `json:"service_type"`
	Details     json.RawMessage `json:"details"`
}

// Provision hands the purchased service off for setup.
func (c *Client) Provision(ctx context.Context, serviceType string, details []byte) error {
	payload, err := json.Marshal(provisionRequest{
		ServiceType: serviceType,
		Details:     details,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal provision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/provision", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create provision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.InfoContext(ctx, "Dispatching provisioning request", "service_type", serviceType)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provisioning request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("provisioning returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.InfoContext(ctx, "Provisioning completed", "service_type", serviceType)
	return nil
}
