package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRegistry stores registrations through the service's device API.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistry creates a registry client for baseURL.
func NewHTTPRegistry(baseURL string, timeout time.Duration) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Upsert implements Registry.
func (h *HTTPRegistry) Upsert(ctx context.Context, reg Registration) error {
	return h.do(ctx, http.MethodPut, reg)
}

// Deactivate implements Registry.
func (h *HTTPRegistry) Deactivate(ctx context.Context, userID, token string) error {
	return h.do(ctx, http.MethodDelete, map[string]string{"user_id": userID, "token": token})
}

func (h *HTTPRegistry) do(ctx context.Context, method string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+"/api/devices", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s /api/devices: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s /api/devices returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
