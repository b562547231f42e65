package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tg-affiliate-bot/internal/infra/metrics"
)

// Client проверяет лицензию у внешнего сервиса. Консультируется
// один раз при старте: невалидная лицензия фатальна.
type Client struct {
	http    *http.Client
	baseURL string
	key     string
	email   string
}

// NewClient создаёт клиента лицензионного сервиса.
func NewClient(baseURL, key, email string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		email:   email,
	}
}

type validateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Validate возвращает nil только для действующей лицензии.
func (c *Client) Validate(ctx context.Context) error {
	if c.key == "" || c.email == "" {
		return fmt.Errorf("license: не заданы ключ лицензии или email")
	}
	body, err := json.Marshal(map[string]string{"license_key": c.key, "email": c.email})
	if err != nil {
		return fmt.Errorf("license: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/bot/license/validate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("license: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("license-key", c.key)
	req.Header.Set("email", c.email)
	req.Header.Set("product-code", "DGAFF")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("license", "validate", c.baseURL, start, err)
	if err != nil {
		return fmt.Errorf("license: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("license: лицензия не действительна (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("license: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("license: read response: %w", err)
	}
	var parsed validateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("license: decode response: %w", err)
	}
	if !parsed.Success {
		if parsed.Error != "" {
			return fmt.Errorf("license: %s", parsed.Error)
		}
		return fmt.Errorf("license: лицензия отклонена сервисом")
	}
	return nil
}
