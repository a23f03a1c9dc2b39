// Package probe answers one question quickly: is the Clauderon server
// reachable? The CLI asks before opening a WebSocket so an unreachable
// server produces a clear message instead of a dial timeout.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 2 * time.Second

// Health describes the server's health response.
type Health struct {
	Status string `json:"status"`
}

// Check calls GET /api/health on the server at baseURL. A nil error
// means the server answered 200 within the timeout.
func Check(ctx context.Context, baseURL string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().SetTimeout(timeout)

	var health Health
	res, err := client.R().
		SetContext(ctx).
		SetResult(&health).
		Get(baseURL + "/api/health")
	if err != nil {
		return fmt.Errorf("server unreachable at %s: %w", baseURL, err)
	}
	if res.IsError() {
		return fmt.Errorf("server at %s is unhealthy: %s", baseURL, res.Status())
	}
	return nil
}
