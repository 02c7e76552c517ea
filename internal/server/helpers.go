package server

import (
	"context"
	"net/http"
	"time"
)

// WaitForHealthy polls the /health endpoint until it returns 200 OK or the context is cancelled.
// baseURL should be the server's base URL (e.g., "http://localhost:8080").
func WaitForHealthy(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: time.Second}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
