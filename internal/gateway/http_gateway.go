package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cidermill-sync-server/internal/domain"
)

// HTTPGateway talks to the production cidery API: it fetches the
// authoritative press run and commits resolved ones back.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPGateway(baseURL, token string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchPressRun returns (nil, nil) when the press run does not exist
// server-side, which the detector treats as a deletion.
func (g *HTTPGateway) FetchPressRun(ctx context.Context, id string) (*domain.PressRun, error) {
	url := fmt.Sprintf("%s/api/v1/pressruns/%s", g.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch press run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch press run: status %d", resp.StatusCode)
	}

	var run domain.PressRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, fmt.Errorf("failed to decode press run: %w", err)
	}
	return &run, nil
}

func (g *HTTPGateway) CommitPressRun(ctx context.Context, run *domain.PressRun) error {
	url := fmt.Sprintf("%s/api/v1/pressruns/%s", g.baseURL, run.ID)

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode press run: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to commit press run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("failed to commit press run: status %d", resp.StatusCode)
	}
	return nil
}

func (g *HTTPGateway) authorize(req *http.Request) {
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}
