package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Verification is the gateway's answer for one payment reference.
type Verification struct {
	Valid  bool
	Amount int64 // minor currency units
	Status string
}

// Gateway verifies payment references with the external provider.
type Gateway interface {
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// HTTPGateway calls the provider's transaction-verify endpoint. The client
// timeout keeps a hung provider from stalling the request task.
type HTTPGateway struct {
	BaseURL   string
	SecretKey string
	client    *http.Client
}

func NewHTTPGateway(baseURL, secretKey string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	} `json:"data"`
}

func (g *HTTPGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	u := g.BaseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.SecretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("payment gateway returned invalid JSON: %w", err)
	}
	return &Verification{
		Valid:  body.Status && body.Data.Status == "success",
		Amount: body.Data.Amount,
		Status: body.Data.Status,
	}, nil
}
