package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClaimRequest is one token payout.
type ClaimRequest struct {
	Wallet    Address
	Amount    float64
	Signature string
}

// Contract submits a claim transaction and reports whether it was confirmed.
type Contract interface {
	Claim(ctx context.Context, req ClaimRequest) (bool, error)
}

// RelayContract submits claims to an HTTP transaction relay.
type RelayContract struct {
	url    string
	token  string
	client *http.Client
}

var _ Contract = (*RelayContract)(nil)

// NewRelayContract constructs a relay client. token is sent as a bearer credential when set.
func NewRelayContract(url, token string, timeout time.Duration) *RelayContract {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelayContract{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

type relayRequest struct {
	Wallet    string  `json:"wallet"`
	Chain     Chain   `json:"chain"`
	Amount    float64 `json:"amount"`
	Signature string  `json:"signature"`
}

type relayResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Error   string `json:"error"`
}

// Claim posts the request and returns the relay's confirmation flag.
// A non-2xx status is an error.
func (c *RelayContract) Claim(ctx context.Context, req ClaimRequest) (bool, error) {
	body, err := json.Marshal(relayRequest{
		Wallet:    req.Wallet.Value,
		Chain:     req.Wallet.Chain,
		Amount:    req.Amount,
		Signature: req.Signature,
	})
	if err != nil {
		return false, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("relay: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("relay: read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return false, fmt.Errorf("relay: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	var out relayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, fmt.Errorf("relay: decode: %w", err)
	}
	return out.Success, nil
}
