package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"

	"DynamicVault/internal/model"
)

// HTTPPool drives a pool sidecar over its REST API. The sidecar owns the
// on-chain transactions; every call here is one request.
type HTTPPool struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPPool creates a pool client with optional proxy support.
func NewHTTPPool(baseURL, apiKey, proxyURL string) *HTTPPool {
	client := &http.Client{Timeout: 30 * time.Second}
	if u, err := url.Parse(proxyURL); err == nil && proxyURL != "" {
		client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	}
	return &HTTPPool{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

type liquidityRequest struct {
	Amount uint64   `json:"amount"`
	Bins   [2]int32 `json:"bins"`
}

// removeAllRequest withdraws the whole position held in Bins.
type removeAllRequest struct {
	Bins [2]int32 `json:"bins"`
	All  bool     `json:"all"`
}

type harvestRequest struct {
	FeeAccount string `json:"fee_account"`
}

func (p *HTTPPool) AddLiquidity(ctx context.Context, vault solana.PublicKey, amount uint64, bins model.Bins) error {
	return p.do(ctx, http.MethodPost, vault, "add_liquidity", liquidityRequest{Amount: amount, Bins: bins}, nil)
}

func (p *HTTPPool) RemoveLiquidity(ctx context.Context, vault solana.PublicKey, bins model.Bins) error {
	return p.do(ctx, http.MethodPost, vault, "remove_liquidity", removeAllRequest{Bins: bins, All: true}, nil)
}

// RemoveLiquidityAmount removes amount from bins. A zero amount is a no-op.
func (p *HTTPPool) RemoveLiquidityAmount(ctx context.Context, vault solana.PublicKey, amount uint64, bins model.Bins) error {
	if amount == 0 {
		return nil
	}
	return p.do(ctx, http.MethodPost, vault, "remove_liquidity", liquidityRequest{Amount: amount, Bins: bins}, nil)
}

func (p *HTTPPool) PositionLiquidity(ctx context.Context, vault solana.PublicKey) (uint64, error) {
	var result struct {
		Liquidity uint64 `json:"liquidity"`
	}
	if err := p.do(ctx, http.MethodGet, vault, "liquidity", nil, &result); err != nil {
		return 0, err
	}
	return result.Liquidity, nil
}

func (p *HTTPPool) PendingFees(ctx context.Context, vault solana.PublicKey) (uint64, error) {
	var result struct {
		Pending uint64 `json:"pending"`
	}
	if err := p.do(ctx, http.MethodGet, vault, "fees", nil, &result); err != nil {
		return 0, err
	}
	return result.Pending, nil
}

func (p *HTTPPool) HarvestFee(ctx context.Context, vault solana.PublicKey, feeAccount solana.PublicKey) (uint64, error) {
	var result struct {
		FeeAmount uint64 `json:"fee_amount"`
	}
	if err := p.do(ctx, http.MethodPost, vault, "harvest_fee", harvestRequest{FeeAccount: feeAccount.String()}, &result); err != nil {
		return 0, err
	}
	return result.FeeAmount, nil
}

func (p *HTTPPool) do(ctx context.Context, method string, vault solana.PublicKey, action string, in, out interface{}) error {
	endpoint := fmt.Sprintf("%s/api/v1/positions/%s/%s", p.BaseURL, vault, action)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", action, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d, body: %s", action, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", action, err)
	}
	return nil
}
