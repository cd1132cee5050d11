package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/provider"
)

// HTTPRail calls a settlement rail over JSON/HTTP.
//
//	POST {url}/transfers
//	Idempotency-Key: <key>
//	{"from":"0x..","to":"0x..","asset":"USDT","amount":"12.50"}
//
// A 2xx response carries {"ref":"0x<tx hash>"}; 4xx is a definitive
// rejection; anything else is an unknown outcome.
type HTTPRail struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

type railRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type railResponse struct {
	Ref   string `json:"ref"`
	Error string `json:"error,omitempty"`
}

// NewHTTPRail creates a rail client from config. The per-call deadline comes
// from the caller's context.
func NewHTTPRail(cfg *config.Rail, logger *slog.Logger) *HTTPRail {
	return &HTTPRail{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{},
		logger:     logger.With("provider", "rail"),
	}
}

func (r *HTTPRail) Send(ctx context.Context, p provider.SendParams) (provider.SendResult, error) {
	if !p.Asset.IsValid() {
		return provider.SendResult{}, fmt.Errorf("%w: %q", money.ErrInvalidCurrency, p.Asset)
	}
	body, err := json.Marshal(railRequest{
		From:   p.From,
		To:     p.To,
		Asset:  string(p.Asset),
		Amount: money.FormatAmount(p.Amount, p.Asset),
	})
	if err != nil {
		return provider.SendResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return provider.SendResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.IdempotencyKey)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return provider.SendResult{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out railResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out.Ref == "" {
			return provider.SendResult{}, errors.New("rail returned success without a reference")
		}
		r.logger.Info("rail transfer accepted", "key", p.IdempotencyKey, "ref", out.Ref)
		return provider.SendResult{Ref: out.Ref}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return provider.SendResult{}, fmt.Errorf("%w: status %d: %s", provider.ErrRailRejected, resp.StatusCode, msgOf(out, raw))
	default:
		return provider.SendResult{}, fmt.Errorf("rail returned status %d: %s", resp.StatusCode, msgOf(out, raw))
	}
}

func msgOf(out railResponse, raw []byte) string {
	if out.Error != "" {
		return out.Error
	}
	return string(raw)
}

var _ provider.SettlementRail = (*HTTPRail)(nil)
