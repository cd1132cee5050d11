package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/provider"
)

// HTTPBankSync reads linked accounts from the bank-sync provider.
//
//	GET  {url}/accounts -> {"accounts":[...]}
//	POST {url}/sync     -> {"syncId":"..","accounts":3,"at":".."}
type HTTPBankSync struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPBankSync creates a bank-sync client from config.
func NewHTTPBankSync(cfg *config.Bank, logger *slog.Logger) *HTTPBankSync {
	return &HTTPBankSync{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("provider", "bank"),
	}
}

func (b *HTTPBankSync) ListAccounts(ctx context.Context) ([]provider.BankAccount, error) {
	var out struct {
		Accounts []provider.BankAccount `json:"accounts"`
	}
	if err := b.do(ctx, http.MethodGet, "/accounts", &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

func (b *HTTPBankSync) TriggerSync(ctx context.Context) (provider.SyncResult, error) {
	var out provider.SyncResult
	if err := b.do(ctx, http.MethodPost, "/sync", &out); err != nil {
		return provider.SyncResult{}, err
	}
	b.logger.Info("bank sync triggered", "sync_id", out.SyncID, "accounts", out.Accounts)
	return out, nil
}

func (b *HTTPBankSync) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bank sync returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ provider.BankSync = (*HTTPBankSync)(nil)
