package provider

import (
	"context"
	"time"
)

// BankAccount is a linked bank account as reported by the bank-sync provider.
type BankAccount struct {
	ID          string    `json:"id"`
	Institution string    `json:"institution"`
	Mask        string    `json:"mask"`
	Currency    string    `json:"currency"`
	Balance     int64     `json:"balance"`
	SyncedAt    time.Time `json:"syncedAt"`
}

// SyncResult summarizes a triggered sync.
type SyncResult struct {
	SyncID   string    `json:"syncId"`
	Accounts int       `json:"accounts"`
	At       time.Time `json:"at"`
}

// BankSync reads linked bank accounts for the ACH side of the treasury.
type BankSync interface {
	ListAccounts(ctx context.Context) ([]BankAccount, error)
	TriggerSync(ctx context.Context) (SyncResult, error)
}
