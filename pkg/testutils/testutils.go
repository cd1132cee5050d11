// Package testutils wires real repositories on a throwaway SQLite database
// for service and handler tests.
package testutils

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/amirasaad/treasury/infra"
	infrarepo "github.com/amirasaad/treasury/infra/repository"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Custody addresses of the seeded test pools.
const (
	ConsumerAddress  = "0x1111111111111111111111111111111111111111"
	AffiliateAddress = "0x2222222222222222222222222222222222222222"
	WholesaleAddress = "0x3333333333333333333333333333333333333333"
)

// SetupTestDB opens a migrated SQLite database in a temp dir that is removed
// when the test ends. A file is used rather than :memory: so every pooled
// connection sees the same schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "treasury.db")
	db, err := infra.NewDBConnection(&config.DB{Url: "sqlite://" + path}, "test")
	require.NoError(t, err)
	require.NoError(t, infra.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestUoW returns a unit of work over a fresh database.
func SetupTestUoW(t *testing.T) (*infrarepo.UoW, *gorm.DB) {
	t.Helper()
	db := SetupTestDB(t)
	return infrarepo.NewUoW(db), db
}

// DefaultPools is the 50/5/5 table with the test custody addresses.
func DefaultPools() []ledger.Pool {
	return []ledger.Pool{
		{Name: ledger.Consumer, CustodyAddress: ConsumerAddress, AllocationBps: 5000},
		{Name: ledger.Affiliate, CustodyAddress: AffiliateAddress, AllocationBps: 500},
		{Name: ledger.Wholesale, CustodyAddress: WholesaleAddress, AllocationBps: 500},
	}
}

// SeedPools upserts the default pools directly through the repository.
func SeedPools(t *testing.T, uow *infrarepo.UoW) {
	t.Helper()
	repo, err := uow.PoolRepository()
	require.NoError(t, err)
	for _, p := range DefaultPools() {
		require.NoError(t, repo.Upsert(context.Background(), p))
	}
}

// DiscardLogger returns a logger that writes nowhere.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MakeRequestWithApp is a helper for making HTTP requests against a Fiber app.
func MakeRequestWithApp(app *fiber.App, method, path, body string, headers map[string]string) *http.Response {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		panic(err)
	}
	return resp
}
