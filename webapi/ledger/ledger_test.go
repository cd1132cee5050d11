package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/middleware"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/pkg/testutils"
	ledgerapi "github.com/amirasaad/treasury/webapi/ledger"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operator = map[string]string{"X-Operator-ID": "ops-1"}

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	uow, _ := testutils.SetupTestUoW(t)
	logger := testutils.DiscardLogger()
	store := ledgersvc.New(uow, nil, logger, nil)
	require.NoError(t, store.SyncPools(context.Background(), testutils.DefaultPools()))
	transfers := transfersvc.New(uow, store, infraprovider.NewMockRail(), nil,
		transfersvc.Config{RailTimeout: time.Second}, logger, nil)

	app := fiber.New()
	ledgerapi.Routes(app, store, transfers, middleware.Protected(&config.Auth{}))
	return app
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

func TestListPools(t *testing.T) {
	app := setupApp(t)
	resp := testutils.MakeRequestWithApp(app, "GET", "/pools", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	pools := decode[[]ledgerapi.PoolDTO](t, resp)
	assert.Len(t, pools, 3)
}

func TestRequiresOperator(t *testing.T) {
	app := setupApp(t)
	resp := testutils.MakeRequestWithApp(app, "GET", "/pools", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestReceiveProceedsAllocates(t *testing.T) {
	app := setupApp(t)
	resp := testutils.MakeRequestWithApp(app, "POST", "/ledger/proceeds",
		`{"ref":"sale-1","gross":"1000.00"}`, operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode[ledgerapi.ProceedsDTO](t, resp)
	assert.Len(t, out.Transactions, 3)

	resp = testutils.MakeRequestWithApp(app, "GET", "/pools/consumer/balance", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	bal := decode[ledgerapi.BalanceDTO](t, resp)
	assert.Equal(t, "500.00", bal.USDT)

	// same ref twice is a no-op
	resp = testutils.MakeRequestWithApp(app, "POST", "/ledger/proceeds",
		`{"ref":"sale-1","gross":"1000.00"}`, operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = testutils.MakeRequestWithApp(app, "GET", "/pools/consumer/balance", "", operator)
	assert.Equal(t, "500.00", decode[ledgerapi.BalanceDTO](t, resp).USDT)
}

func TestPreviewAllocation(t *testing.T) {
	app := setupApp(t)
	resp := testutils.MakeRequestWithApp(app, "GET", "/allocations/preview?gross=1000.00", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	split := decode[ledgerapi.AllocationDTO](t, resp)
	assert.Equal(t, "500.00", split.Credits["consumer"])
	assert.Equal(t, "50.00", split.Credits["affiliate"])

	resp = testutils.MakeRequestWithApp(app, "GET", "/ledger/transactions", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Zero(t, decode[ledgerapi.PageDTO](t, resp).Total)
}

func TestRecordTransactionValidation(t *testing.T) {
	app := setupApp(t)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown pool", `{"pool":"treasury","direction":"in","amount":"1","reason":"x"}`, fiber.StatusBadRequest},
		{"bad json", `{`, fiber.StatusBadRequest},
		{"overdraw", `{"pool":"consumer","direction":"out","amount":"10","reason":"x"}`, fiber.StatusUnprocessableEntity},
		{"inbound", `{"pool":"consumer","direction":"in","amount":"10","reason":"seed"}`, fiber.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testutils.MakeRequestWithApp(app, "POST", "/ledger/transactions", tt.body, operator)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestGetBalanceInvalidPool(t *testing.T) {
	app := setupApp(t)
	resp := testutils.MakeRequestWithApp(app, "GET", "/pools/nope/balance", "", operator)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
