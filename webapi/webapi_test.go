package webapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	infracache "github.com/amirasaad/treasury/infra/cache"
	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	infraobs "github.com/amirasaad/treasury/infra/observability"
	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/amirasaad/treasury/webapi"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operator = map[string]string{"X-Operator-ID": "ops"}

func setupApp(t *testing.T, rateLimit *config.RateLimit) *fiber.App {
	t.Helper()
	uow, _ := testutils.SetupTestUoW(t)
	logger := testutils.DiscardLogger()
	a, err := app.New(&app.Deps{
		Uow:           uow,
		EventBus:      infraeventbus.NewWithMemory(logger),
		Rail:          infraprovider.NewMockRail(),
		BankSync:      infraprovider.NewMockBankSync(),
		ProgressCache: infracache.NewMemoryProgressCache(),
		Metrics:       infraobs.NewUnregistered(),
		Logger:        logger,
	}, &config.App{
		Auth:      &config.Auth{},
		RateLimit: rateLimit,
		Rail:      &config.Rail{Timeout: time.Second},
		Bank:      &config.Bank{Timeout: time.Second},
	})
	require.NoError(t, err)
	require.NoError(t, a.SyncPools(context.Background()))
	return webapi.SetupApp(a)
}

func data[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

func TestHealthAndMetrics(t *testing.T) {
	app := setupApp(t, nil)

	resp := testutils.MakeRequestWithApp(app, "GET", "/", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = testutils.MakeRequestWithApp(app, "GET", "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSwaggerDoc(t *testing.T) {
	app := setupApp(t, nil)
	resp := testutils.MakeRequestWithApp(app, "GET", "/swagger/doc.json", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Treasury API", doc.Info.Title)
	assert.Contains(t, doc.Paths, "/transfers/{id}/confirm")
	assert.Contains(t, doc.Paths, "/payouts/batches/aggregate")
}

func TestUnknownRouteIsProblemDetails(t *testing.T) {
	app := setupApp(t, nil)
	resp := testutils.MakeRequestWithApp(app, "GET", "/does-not-exist", "", operator)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestRateLimit(t *testing.T) {
	app := setupApp(t, &config.RateLimit{MaxRequests: 2, Window: time.Minute})
	for range 2 {
		resp := testutils.MakeRequestWithApp(app, "GET", "/", "", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp := testutils.MakeRequestWithApp(app, "GET", "/", "", nil)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestProceedsToOperatorTransfer(t *testing.T) {
	app := setupApp(t, nil)

	resp := testutils.MakeRequestWithApp(app, "POST", "/ledger/proceeds", `{"ref":"order-1","gross":"2000.00"}`, operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = testutils.MakeRequestWithApp(app, "POST", "/transfers",
		`{"pool":"wholesale","to":"0x9999999999999999999999999999999999999999","amount":"60.00","reason":"supplier"}`,
		operator)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	id := data[map[string]any](t, resp)["id"].(string)

	resp = testutils.MakeRequestWithApp(app, "POST", "/transfers/"+id+"/review", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "100.00", data[map[string]any](t, resp)["available_balance"])

	resp = testutils.MakeRequestWithApp(app, "POST", "/transfers/"+id+"/confirm", `{"acknowledgement":"CONFIRM"}`, operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = testutils.MakeRequestWithApp(app, "GET", "/pools/wholesale/balance", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "40.00", data[map[string]any](t, resp)["usdt"])

	resp = testutils.MakeRequestWithApp(app, "GET", "/bank/accounts", "", operator)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = testutils.MakeRequestWithApp(app, "GET", "/sunset", "", operator)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
