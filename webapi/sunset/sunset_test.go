package sunset_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	infracache "github.com/amirasaad/treasury/infra/cache"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/middleware"
	sunsetsvc "github.com/amirasaad/treasury/pkg/service/sunset"
	"github.com/amirasaad/treasury/pkg/testutils"
	sunsetapi "github.com/amirasaad/treasury/webapi/sunset"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operator = map[string]string{"X-Operator-ID": "erin"}

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	uow, _ := testutils.SetupTestUoW(t)
	clock := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	monitor := sunsetsvc.New(uow, infracache.NewMemoryProgressCache(), nil, 1000, time.Hour,
		testutils.DiscardLogger(), nil).WithClock(func() time.Time { return clock })
	app := fiber.New()
	sunsetapi.Routes(app, monitor, middleware.Protected(&config.Auth{}))
	return app
}

func progress(t *testing.T, resp *http.Response) sunsetapi.ProgressDTO {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	var body struct {
		Data sunsetapi.ProgressDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

func TestVolumeThenCheck(t *testing.T) {
	app := setupApp(t)
	for _, month := range []string{"2026-01-10", "2026-02-10", "2026-03-10"} {
		resp := testutils.MakeRequestWithApp(app, "POST", "/sunset/volume",
			`{"tins":1000,"recorded_at":"`+month+`T00:00:00Z"}`, operator)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp := testutils.MakeRequestWithApp(app, "POST", "/sunset/check", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	p := progress(t, resp)
	assert.Equal(t, "100.00", p.Percentage)
	assert.Equal(t, "1000.00", p.Rolling3moAvg)
	assert.True(t, p.IsTriggered)
	assert.NotNil(t, p.TriggeredAt)

	resp = testutils.MakeRequestWithApp(app, "GET", "/sunset", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, progress(t, resp).IsTriggered)
}

func TestRecordVolumeValidation(t *testing.T) {
	app := setupApp(t)
	resp := testutils.MakeRequestWithApp(app, "POST", "/sunset/volume", `{"tins":0}`, operator)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = testutils.MakeRequestWithApp(app, "POST", "/sunset/volume", `{"tins":5,"affiliate_id":"x"}`, operator)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestProgressBeforeAnyVolume(t *testing.T) {
	app := setupApp(t)
	resp := testutils.MakeRequestWithApp(app, "GET", "/sunset", "", operator)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	p := progress(t, resp)
	assert.Equal(t, "0.00", p.Percentage)
	assert.False(t, p.IsTriggered)
}
