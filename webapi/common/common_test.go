package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorToStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: pool consumer", domain.ErrNotFound), fiber.StatusNotFound},
		{fmt.Errorf("%w: batch paid", domain.ErrInvalidTransition), fiber.StatusConflict},
		{fmt.Errorf("%w: 12745.08 < 20000.00", domain.ErrInsufficientBalance), fiber.StatusUnprocessableEntity},
		{fmt.Errorf("%w: bad address", domain.ErrInvalidInput), fiber.StatusBadRequest},
		{fmt.Errorf("%w: rail down", domain.ErrSettlementFailed), fiber.StatusBadGateway},
		{domain.ErrUnauthorized, fiber.StatusUnauthorized},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorToStatusCode(tc.err), tc.err.Error())
	}
}

type sample struct {
	Name   string `json:"name" validate:"required"`
	Amount string `json:"amount" validate:"required,numeric"`
}

func TestBindAndValidate(t *testing.T) {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		in, err := BindAndValidate[sample](c)
		if in == nil {
			return err
		}
		return SuccessResponseJSON(c, fiber.StatusCreated, "ok", in)
	})

	do := func(body string) (int, map[string]any) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		raw, _ := io.ReadAll(resp.Body)
		var out map[string]any
		_ = json.Unmarshal(raw, &out)
		return resp.StatusCode, out
	}

	status, out := do(`{"name":"a","amount":"12.50"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "ok", out["message"])

	status, out = do(`{"name":"a"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", out["title"])

	status, _ = do(`{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestProblemDetailsJSON(t *testing.T) {
	app := fiber.New()
	app.Get("/x", func(c *fiber.Ctx) error {
		return ProblemDetailsJSON(c, "Transfer failed", fmt.Errorf("%w: need more", domain.ErrInsufficientBalance))
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	var pd ProblemDetails
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pd))
	assert.Equal(t, "/x", pd.Instance)
	assert.Contains(t, pd.Detail, "need more")
}

func TestParseUSDT(t *testing.T) {
	a, err := ParseUSDT("12745.08")
	require.NoError(t, err)
	assert.Equal(t, int64(1_274_508), int64(a))
	assert.Equal(t, "12745.08", FormatUSDT(a))

	_, err = ParseUSDT("1.001")
	assert.Error(t, err)
}
