package handler

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerServesHealth(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "api.db"))
	t.Setenv("DATABASE_AUTO_MIGRATE", "true")
	t.Setenv("EVENT_BUS_DRIVER", "memory")

	rec := httptest.NewRecorder()
	Handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Treasury API")
}
