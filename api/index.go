// Package handler is the serverless entry point. The treasury app is built
// once per instance and reused across invocations.
package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/amirasaad/treasury/infra/initializer"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/webapi"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

var (
	once    sync.Once
	served  http.HandlerFunc
	initErr error
)

// Handler is the main entry point of the application.
// Think of it like the main() method
func Handler(w http.ResponseWriter, r *http.Request) {
	// This is needed to set the proper request path in `*fiber.Ctx`
	r.RequestURI = r.URL.String()

	once.Do(func() { served, initErr = build() })
	if initErr != nil {
		http.Error(w, "treasury unavailable: "+initErr.Error(), http.StatusServiceUnavailable)
		return
	}
	served.ServeHTTP(w, r)
}

// building the fiber application
func build() (http.HandlerFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(deps, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.SyncPools(context.Background()); err != nil {
		return nil, err
	}
	return adaptor.FiberApp(webapi.SetupApp(a)), nil
}
