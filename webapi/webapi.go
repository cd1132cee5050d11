// Package webapi assembles the HTTP API. Each domain lives in its own
// sub-package with a Routes function:
//   - ledger: pools, balances, the transaction log and proceeds
//   - transfer: two-phase operator transfers
//   - payout: affiliate payout batches
//   - comp: comp awards and scan milestones
//   - sunset: sunset progress and volume
//   - affiliate: affiliates and members
//   - bank: linked bank accounts
package webapi

import (
	"errors"
	"strings"

	_ "github.com/amirasaad/treasury/cmd/server/swagger"
	"github.com/amirasaad/treasury/pkg/app"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/middleware"
	affiliateweb "github.com/amirasaad/treasury/webapi/affiliate"
	bankweb "github.com/amirasaad/treasury/webapi/bank"
	"github.com/amirasaad/treasury/webapi/common"
	compweb "github.com/amirasaad/treasury/webapi/comp"
	ledgerweb "github.com/amirasaad/treasury/webapi/ledger"
	payoutweb "github.com/amirasaad/treasury/webapi/payout"
	sunsetweb "github.com/amirasaad/treasury/webapi/sunset"
	transferweb "github.com/amirasaad/treasury/webapi/transfer"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupApp Initialize Fiber with custom configuration
func SetupApp(a *app.App) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return common.ProblemDetailsJSON(c, fe.Message, err, fe.Code)
			}
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})
	fiberApp.Get("/swagger/*", swagger.New(swagger.Config{
		TryItOutEnabled:      true,
		PersistAuthorization: true,
	}))

	if rec, ok := a.Deps.Metrics.(middleware.HTTPRecorder); ok {
		fiberApp.Use(middleware.Metrics(rec))
	}

	rateLimit := a.Config.RateLimit
	if rateLimit == nil {
		rateLimit = &config.RateLimit{MaxRequests: 100}
	}
	// Configure rate limiting middleware
	// Uses X-Forwarded-For header when behind a proxy
	fiberApp.Use(limiter.New(limiter.Config{
		Max:        rateLimit.MaxRequests,
		Expiration: rateLimit.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
				if commaIndex := strings.Index(forwardedFor, ","); commaIndex != -1 {
					return strings.TrimSpace(forwardedFor[:commaIndex])
				}
				return strings.TrimSpace(forwardedFor)
			}
			if realIP := c.Get("X-Real-IP"); realIP != "" {
				return realIP
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(
				c,
				"Too Many Requests",
				errors.New("rate limit exceeded"),
				fiber.StatusTooManyRequests,
			)
		},
	}))
	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())

	// Health check endpoint
	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Treasury API is running")
	})
	fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	protected := middleware.Protected(a.Config.Auth)

	ledgerweb.Routes(fiberApp, a.Ledger, a.Transfers, protected)
	transferweb.Routes(fiberApp, a.Transfers, protected)
	payoutweb.Routes(fiberApp, a.Payouts, protected)
	compweb.Routes(fiberApp, a.Comps, protected)
	sunsetweb.Routes(fiberApp, a.Sunset, protected)
	affiliateweb.Routes(fiberApp, a.Affiliates, protected)
	if a.Bank != nil {
		bankweb.Routes(fiberApp, a.Bank, protected)
	}
	return fiberApp
}
