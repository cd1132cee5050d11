package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HTTPRecorder records one served request.
type HTTPRecorder interface {
	HTTPRequest(method, route, status string, d time.Duration)
}

// Metrics records method, matched route, status and latency for every
// request. Routes are labelled by pattern so ids do not explode cardinality.
func Metrics(rec HTTPRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < fiber.StatusBadRequest {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		if status == fiber.StatusNotFound {
			route = "unmatched"
		}
		rec.HTTPRequest(c.Method(), route, strconv.Itoa(status), time.Since(start))
		return err
	}
}
