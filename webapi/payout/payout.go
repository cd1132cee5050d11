// Package payout serves affiliate payout batches.
package payout

import (
	"time"

	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/pkg/middleware"
	payoutsvc "github.com/amirasaad/treasury/pkg/service/payout"
	"github.com/amirasaad/treasury/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Routes registers the payout endpoints.
//
// Routes:
//   - GET  /payouts/batches             : list, optionally ?status=
//   - GET  /payouts/batches/:id         : batch with payouts
//   - POST /payouts/batches/aggregate   : build a pending batch
//   - POST /payouts/batches/:id/approve : approve as the calling operator
//   - POST /payouts/batches/:id/execute : pay an approved batch
//   - POST /payouts/batches/:id/retry   : failed back to pending
//   - POST /payouts/batches/:id/reject  : fail a pending batch
//   - POST /payouts/earnings            : record a pool-share earning
func Routes(app fiber.Router, engine *payoutsvc.Engine, protected fiber.Handler) {
	g := app.Group("/payouts", protected)
	g.Get("/batches", ListBatches(engine))
	g.Post("/batches/aggregate", Aggregate(engine))
	g.Get("/batches/:id", GetBatch(engine))
	g.Post("/batches/:id/approve", Approve(engine))
	g.Post("/batches/:id/execute", Execute(engine))
	g.Post("/batches/:id/retry", Retry(engine))
	g.Post("/batches/:id/reject", Reject(engine))
	g.Post("/earnings", RecordEarning(engine))
}

// @Summary List payout batches
// @Tags payouts
// @Produce json
// @Param status query string false "Status"
// @Success 200 {object} common.Response{data=[]BatchDTO}
// @Router /payouts/batches [get]
// @Security BearerAuth
func ListBatches(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var status *payout.BatchStatus
		if raw := c.Query("status"); raw != "" {
			s, err := payout.ParseBatchStatus(raw)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Invalid status", err)
			}
			status = &s
		}
		batches, err := engine.ListBatches(c.UserContext(), status)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list batches", err)
		}
		out := make([]BatchDTO, 0, len(batches))
		for i := range batches {
			out = append(out, ToBatchDTO(&batches[i]))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Batches fetched", out)
	}
}

// @Summary Get payout batch
// @Tags payouts
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=BatchDTO}
// @Router /payouts/batches/{id} [get]
// @Security BearerAuth
func GetBatch(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		b, err := engine.GetBatch(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get batch", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Batch fetched", ToBatchDTO(b))
	}
}

// @Summary Aggregate earnings
// @Description Collects unbatched earnings up to the period end into one pending batch.
// @Tags payouts
// @Accept json
// @Produce json
// @Param request body AggregateRequest false "Period end"
// @Success 201 {object} common.Response{data=BatchDTO} "Batch"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Router /payouts/batches/aggregate [post]
// @Security BearerAuth
func Aggregate(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req AggregateRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return common.ProblemDetailsJSON(c, "Invalid request body", nil, err.Error(), fiber.StatusBadRequest)
			}
		}
		var end time.Time
		if req.PeriodEnd != nil {
			end = *req.PeriodEnd
		}
		b, err := engine.Aggregate(c.UserContext(), end)
		if err != nil {
			log.Errorf("Failed to aggregate payouts: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to aggregate payouts", err)
		}
		if b == nil {
			return common.SuccessResponseJSON(c, fiber.StatusOK, "Nothing to aggregate", nil)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Batch created", ToBatchDTO(b))
	}
}

// @Summary Approve batch
// @Description Moves a pending batch to approved, recording the operator.
// @Tags payouts
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=BatchDTO} "Approved"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Failure 409 {object} common.ProblemDetails "Invalid state transition"
// @Router /payouts/batches/{id}/approve [post]
// @Security BearerAuth
func Approve(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		b, err := engine.ApproveBatch(c.UserContext(), id, middleware.Operator(c))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to approve batch", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Batch approved", ToBatchDTO(b))
	}
}

// Execute sends every payout of an approved batch.
// @Summary Execute batch
// @Description Sends each payout in the batch through the affiliate pool. Any failure marks the batch failed.
// @Tags payouts
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=BatchDTO} "Paid"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Failure 409 {object} common.ProblemDetails "Invalid state transition"
// @Failure 502 {object} common.ProblemDetails "Settlement failed"
// @Router /payouts/batches/{id}/execute [post]
// @Security BearerAuth
func Execute(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		b, err := engine.ExecuteBatch(c.UserContext(), id)
		if err != nil {
			log.Errorf("Batch %s execution failed: %v", id, err)
			if b != nil && b.Status == payout.BatchFailed {
				return common.ProblemDetailsJSON(c, "Batch failed", err, fiber.StatusBadGateway, ToBatchDTO(b))
			}
			return common.ProblemDetailsJSON(c, "Failed to execute batch", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Batch paid", ToBatchDTO(b))
	}
}

// @Summary Retry failed batch
// @Tags payouts
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=BatchDTO}
// @Router /payouts/batches/{id}/retry [post]
// @Security BearerAuth
func Retry(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		b, err := engine.RetryBatch(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to retry batch", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Batch reset to pending", ToBatchDTO(b))
	}
}

// @Summary Reject batch
// @Description Fails a pending batch with a reason.
// @Tags payouts
// @Accept json
// @Produce json
// @Param id path string true "ID"
// @Param request body RejectRequest true "Reason"
// @Success 200 {object} common.Response{data=BatchDTO} "Rejected"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Failure 409 {object} common.ProblemDetails "Invalid state transition"
// @Router /payouts/batches/{id}/reject [post]
// @Security BearerAuth
func Reject(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		input, err := common.BindAndValidate[RejectRequest](c)
		if input == nil {
			return err
		}
		b, err := engine.RejectBatch(c.UserContext(), id, input.Reason)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to reject batch", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Batch rejected", ToBatchDTO(b))
	}
}

// @Summary Record pool-share earning
// @Tags payouts
// @Produce json
// @Param request body EarningRequest true "Earning"
// @Success 201 {object} common.Response{data=PayoutDTO}
// @Router /payouts/earnings [post]
// @Security BearerAuth
func RecordEarning(engine *payoutsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[EarningRequest](c)
		if input == nil {
			return err
		}
		amount, err := common.ParseUSDT(input.Amount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", err)
		}
		p, err := engine.RecordPoolShare(c.UserContext(), uuid.MustParse(input.AffiliateID), amount, input.Ref)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to record earning", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Earning recorded", ToPayoutDTO(*p))
	}
}
