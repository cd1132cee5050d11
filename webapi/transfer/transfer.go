// Package transfer serves the two-phase operator transfer flow.
package transfer

import (
	"errors"

	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/transfer"
	"github.com/amirasaad/treasury/pkg/middleware"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Routes registers the transfer endpoints.
//
// Routes:
//   - POST /transfers             : validate and record a transfer
//   - GET  /transfers             : list, optionally ?status=
//   - GET  /transfers/:id         : fetch one
//   - POST /transfers/:id/review  : phase 1, returns the review payload
//   - POST /transfers/:id/confirm : phase 2, typed acknowledgement then send
//   - POST /transfers/:id/abandon : drop a transfer before confirmation
func Routes(app fiber.Router, svc *transfersvc.Service, protected fiber.Handler) {
	app.Post("/transfers", protected, Initiate(svc))
	app.Get("/transfers", protected, List(svc))
	app.Get("/transfers/:id", protected, Get(svc))
	app.Post("/transfers/:id/review", protected, Review(svc))
	app.Post("/transfers/:id/confirm", protected, Confirm(svc))
	app.Post("/transfers/:id/abandon", protected, Abandon(svc))
}

// @Summary Initiate transfer
// @Description Creates an outbound transfer from a pool. Nothing moves until it is reviewed and confirmed.
// @Tags transfers
// @Accept json
// @Produce json
// @Param request body InitiateRequest true "Transfer"
// @Success 201 {object} common.Response{data=TransferDTO} "Initiated"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Router /transfers [post]
// @Security BearerAuth
func Initiate(svc *transfersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[InitiateRequest](c)
		if input == nil {
			return err
		}
		amount, err := common.ParseUSDT(input.Amount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", err)
		}
		t, err := svc.Initiate(c.UserContext(), transfersvc.InitiateRequest{
			Pool:     ledger.PoolName(input.Pool),
			To:       input.To,
			Amount:   amount,
			Reason:   input.Reason,
			Operator: middleware.Operator(c),
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to initiate transfer", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Transfer validated", ToTransferDTO(t))
	}
}

// @Summary List transfers
// @Tags transfers
// @Produce json
// @Param status query string false "Status"
// @Success 200 {object} common.Response{data=[]TransferDTO}
// @Router /transfers [get]
// @Security BearerAuth
func List(svc *transfersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var status *transfer.Status
		if s := c.Query("status"); s != "" {
			st := transfer.Status(s)
			status = &st
		}
		ts, err := svc.List(c.UserContext(), status)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list transfers", err)
		}
		out := make([]TransferDTO, 0, len(ts))
		for i := range ts {
			out = append(out, ToTransferDTO(&ts[i]))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transfers fetched", out)
	}
}

// @Summary Get transfer
// @Tags transfers
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=TransferDTO}
// @Router /transfers/{id} [get]
// @Security BearerAuth
func Get(svc *transfersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		t, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get transfer", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transfer fetched", ToTransferDTO(t))
	}
}

// Review is phase one of the two-phase send.
// @Summary Review transfer
// @Description Returns the review payload with the available balance and the acknowledgement phrase required to confirm.
// @Tags transfers
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=ReviewDTO} "Review"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Failure 409 {object} common.ProblemDetails "Invalid state transition"
// @Failure 422 {object} common.ProblemDetails "Insufficient balance"
// @Router /transfers/{id}/review [post]
// @Security BearerAuth
func Review(svc *transfersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		payload, err := svc.Review(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to review transfer", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Review the transfer and type the confirmation phrase",
			ToReviewDTO(payload))
	}
}

// Confirm is phase two: the typed acknowledgement must match before the
// rail is called.
// @Summary Confirm transfer
// @Description Checks the typed acknowledgement, sends through the settlement rail and records the outbound transaction.
// @Tags transfers
// @Accept json
// @Produce json
// @Param id path string true "ID"
// @Param request body ConfirmRequest true "Acknowledgement"
// @Success 200 {object} common.Response{data=TransferDTO} "Settled"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Failure 409 {object} common.ProblemDetails "Invalid state transition"
// @Failure 422 {object} common.ProblemDetails "Insufficient balance"
// @Failure 502 {object} common.ProblemDetails "Settlement failed"
// @Router /transfers/{id}/confirm [post]
// @Security BearerAuth
func Confirm(svc *transfersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		input, err := common.BindAndValidate[ConfirmRequest](c)
		if input == nil {
			return err
		}
		t, err := svc.Confirm(c.UserContext(), id, input.Acknowledgement, middleware.Operator(c))
		switch {
		case errors.Is(err, transfersvc.ErrReconcileRequired):
			log.Errorf("Transfer %s sent but not recorded: %v", id, err)
			return common.ProblemDetailsJSON(c, "Transfer requires reconciliation", err, fiber.StatusBadGateway)
		case t != nil && t.Status == transfer.StatusFailed:
			return common.ProblemDetailsJSON(c, "Transfer failed", err, t.FailureReason, fiber.StatusBadGateway,
				ToTransferDTO(t))
		case err != nil:
			return common.ProblemDetailsJSON(c, "Failed to confirm transfer", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transfer settled", ToTransferDTO(t))
	}
}

// @Summary Abandon transfer
// @Tags transfers
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=TransferDTO}
// @Router /transfers/{id}/abandon [post]
// @Security BearerAuth
func Abandon(svc *transfersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		t, err := svc.Abandon(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to abandon transfer", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transfer abandoned", ToTransferDTO(t))
	}
}
