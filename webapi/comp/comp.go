// Package comp serves comp awards, retries and scan-count milestones.
package comp

import (
	"github.com/amirasaad/treasury/pkg/domain/comp"
	compsvc "github.com/amirasaad/treasury/pkg/service/comp"
	"github.com/amirasaad/treasury/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Routes registers the comp endpoints.
//
// Routes:
//   - POST /comps             : award a comp
//   - GET  /comps             : list, optionally ?status=
//   - GET  /comps/:id         : fetch one
//   - POST /comps/retry       : bulk retry of failed comps
//   - POST /comps/:id/retry   : retry one failed comp
//   - POST /comps/scan-events : record a member scan count
func Routes(app fiber.Router, engine *compsvc.Engine, protected fiber.Handler) {
	g := app.Group("/comps", protected)
	g.Post("/", Award(engine))
	g.Get("/", List(engine))
	g.Post("/retry", BulkRetry(engine))
	g.Post("/scan-events", ScanEvent(engine))
	g.Get("/:id", Get(engine))
	g.Post("/:id/retry", Retry(engine))
}

// @Summary Award comp
// @Tags comps
// @Produce json
// @Param request body AwardRequest true "Comp"
// @Success 201 {object} common.Response{data=CompDTO}
// @Router /comps [post]
// @Security BearerAuth
func Award(engine *compsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[AwardRequest](c)
		if input == nil {
			return err
		}
		amount, err := common.ParseUSDT(input.Amount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", err)
		}
		awarded, err := engine.AwardComp(c.UserContext(), compsvc.AwardRequest{
			UserID:   input.UserID,
			Amount:   amount,
			Reason:   input.Reason,
			CompType: input.CompType,
		})
		if err != nil {
			log.Errorf("Failed to award comp to %s: %v", input.UserID, err)
			return common.ProblemDetailsJSON(c, "Failed to award comp", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Comp awarded", ToCompDTO(*awarded))
	}
}

// @Summary List comps
// @Tags comps
// @Produce json
// @Param status query string false "Status"
// @Success 200 {object} common.Response{data=[]CompDTO}
// @Router /comps [get]
// @Security BearerAuth
func List(engine *compsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var status *comp.Status
		if raw := c.Query("status"); raw != "" {
			s, err := comp.ParseStatus(raw)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Invalid status", err)
			}
			status = &s
		}
		comps, err := engine.ListComps(c.UserContext(), status)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list comps", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Comps fetched", toCompDTOs(comps))
	}
}

// @Summary Get comp
// @Tags comps
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=CompDTO}
// @Router /comps/{id} [get]
// @Security BearerAuth
func Get(engine *compsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		found, err := engine.GetComp(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get comp", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Comp fetched", ToCompDTO(*found))
	}
}

// @Summary Retry failed comp
// @Tags comps
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=CompDTO}
// @Router /comps/{id}/retry [post]
// @Security BearerAuth
func Retry(engine *compsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		retried, err := engine.RetryFailed(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to retry comp", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Comp retried", ToCompDTO(*retried))
	}
}

// @Summary Retry failed comps
// @Tags comps
// @Produce json
// @Param request body BulkRetryRequest true "Comp IDs"
// @Success 200 {object} common.Response{data=BulkRetryDTO}
// @Router /comps/retry [post]
// @Security BearerAuth
func BulkRetry(engine *compsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[BulkRetryRequest](c)
		if input == nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(input.IDs))
		for _, raw := range input.IDs {
			ids = append(ids, uuid.MustParse(raw))
		}
		n, err := engine.BulkRetry(c.UserContext(), ids)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Bulk retry stopped", err, BulkRetryDTO{Initiated: n})
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Retries initiated", BulkRetryDTO{Initiated: n})
	}
}

// ScanEvent records a member scan count and awards any milestone comps it crosses.
// @Summary Record scan count
// @Tags comps
// @Produce json
// @Param request body ScanEventRequest true "Scan count"
// @Success 200 {object} common.Response{data=[]CompDTO}
// @Router /comps/scan-events [post]
// @Security BearerAuth
func ScanEvent(engine *compsvc.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[ScanEventRequest](c)
		if input == nil {
			return err
		}
		awarded, err := engine.RecordScanCount(c.UserContext(), input.UserID, input.ScanCount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to record scan count", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Scan count recorded", toCompDTOs(awarded))
	}
}
