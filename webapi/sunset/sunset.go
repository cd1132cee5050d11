// Package sunset serves sunset progress and referral volume ingestion.
package sunset

import (
	"time"

	"github.com/amirasaad/treasury/pkg/domain/sunset"
	sunsetsvc "github.com/amirasaad/treasury/pkg/service/sunset"
	"github.com/amirasaad/treasury/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

//revive:disable

type VolumeRequest struct {
	AffiliateID string     `json:"affiliate_id" validate:"omitempty,uuid"`
	Tins        int64      `json:"tins" validate:"required,gt=0"`
	RecordedAt  *time.Time `json:"recorded_at"`
}

type ProgressDTO struct {
	MonthlyVolume int64      `json:"monthly_volume"`
	Rolling3moAvg string     `json:"rolling_3mo_avg"`
	Threshold     int64      `json:"threshold"`
	Percentage    string     `json:"percentage"`
	IsTriggered   bool       `json:"is_triggered"`
	TriggeredAt   *time.Time `json:"triggered_at,omitempty"`
	ComputedAt    time.Time  `json:"computed_at"`
}

func ToProgressDTO(p *sunset.Progress) ProgressDTO {
	return ProgressDTO{
		MonthlyVolume: p.MonthlyVolume,
		Rolling3moAvg: p.Rolling3moAvg.StringFixed(2),
		Threshold:     p.Threshold,
		Percentage:    p.Percentage.StringFixed(2),
		IsTriggered:   p.IsTriggered,
		TriggeredAt:   p.TriggeredAt,
		ComputedAt:    p.ComputedAt,
	}
}

// Routes registers the sunset endpoints.
//
// Routes:
//   - GET  /sunset        : last computed progress
//   - POST /sunset/check  : recompute now
//   - POST /sunset/volume : record referral volume in TINs
func Routes(app fiber.Router, monitor *sunsetsvc.Monitor, protected fiber.Handler) {
	app.Get("/sunset", protected, Progress(monitor))
	app.Post("/sunset/check", protected, Check(monitor))
	app.Post("/sunset/volume", protected, RecordVolume(monitor))
}

// @Summary Sunset progress
// @Tags sunset
// @Produce json
// @Success 200 {object} common.Response{data=ProgressDTO}
// @Router /sunset [get]
// @Security BearerAuth
func Progress(monitor *sunsetsvc.Monitor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := monitor.Progress(c.UserContext())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get sunset progress", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Sunset progress", ToProgressDTO(p))
	}
}

// @Summary Recompute sunset progress
// @Tags sunset
// @Produce json
// @Success 200 {object} common.Response{data=ProgressDTO}
// @Router /sunset/check [post]
// @Security BearerAuth
func Check(monitor *sunsetsvc.Monitor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := monitor.CheckSunset(c.UserContext())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to check sunset", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Sunset progress computed", ToProgressDTO(p))
	}
}

// @Summary Record referral volume
// @Tags sunset
// @Produce json
// @Param request body VolumeRequest true "Volume"
// @Success 201 {object} common.Response
// @Router /sunset/volume [post]
// @Security BearerAuth
func RecordVolume(monitor *sunsetsvc.Monitor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[VolumeRequest](c)
		if input == nil {
			return err
		}
		var affiliateID *uuid.UUID
		if input.AffiliateID != "" {
			id := uuid.MustParse(input.AffiliateID)
			affiliateID = &id
		}
		var at time.Time
		if input.RecordedAt != nil {
			at = *input.RecordedAt
		}
		if _, err := monitor.RecordVolume(c.UserContext(), affiliateID, input.Tins, at); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to record volume", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Volume recorded", nil)
	}
}
