// Package affiliate serves affiliate enrollment and member records.
package affiliate

import (
	affiliatesvc "github.com/amirasaad/treasury/pkg/service/affiliate"
	"github.com/amirasaad/treasury/webapi/common"
	payoutapi "github.com/amirasaad/treasury/webapi/payout"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Routes registers the affiliate endpoints.
//
// Routes:
//   - POST /affiliates                : enroll, refused after sunset
//   - GET  /affiliates                : list
//   - GET  /affiliates/:id            : fetch one
//   - POST /affiliates/:id/deactivate : stop earning and payouts
//   - GET  /affiliates/:id/earnings   : earnings and payouts
//   - POST /members                   : create or update a member
//   - GET  /members/:user_id          : fetch a member
func Routes(app fiber.Router, svc *affiliatesvc.Service, protected fiber.Handler) {
	app.Post("/affiliates", protected, Enroll(svc))
	app.Get("/affiliates", protected, List(svc))
	app.Get("/affiliates/:id", protected, Get(svc))
	app.Post("/affiliates/:id/deactivate", protected, Deactivate(svc))
	app.Get("/affiliates/:id/earnings", protected, Earnings(svc))
	app.Post("/members", protected, UpsertMember(svc))
	app.Get("/members/:user_id", protected, GetMember(svc))
}

// @Summary Enroll affiliate
// @Tags affiliates
// @Produce json
// @Param request body EnrollRequest true "Affiliate"
// @Success 201 {object} common.Response{data=AffiliateDTO}
// @Router /affiliates [post]
// @Security BearerAuth
func Enroll(svc *affiliatesvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[EnrollRequest](c)
		if input == nil {
			return err
		}
		a, err := svc.Enroll(c.UserContext(), input.Name, input.PayoutAddress)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to enroll affiliate", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Affiliate enrolled", ToAffiliateDTO(*a))
	}
}

// @Summary List affiliates
// @Tags affiliates
// @Produce json
// @Success 200 {object} common.Response{data=[]AffiliateDTO}
// @Router /affiliates [get]
// @Security BearerAuth
func List(svc *affiliatesvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		as, err := svc.List(c.UserContext())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list affiliates", err)
		}
		out := make([]AffiliateDTO, 0, len(as))
		for _, a := range as {
			out = append(out, ToAffiliateDTO(a))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Affiliates fetched", out)
	}
}

// @Summary Get affiliate
// @Tags affiliates
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=AffiliateDTO}
// @Router /affiliates/{id} [get]
// @Security BearerAuth
func Get(svc *affiliatesvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		a, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get affiliate", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Affiliate fetched", ToAffiliateDTO(*a))
	}
}

// @Summary Deactivate affiliate
// @Tags affiliates
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response{data=AffiliateDTO}
// @Router /affiliates/{id}/deactivate [post]
// @Security BearerAuth
func Deactivate(svc *affiliatesvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		a, err := svc.Deactivate(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to deactivate affiliate", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Affiliate deactivated", ToAffiliateDTO(*a))
	}
}

// @Summary Affiliate earnings
// @Tags affiliates
// @Produce json
// @Param id path string true "ID"
// @Success 200 {object} common.Response
// @Router /affiliates/{id}/earnings [get]
// @Security BearerAuth
func Earnings(svc *affiliatesvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		ps, err := svc.Earnings(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list earnings", err)
		}
		out := make([]payoutapi.PayoutDTO, 0, len(ps))
		for _, p := range ps {
			out = append(out, payoutapi.ToPayoutDTO(p))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Earnings fetched", out)
	}
}

// @Summary Create or update member
// @Tags members
// @Produce json
// @Param request body MemberRequest true "Member"
// @Success 200 {object} common.Response{data=MemberDTO}
// @Router /members [post]
// @Security BearerAuth
func UpsertMember(svc *affiliatesvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[MemberRequest](c)
		if input == nil {
			return err
		}
		req := affiliatesvc.MemberRequest{UserID: input.UserID, WalletAddress: input.WalletAddress}
		if input.UplineAffiliateID != "" {
			id := uuid.MustParse(input.UplineAffiliateID)
			req.UplineAffiliateID = &id
		}
		m, err := svc.UpsertMember(c.UserContext(), req)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to save member", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Member saved", ToMemberDTO(*m))
	}
}

// @Summary Get member
// @Tags members
// @Produce json
// @Param user_id path string true "User ID"
// @Success 200 {object} common.Response{data=MemberDTO}
// @Router /members/{user_id} [get]
// @Security BearerAuth
func GetMember(svc *affiliatesvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, err := svc.GetMember(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get member", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Member fetched", ToMemberDTO(*m))
	}
}
