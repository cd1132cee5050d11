// Package bank serves the linked bank accounts.
package bank

import (
	"time"

	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/provider"
	banksvc "github.com/amirasaad/treasury/pkg/service/bank"
	"github.com/amirasaad/treasury/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

//revive:disable

type AccountDTO struct {
	ID          string    `json:"id"`
	Institution string    `json:"institution"`
	Mask        string    `json:"mask"`
	Currency    string    `json:"currency"`
	Balance     string    `json:"balance"`
	SyncedAt    time.Time `json:"synced_at"`
}

type SyncDTO struct {
	SyncID   string    `json:"sync_id"`
	Accounts int       `json:"accounts"`
	At       time.Time `json:"at"`
}

func ToAccountDTO(a provider.BankAccount) AccountDTO {
	return AccountDTO{
		ID:          a.ID,
		Institution: a.Institution,
		Mask:        a.Mask,
		Currency:    a.Currency,
		Balance:     money.FormatAmount(a.Balance, money.Code(a.Currency)),
		SyncedAt:    a.SyncedAt,
	}
}

// Routes registers the bank endpoints.
//
// Routes:
//   - GET  /bank/accounts : linked accounts
//   - POST /bank/sync     : refresh balances from the provider
func Routes(app fiber.Router, svc *banksvc.Service, protected fiber.Handler) {
	app.Get("/bank/accounts", protected, ListAccounts(svc))
	app.Post("/bank/sync", protected, Sync(svc))
}

// @Summary List bank accounts
// @Tags bank
// @Produce json
// @Success 200 {object} common.Response{data=[]AccountDTO}
// @Router /bank/accounts [get]
// @Security BearerAuth
func ListAccounts(svc *banksvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accounts, err := svc.ListAccounts(c.UserContext())
		if err != nil {
			log.Errorf("Failed to list bank accounts: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to list bank accounts", err)
		}
		out := make([]AccountDTO, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, ToAccountDTO(a))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Bank accounts fetched", out)
	}
}

// @Summary Sync bank balances
// @Tags bank
// @Produce json
// @Success 200 {object} common.Response{data=SyncDTO}
// @Router /bank/sync [post]
// @Security BearerAuth
func Sync(svc *banksvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Sync(c.UserContext())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Bank sync failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Bank sync completed",
			SyncDTO{SyncID: res.SyncID, Accounts: res.Accounts, At: res.At})
	}
}
