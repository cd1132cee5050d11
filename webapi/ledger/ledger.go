// Package ledger serves pool balances, the transaction log, proceeds
// allocation and reservation reconciliation.
package ledger

import (
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/money"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Routes registers the ledger endpoints.
//
// Routes:
//   - GET  /pools                      : pools with balances
//   - GET  /pools/:name/balance        : balance, optionally ?as_of=RFC3339
//   - GET  /ledger/transactions        : paged log, ?pool=&direction=&page=&page_size=
//   - POST /ledger/transactions        : record an inbound or compensating entry
//   - POST /ledger/proceeds            : allocate gross proceeds
//   - GET  /allocations/preview        : ?gross= allocation without writing
//   - POST /reservations/:id/reconcile : commit a held reservation
func Routes(
	app fiber.Router,
	store *ledgersvc.Store,
	transfers *transfersvc.Service,
	protected fiber.Handler,
) {
	app.Get("/pools", protected, ListPools(store))
	app.Get("/pools/:name/balance", protected, GetBalance(store))
	app.Get("/ledger/transactions", protected, ListTransactions(store))
	app.Post("/ledger/transactions", protected, RecordTransaction(store))
	app.Post("/ledger/proceeds", protected, ReceiveProceeds(store))
	app.Get("/allocations/preview", protected, PreviewAllocation(store))
	app.Post("/reservations/:id/reconcile", protected, Reconcile(transfers))
}

// ListPools returns every pool with its current balance.
// @Summary List pools
// @Description Returns the configured pools with current USDT and TIN balances derived from the ledger.
// @Tags ledger
// @Produce json
// @Success 200 {object} common.Response{data=[]PoolDTO} "Pools"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Router /pools [get]
// @Security BearerAuth
func ListPools(store *ledgersvc.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pools, err := store.ListPools(c.UserContext())
		if err != nil {
			log.Errorf("Failed to list pools: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to list pools", err)
		}
		out := make([]PoolDTO, 0, len(pools))
		for _, p := range pools {
			out = append(out, ToPoolDTO(p))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Pools fetched", out)
	}
}

// @Summary Pool balance
// @Description Derives the balance of a pool from its transactions, optionally as of a point in time.
// @Tags ledger
// @Produce json
// @Param name path string true "Pool name"
// @Param as_of query string false "RFC 3339 timestamp"
// @Success 200 {object} common.Response{data=BalanceDTO} "Balance"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Router /pools/{name}/balance [get]
// @Security BearerAuth
func GetBalance(store *ledgersvc.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pool, err := ledger.ParsePoolName(c.Params("name"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid pool", err)
		}
		asOf, err := common.QueryTime(c, "as_of")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid as_of", nil, "as_of must be RFC 3339", fiber.StatusBadRequest)
		}
		bal, err := store.GetBalance(c.UserContext(), pool, asOf)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get balance", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Balance fetched", ToBalanceDTO(bal))
	}
}

// @Summary List ledger transactions
// @Description Pages through ledger transactions, newest first.
// @Tags ledger
// @Produce json
// @Param pool query string false "Pool name"
// @Param direction query string false "inbound or outbound"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} common.Response{data=PageDTO} "Transactions"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Router /ledger/transactions [get]
// @Security BearerAuth
func ListTransactions(store *ledgersvc.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := ledger.TransactionFilter{
			Pool:      ledger.PoolName(c.Query("pool")),
			Direction: ledger.Direction(c.Query("direction")),
			Page:      common.QueryInt(c, "page", 1),
			PageSize:  common.QueryInt(c, "page_size", 50),
		}.Normalize()
		txs, total, err := store.ListTransactions(c.UserContext(), filter)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list transactions", err)
		}
		items := make([]TransactionDTO, 0, len(txs))
		for _, tx := range txs {
			items = append(items, ToTransactionDTO(tx))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transactions fetched", PageDTO{
			Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize,
		})
	}
}

// RecordTransaction appends an inbound or compensating transaction.
// @Summary Record transaction
// @Description Appends an immutable inbound or compensating transaction to a pool. Outbound sends go through transfers.
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body RecordTransactionRequest true "Transaction"
// @Success 201 {object} common.Response{data=TransactionDTO} "Recorded"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 422 {object} common.ProblemDetails "Insufficient balance"
// @Router /ledger/transactions [post]
// @Security BearerAuth
func RecordTransaction(store *ledgersvc.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[RecordTransactionRequest](c)
		if input == nil {
			return err
		}
		asset := money.USDT
		if input.Asset != "" {
			asset = money.Code(input.Asset)
		}
		amount, err := money.Parse(input.Amount, asset.ToCurrency())
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", err)
		}
		b := ledger.NewTransaction().
			WithPool(ledger.PoolName(input.Pool)).
			WithAsset(asset).
			WithDirection(ledger.Direction(input.Direction), amount.Amount()).
			WithCounterparty(input.CounterpartyAddress).
			WithReason(input.Reason)
		if input.ID != "" {
			b = b.WithID(uuid.MustParse(input.ID))
		}
		if input.SettlementRef != "" {
			b = b.WithSettlementRef(input.SettlementRef)
		}
		tx, err := b.Build()
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid transaction", err)
		}
		stored, err := store.RecordTransaction(c.UserContext(), tx)
		if err != nil {
			log.Errorf("Failed to record transaction: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to record transaction", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Transaction recorded", ToTransactionDTO(*stored))
	}
}

// @Summary Allocate proceeds
// @Description Splits gross sale proceeds across the pools. Replaying the same source reference returns the original allocation.
// @Tags ledger
// @Accept json
// @Produce json
// @Param request body ProceedsRequest true "Proceeds"
// @Success 201 {object} common.Response{data=ProceedsDTO} "Allocated"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 500 {object} common.ProblemDetails "Allocation misconfigured"
// @Router /ledger/proceeds [post]
// @Security BearerAuth
func ReceiveProceeds(store *ledgersvc.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[ProceedsRequest](c)
		if input == nil {
			return err
		}
		gross, err := common.ParseUSDT(input.Gross)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid gross amount", err)
		}
		res, err := store.ReceiveProceeds(c.UserContext(), input.Ref, gross)
		if err != nil {
			log.Errorf("Failed to allocate proceeds %s: %v", input.Ref, err)
			return common.ProblemDetailsJSON(c, "Failed to allocate proceeds", err)
		}
		out := ProceedsDTO{Ref: res.Ref, Allocation: ToAllocationDTO(res.Allocation)}
		for _, tx := range res.Transactions {
			out.Transactions = append(out.Transactions, ToTransactionDTO(tx))
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Proceeds allocated", out)
	}
}

// @Summary Preview an allocation
// @Tags ledger
// @Produce json
// @Param gross query string true "Gross amount"
// @Success 200 {object} common.Response{data=AllocationDTO}
// @Router /allocations/preview [get]
// @Security BearerAuth
func PreviewAllocation(store *ledgersvc.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		gross, err := common.ParseUSDT(c.Query("gross"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid gross amount", err)
		}
		split, err := store.PreviewAllocation(c.UserContext(), gross)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to preview allocation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Allocation preview", ToAllocationDTO(split))
	}
}

// Reconcile commits a held reservation using the rail reference of a send
// whose ledger commit failed.
// @Summary Reconcile reservation
// @Description Commits a held reservation with the settlement reference reported by the rail.
// @Tags ledger
// @Accept json
// @Produce json
// @Param id path string true "ID"
// @Param request body ReconcileRequest true "Rail reference"
// @Success 200 {object} common.Response{data=TransactionDTO} "Committed"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Failure 409 {object} common.ProblemDetails "Invalid state transition"
// @Router /reservations/{id}/reconcile [post]
// @Security BearerAuth
func Reconcile(transfers *transfersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := common.ParseUUIDParam(c, "id")
		if !ok {
			return err
		}
		input, err := common.BindAndValidate[ReconcileRequest](c)
		if input == nil {
			return err
		}
		tx, err := transfers.Reconcile(c.UserContext(), id, input.SettlementRef)
		if err != nil {
			log.Errorf("Failed to reconcile reservation %s: %v", id, err)
			return common.ProblemDetailsJSON(c, "Failed to reconcile reservation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Reservation reconciled", ToTransactionDTO(*tx))
	}
}
