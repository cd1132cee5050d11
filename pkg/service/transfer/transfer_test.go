package transfer_test

import (
	"context"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/transfer"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/provider"
	"github.com/amirasaad/treasury/pkg/repository"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const dest = "0x4444444444444444444444444444444444444444"

type TransferTestSuite struct {
	suite.Suite
	ctx   context.Context
	uow   repository.UnitOfWork
	store *ledgersvc.Store
	rail  *infraprovider.MockRail
	bus   *infraeventbus.MemoryEventBus
	svc   *transfersvc.Service
}

func (s *TransferTestSuite) SetupTest() {
	uow, _ := testutils.SetupTestUoW(s.T())
	s.uow = uow
	s.ctx = context.Background()
	logger := testutils.DiscardLogger()
	s.store = ledgersvc.New(uow, nil, logger, nil)
	s.Require().NoError(s.store.SyncPools(s.ctx, testutils.DefaultPools()))
	s.rail = infraprovider.NewMockRail()
	s.bus = infraeventbus.NewWithMemory(logger)
	s.svc = transfersvc.New(uow, s.store, s.rail, s.bus, transfersvc.Config{
		RailTimeout:        time.Second,
		ConfirmationPhrase: "CONFIRM",
	}, logger, nil)
}

func (s *TransferTestSuite) usdt(v string) money.Amount {
	m, err := money.Parse(v, money.USDTCurrency)
	s.Require().NoError(err)
	return m.Amount()
}

func (s *TransferTestSuite) fund(pool ledger.PoolName, v string) {
	tx, err := ledger.NewTransaction().WithPool(pool).Inbound(s.usdt(v)).WithReason("funding").Build()
	s.Require().NoError(err)
	_, err = s.store.RecordTransaction(s.ctx, tx)
	s.Require().NoError(err)
}

func (s *TransferTestSuite) outbound(pool ledger.PoolName) []ledger.Transaction {
	txs, _, err := s.store.ListTransactions(s.ctx, ledger.TransactionFilter{Pool: pool, Direction: ledger.Out})
	s.Require().NoError(err)
	return txs
}

func (s *TransferTestSuite) initiate(pool ledger.PoolName, amount string) *transfer.PendingTransfer {
	t, err := s.svc.Initiate(s.ctx, transfersvc.InitiateRequest{
		Pool: pool, To: dest, Amount: s.usdt(amount), Reason: "vendor", Operator: "ops-1",
	})
	s.Require().NoError(err)
	return t
}

func (s *TransferTestSuite) TestInitiateChecksAddressBeforeBalance() {
	_, err := s.svc.Initiate(s.ctx, transfersvc.InitiateRequest{
		Pool: ledger.Consumer, To: "0x123", Amount: s.usdt("1000000.00"), Operator: "ops-1",
	})
	s.ErrorIs(err, transfer.ErrInvalidAddress)
}

func (s *TransferTestSuite) TestInitiateRejectsOverdraw() {
	s.fund(ledger.Consumer, "12745.08")
	_, err := s.svc.Initiate(s.ctx, transfersvc.InitiateRequest{
		Pool: ledger.Consumer, To: dest, Amount: s.usdt("20000.00"), Operator: "ops-1",
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientBalance)
	s.Contains(err.Error(), "12745.08")
}

func (s *TransferTestSuite) TestInitiateRequiresOperator() {
	s.fund(ledger.Consumer, "10.00")
	_, err := s.svc.Initiate(s.ctx, transfersvc.InitiateRequest{
		Pool: ledger.Consumer, To: dest, Amount: s.usdt("1.00"),
	})
	s.ErrorIs(err, domain.ErrUnauthorized)
}

func (s *TransferTestSuite) TestTwoPhaseConfirmSettles() {
	s.fund(ledger.Consumer, "1000.00")
	t := s.initiate(ledger.Consumer, "250.00")
	s.Equal(transfer.StatusValidated, t.Status)

	payload, err := s.svc.Review(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(testutils.ConsumerAddress, payload.FromAddress)
	s.Equal("CONFIRM", payload.ConfirmationPhrase)
	s.Equal("250.00", payload.Amount.StringFixed())
	s.Equal(0, s.rail.Calls(), "review has no external effect")

	_, err = s.svc.Confirm(s.ctx, t.ID, "confirm", "ops-2")
	s.ErrorIs(err, transfer.ErrAcknowledgementMismatch)
	got, err := s.svc.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(transfer.StatusReviewed, got.Status)

	done, err := s.svc.Confirm(s.ctx, t.ID, "CONFIRM", "ops-2")
	s.Require().NoError(err)
	s.Equal(transfer.StatusSettled, done.Status)
	s.Equal("ops-2", done.ConfirmedBy)
	s.NotEmpty(done.SettlementRef)

	out := s.outbound(ledger.Consumer)
	s.Require().Len(out, 1)
	s.Equal(t.ID, out[0].ID)
	s.Equal(done.SettlementRef, *out[0].SettlementRef)

	bal, err := s.store.GetBalance(s.ctx, ledger.Consumer, nil)
	s.Require().NoError(err)
	s.Equal("750.00", bal.USDT.StringFixed())

	_, err = s.svc.Confirm(s.ctx, t.ID, "CONFIRM", "ops-2")
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.Equal(1, s.rail.Calls())

	published := s.bus.Published()
	s.Require().NotEmpty(published)
	s.IsType(events.TransferSettled{}, published[len(published)-1])
}

func (s *TransferTestSuite) TestConfirmRequiresReview() {
	s.fund(ledger.Consumer, "10.00")
	t := s.initiate(ledger.Consumer, "1.00")
	_, err := s.svc.Confirm(s.ctx, t.ID, "CONFIRM", "ops-1")
	s.ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *TransferTestSuite) TestRailFailureLeavesLedgerUnchanged() {
	s.fund(ledger.Wholesale, "500.00")
	t := s.initiate(ledger.Wholesale, "100.00")
	_, err := s.svc.Review(s.ctx, t.ID)
	s.Require().NoError(err)

	s.rail.FailNext(1, provider.ErrRailRejected)
	failed, err := s.svc.Confirm(s.ctx, t.ID, "CONFIRM", "ops-1")
	s.Require().ErrorIs(err, domain.ErrSettlementFailed)
	s.Equal(transfer.StatusFailed, failed.Status)
	s.NotEmpty(failed.FailureReason)

	s.Empty(s.outbound(ledger.Wholesale))
	avail, err := s.store.Available(s.ctx, ledger.Wholesale, money.USDT)
	s.Require().NoError(err)
	s.Equal("500.00", avail.StringFixed())
	held, err := s.store.ListHeld(s.ctx)
	s.Require().NoError(err)
	s.Empty(held)
}

func (s *TransferTestSuite) TestRailTimeoutIsSettlementFailure() {
	s.fund(ledger.Consumer, "10.00")
	s.rail.Delay = 2 * time.Second
	_, err := s.svc.Send(s.ctx, transfersvc.SendRequest{
		ID: uuid.New(), Pool: ledger.Consumer, To: dest, Amount: s.usdt("1.00"),
	})
	s.ErrorIs(err, domain.ErrSettlementFailed)
	s.Empty(s.outbound(ledger.Consumer))
}

func (s *TransferTestSuite) TestAbandon() {
	s.fund(ledger.Consumer, "10.00")
	t := s.initiate(ledger.Consumer, "1.00")
	_, err := s.svc.Review(s.ctx, t.ID)
	s.Require().NoError(err)

	abandoned, err := s.svc.Abandon(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(transfer.StatusAbandoned, abandoned.Status)

	_, err = s.svc.Abandon(s.ctx, t.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)
	_, err = s.svc.Confirm(s.ctx, t.ID, "CONFIRM", "ops-1")
	s.ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *TransferTestSuite) TestSendIsIdempotentByID() {
	s.fund(ledger.Affiliate, "100.00")
	req := transfersvc.SendRequest{ID: uuid.New(), Pool: ledger.Affiliate, To: dest, Amount: s.usdt("40.00")}

	first, err := s.svc.Send(s.ctx, req)
	s.Require().NoError(err)
	second, err := s.svc.Send(s.ctx, req)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal(1, s.rail.Calls())
	s.Len(s.outbound(ledger.Affiliate), 1)
}

func (s *TransferTestSuite) TestListFiltersByStatus() {
	s.fund(ledger.Consumer, "10.00")
	s.initiate(ledger.Consumer, "1.00")
	t := s.initiate(ledger.Consumer, "2.00")
	_, err := s.svc.Abandon(s.ctx, t.ID)
	s.Require().NoError(err)

	st := transfer.StatusAbandoned
	list, err := s.svc.List(s.ctx, &st)
	s.Require().NoError(err)
	s.Len(list, 1)
	all, err := s.svc.List(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func TestTransferTestSuite(t *testing.T) {
	suite.Run(t, new(TransferTestSuite))
}

// releasingRail settles on the rail but drops the reservation underneath the
// caller, so the ledger commit that follows fails.
type releasingRail struct {
	mock.Mock
	store *ledgersvc.Store
}

func (r *releasingRail) Send(ctx context.Context, p provider.SendParams) (provider.SendResult, error) {
	args := r.Called(ctx, p)
	_ = r.store.Release(ctx, uuid.MustParse(p.IdempotencyKey))
	return args.Get(0).(provider.SendResult), args.Error(1)
}

func (s *TransferTestSuite) TestCommitFailureLeavesTransferDispatched() {
	s.fund(ledger.Consumer, "100.00")
	t := s.initiate(ledger.Consumer, "10.00")
	_, err := s.svc.Review(s.ctx, t.ID)
	s.Require().NoError(err)

	rail := &releasingRail{store: s.store}
	rail.On("Send", mock.Anything, mock.MatchedBy(func(p provider.SendParams) bool {
		return p.IdempotencyKey == t.ID.String() && p.From == testutils.ConsumerAddress
	})).Return(provider.SendResult{Ref: "0xabc"}, nil).Once()
	svc := transfersvc.New(s.uow, s.store, rail, nil, transfersvc.Config{}, testutils.DiscardLogger(), nil)

	got, err := svc.Confirm(s.ctx, t.ID, "CONFIRM", "ops-1")
	s.Require().ErrorIs(err, transfersvc.ErrReconcileRequired)
	s.NotErrorIs(err, domain.ErrSettlementFailed)
	s.Contains(err.Error(), "0xabc")
	s.Equal(transfer.StatusDispatched, got.Status)
	s.Empty(s.outbound(ledger.Consumer))
	rail.AssertExpectations(s.T())

	// the operator re-holds the amount and reconciles with the rail reference
	_, err = s.store.Reserve(s.ctx, ledgersvc.ReserveRequest{
		ID: t.ID, Pool: ledger.Consumer, Amount: t.Amount, Counterparty: t.ToAddress,
	})
	s.Require().NoError(err)
	tx, err := svc.Reconcile(s.ctx, t.ID, "0xabc")
	s.Require().NoError(err)
	s.Equal("0xabc", *tx.SettlementRef)
	s.Len(s.outbound(ledger.Consumer), 1)

	settled, err := svc.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(transfer.StatusSettled, settled.Status)
	s.Equal("0xabc", settled.SettlementRef)
}
