package payout_test

import (
	"context"
	"testing"
	"time"

	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/pkg/provider"
	affiliatesvc "github.com/amirasaad/treasury/pkg/service/affiliate"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	payoutsvc "github.com/amirasaad/treasury/pkg/service/payout"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

const (
	addrA = "0x5555555555555555555555555555555555555555"
	addrB = "0x6666666666666666666666666666666666666666"
)

type PayoutTestSuite struct {
	suite.Suite
	ctx        context.Context
	clock      time.Time
	store      *ledgersvc.Store
	rail       *infraprovider.MockRail
	affiliates *affiliatesvc.Service
	engine     *payoutsvc.Engine
	a, b       *affiliate.Affiliate
}

func (s *PayoutTestSuite) SetupTest() {
	uow, _ := testutils.SetupTestUoW(s.T())
	s.ctx = context.Background()
	s.clock = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	logger := testutils.DiscardLogger()

	s.store = ledgersvc.New(uow, nil, logger, nil)
	s.Require().NoError(s.store.SyncPools(s.ctx, testutils.DefaultPools()))
	fund, err := ledger.NewTransaction().WithPool(ledger.Affiliate).Inbound(1_000_000).Build()
	s.Require().NoError(err)
	_, err = s.store.RecordTransaction(s.ctx, fund)
	s.Require().NoError(err)

	s.rail = infraprovider.NewMockRail()
	sender := transfersvc.New(uow, s.store, s.rail, nil, transfersvc.Config{RailTimeout: time.Second}, logger, nil)
	s.engine = payoutsvc.New(uow, sender, nil, logger, nil).WithClock(func() time.Time { return s.clock })
	s.affiliates = affiliatesvc.New(uow, nil, logger)

	s.a, err = s.affiliates.Enroll(s.ctx, "A", addrA)
	s.Require().NoError(err)
	s.b, err = s.affiliates.Enroll(s.ctx, "B", addrB)
	s.Require().NoError(err)
}

func (s *PayoutTestSuite) earn(aff *affiliate.Affiliate, amount int64) *payout.Payout {
	p, err := s.engine.RecordPoolShare(s.ctx, aff.ID, amount, uuid.NewString())
	s.Require().NoError(err)
	s.clock = s.clock.Add(time.Hour)
	return p
}

func (s *PayoutTestSuite) aggregateApproved() *payout.Batch {
	b, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)
	s.Require().NotNil(b)
	_, err = s.engine.ApproveBatch(s.ctx, b.ID, "finance-1")
	s.Require().NoError(err)
	return b
}

func (s *PayoutTestSuite) TestAggregateWithNothingToBatch() {
	b, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)
	s.Nil(b)
}

func (s *PayoutTestSuite) TestAggregateTotalsAndContiguousPeriods() {
	first := s.earn(s.a, 1000)
	s.earn(s.a, 2500)
	s.earn(s.b, 700)

	b1, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)
	s.Require().NotNil(b1)
	s.Equal(payout.BatchPending, b1.Status)
	s.Equal(int64(4200), b1.TotalAmount)
	s.Equal(2, b1.AffiliateCount)
	s.True(b1.PeriodStart.Equal(first.EarnedAt))

	again, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)
	s.Nil(again, "earnings are batched once")

	s.earn(s.b, 300)
	s.clock = s.clock.Add(24 * time.Hour)
	b2, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)
	s.Require().NotNil(b2)
	s.True(b2.PeriodStart.Equal(b1.PeriodEnd))
	s.Equal(int64(300), b2.TotalAmount)

	got, err := s.engine.GetBatch(s.ctx, b1.ID)
	s.Require().NoError(err)
	s.Len(got.Payouts, 3)
	s.NoError(got.CheckTotals(got.Payouts))
}

func (s *PayoutTestSuite) TestRecordPoolShareIsIdempotentByRef() {
	p1, err := s.engine.RecordPoolShare(s.ctx, s.a.ID, 500, "share-2026-02")
	s.Require().NoError(err)
	p2, err := s.engine.RecordPoolShare(s.ctx, s.a.ID, 500, "share-2026-02")
	s.Require().NoError(err)
	s.Equal(p1.ID, p2.ID)

	_, err = s.engine.RecordPoolShare(s.ctx, uuid.New(), 500, "share-x")
	s.ErrorIs(err, domain.ErrNotFound)
	_, err = s.engine.RecordPoolShare(s.ctx, s.a.ID, 0, "share-y")
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func (s *PayoutTestSuite) TestExecutePaysOnceAndRejectsDoubleExecute() {
	s.earn(s.a, 1000)
	s.earn(s.b, 2000)
	b := s.aggregateApproved()

	paid, err := s.engine.ExecuteBatch(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(payout.BatchPaid, paid.Status)
	s.NotNil(paid.ExecutedAt)
	for _, p := range paid.Payouts {
		s.Equal(payout.StatusPaid, p.Status)
		s.NotEmpty(p.SettlementRef)
	}
	s.Equal(2, s.rail.Calls())

	_, err = s.engine.ExecuteBatch(s.ctx, b.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.Equal(2, s.rail.Calls(), "no second payment")

	bal, err := s.store.GetBalance(s.ctx, ledger.Affiliate, nil)
	s.Require().NoError(err)
	s.Equal(int64(1_000_000-3000), bal.USDT.Amount())
}

func (s *PayoutTestSuite) TestExecuteRequiresApproval() {
	s.earn(s.a, 1000)
	b, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)

	_, err = s.engine.ExecuteBatch(s.ctx, b.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.Equal(0, s.rail.Calls())

	_, err = s.engine.ApproveBatch(s.ctx, b.ID, "")
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func (s *PayoutTestSuite) TestFailureKeepsSettledPayoutsPaidAndRetryPaysTheRest() {
	s.earn(s.a, 1000)
	s.earn(s.a, 1500)
	s.earn(s.b, 2000)
	b := s.aggregateApproved()

	s.rail.FailTo(addrB, provider.ErrRailRejected)
	failed, err := s.engine.ExecuteBatch(s.ctx, b.ID)
	s.Require().ErrorIs(err, domain.ErrSettlementFailed)
	s.Equal(payout.BatchFailed, failed.Status)
	s.NotEmpty(failed.FailureReason)

	got, err := s.engine.GetBatch(s.ctx, b.ID)
	s.Require().NoError(err)
	for _, p := range got.Payouts {
		if p.AffiliateID == s.b.ID {
			s.Equal(payout.StatusFailed, p.Status)
		} else {
			s.Contains([]payout.Status{payout.StatusPaid, payout.StatusFailed}, p.Status)
		}
	}

	_, err = s.engine.ExecuteBatch(s.ctx, b.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)

	s.rail.Reset()
	retried, err := s.engine.RetryBatch(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(payout.BatchPending, retried.Status)
	s.Empty(retried.ApprovedBy)

	_, err = s.engine.ApproveBatch(s.ctx, b.ID, "finance-2")
	s.Require().NoError(err)
	paid, err := s.engine.ExecuteBatch(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(payout.BatchPaid, paid.Status)

	s.Len(s.rail.Transfers(), 3, "each payout settled exactly once")
	out, total, err := s.store.ListTransactions(s.ctx, ledger.TransactionFilter{
		Pool: ledger.Affiliate, Direction: ledger.Out,
	})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Len(out, 3)
}

func (s *PayoutTestSuite) TestRetryRequiresActiveAffiliates() {
	s.earn(s.b, 2000)
	b := s.aggregateApproved()
	s.rail.FailTo(addrB, provider.ErrRailRejected)
	_, err := s.engine.ExecuteBatch(s.ctx, b.ID)
	s.Require().Error(err)

	_, err = s.affiliates.Deactivate(s.ctx, s.b.ID)
	s.Require().NoError(err)
	_, err = s.engine.RetryBatch(s.ctx, b.ID)
	s.ErrorIs(err, payout.ErrIneligible)

	got, err := s.engine.GetBatch(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(payout.BatchFailed, got.Status)
}

func (s *PayoutTestSuite) TestRetryOnlyFromFailed() {
	s.earn(s.a, 1000)
	b, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)
	_, err = s.engine.RetryBatch(s.ctx, b.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *PayoutTestSuite) TestRejectPendingOnly() {
	s.earn(s.a, 1000)
	b, err := s.engine.Aggregate(s.ctx, s.clock)
	s.Require().NoError(err)

	rejected, err := s.engine.RejectBatch(s.ctx, b.ID, "duplicate period")
	s.Require().NoError(err)
	s.Equal(payout.BatchFailed, rejected.Status)

	s.earn(s.a, 500)
	b2 := s.aggregateApproved()
	_, err = s.engine.RejectBatch(s.ctx, b2.ID, "too late")
	s.ErrorIs(err, domain.ErrInvalidTransition)

	st := payout.BatchFailed
	list, err := s.engine.ListBatches(s.ctx, &st)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func TestPayoutTestSuite(t *testing.T) {
	suite.Run(t, new(PayoutTestSuite))
}
