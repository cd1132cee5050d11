package comp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/domain/comp"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/domain/payout"
	"github.com/amirasaad/treasury/pkg/money"
	"github.com/amirasaad/treasury/pkg/repository"
	affiliatesvc "github.com/amirasaad/treasury/pkg/service/affiliate"
	compsvc "github.com/amirasaad/treasury/pkg/service/comp"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	payoutsvc "github.com/amirasaad/treasury/pkg/service/payout"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	walletAddr    = "0x7777777777777777777777777777777777777777"
	affiliateAddr = "0x8888888888888888888888888888888888888888"
)

type CompTestSuite struct {
	suite.Suite
	ctx        context.Context
	uow        repository.UnitOfWork
	store      *ledgersvc.Store
	rail       *infraprovider.MockRail
	bus        *infraeventbus.MemoryEventBus
	sender     *transfersvc.Service
	payouts    *payoutsvc.Engine
	cfg        compsvc.Config
	affiliates *affiliatesvc.Service
	engine     *compsvc.Engine
	upline     *affiliate.Affiliate
}

// flakyEarnings fails RecordEarning while failing is set.
type flakyEarnings struct {
	next    compsvc.EarningRecorder
	failing bool
}

func (f *flakyEarnings) RecordEarning(
	ctx context.Context,
	affiliateID uuid.UUID,
	amount money.Amount,
	typ payout.Type,
	sourceRef string,
) (*payout.Payout, error) {
	if f.failing {
		return nil, errors.New("payouts store unavailable")
	}
	return f.next.RecordEarning(ctx, affiliateID, amount, typ, sourceRef)
}

func (s *CompTestSuite) SetupTest() {
	uow, _ := testutils.SetupTestUoW(s.T())
	s.uow = uow
	s.ctx = context.Background()
	logger := testutils.DiscardLogger()

	s.store = ledgersvc.New(uow, nil, logger, nil)
	s.Require().NoError(s.store.SyncPools(s.ctx, testutils.DefaultPools()))
	fund, err := ledger.NewTransaction().WithPool(ledger.Consumer).Inbound(10_000_000).Build()
	s.Require().NoError(err)
	_, err = s.store.RecordTransaction(s.ctx, fund)
	s.Require().NoError(err)

	s.rail = infraprovider.NewMockRail()
	s.bus = infraeventbus.NewWithMemory(logger)
	s.sender = transfersvc.New(uow, s.store, s.rail, nil, transfersvc.Config{RailTimeout: time.Second}, logger, nil)
	s.payouts = payoutsvc.New(uow, s.sender, nil, logger, nil)

	s.cfg, err = compsvc.ConfigFromProgram(config.DefaultProgram())
	s.Require().NoError(err)
	s.engine = compsvc.New(uow, s.sender, s.payouts, s.bus, s.cfg, logger, nil)
	s.bus.Register(events.EventTypeCompSettlementRequested, s.engine.SettlementHandler())

	s.affiliates = affiliatesvc.New(uow, nil, logger)
	s.upline, err = s.affiliates.Enroll(s.ctx, "Upline", affiliateAddr)
	s.Require().NoError(err)
}

func (s *CompTestSuite) member(userID, wallet string, upline *uuid.UUID) {
	_, err := s.affiliates.UpsertMember(s.ctx, affiliatesvc.MemberRequest{
		UserID: userID, WalletAddress: wallet, UplineAffiliateID: upline,
	})
	s.Require().NoError(err)
}

func (s *CompTestSuite) usdt(v string) money.Amount {
	m, err := money.Parse(v, money.USDTCurrency)
	s.Require().NoError(err)
	return m.Amount()
}

func (s *CompTestSuite) TestCompCreditsTwentyOnePercentMatch() {
	s.member("user-1", walletAddr, &s.upline.ID)

	c, err := s.engine.AwardComp(s.ctx, compsvc.AwardRequest{
		UserID: "user-1", Amount: s.usdt("1000.00"), Reason: "vip",
	})
	s.Require().NoError(err)
	s.Equal(comp.StatusCompleted, c.Status)
	s.NotEmpty(c.SettlementRef)
	s.Equal("210.00", money.FormatAmount(c.AffiliateMatch, money.USDT))

	earnings, err := s.affiliates.Earnings(s.ctx, s.upline.ID)
	s.Require().NoError(err)
	s.Require().Len(earnings, 1)
	s.Equal(payout.TypeRewardMatch, earnings[0].Type)
	s.Equal(s.usdt("210.00"), earnings[0].Amount)
	s.Equal(c.ID.String(), earnings[0].SourceRef)

	bal, err := s.store.GetBalance(s.ctx, ledger.Consumer, nil)
	s.Require().NoError(err)
	s.Equal("99000.00", bal.USDT.StringFixed())
}

func (s *CompTestSuite) TestInactiveUplineEarnsNothing() {
	s.member("user-1", walletAddr, &s.upline.ID)
	_, err := s.affiliates.Deactivate(s.ctx, s.upline.ID)
	s.Require().NoError(err)

	c, err := s.engine.AwardComp(s.ctx, compsvc.AwardRequest{UserID: "user-1", Amount: s.usdt("50.00")})
	s.Require().NoError(err)
	s.Equal(comp.StatusCompleted, c.Status)
	s.Zero(c.AffiliateMatch)

	earnings, err := s.affiliates.Earnings(s.ctx, s.upline.ID)
	s.Require().NoError(err)
	s.Empty(earnings)
}

func (s *CompTestSuite) TestFailedCompRetriesUnderSameID() {
	c, err := s.engine.AwardComp(s.ctx, compsvc.AwardRequest{UserID: "user-2", Amount: s.usdt("25.00")})
	s.Require().NoError(err)
	s.Equal(comp.StatusFailed, c.Status)
	s.Contains(c.FailureReason, "no wallet")
	s.Equal(0, s.rail.Calls())

	s.member("user-2", walletAddr, nil)
	retried, err := s.engine.RetryFailed(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.ID, retried.ID)
	s.Equal(comp.StatusCompleted, retried.Status)
	s.Equal(2, retried.Attempts)

	_, err = s.engine.RetryFailed(s.ctx, c.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)

	all, err := s.engine.ListComps(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *CompTestSuite) TestBulkRetry() {
	a, err := s.engine.AwardComp(s.ctx, compsvc.AwardRequest{UserID: "user-3", Amount: 100})
	s.Require().NoError(err)
	b, err := s.engine.AwardComp(s.ctx, compsvc.AwardRequest{UserID: "user-3", Amount: 200})
	s.Require().NoError(err)
	s.member("user-3", walletAddr, nil)

	n, err := s.engine.BulkRetry(s.ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	s.Require().NoError(err)
	s.Equal(2, n)

	st := comp.StatusCompleted
	done, err := s.engine.ListComps(s.ctx, &st)
	s.Require().NoError(err)
	s.Len(done, 2)
}

func (s *CompTestSuite) TestMilestonesAwardOnce() {
	s.member("user-4", walletAddr, nil)

	awarded, err := s.engine.RecordScanCount(s.ctx, "user-4", 150)
	s.Require().NoError(err)
	s.Require().Len(awarded, 1)
	s.Equal("milestone_100", awarded[0].CompType)
	s.Equal(s.usdt("100.00"), awarded[0].Amount)

	awarded, err = s.engine.RecordScanCount(s.ctx, "user-4", 150)
	s.Require().NoError(err)
	s.Empty(awarded)

	awarded, err = s.engine.RecordScanCount(s.ctx, "user-4", 40)
	s.Require().NoError(err)
	s.Empty(awarded, "a lower count never re-crosses")

	awarded, err = s.engine.RecordScanCount(s.ctx, "user-4", 1200)
	s.Require().NoError(err)
	s.Require().Len(awarded, 1)
	s.Equal("milestone_1000", awarded[0].CompType)

	got, err := s.affiliates.GetMember(s.ctx, "user-4")
	s.Require().NoError(err)
	s.Equal(int64(1200), got.ScanCount)

	st := comp.StatusCompleted
	done, err := s.engine.ListComps(s.ctx, &st)
	s.Require().NoError(err)
	s.Len(done, 2)
}

func (s *CompTestSuite) TestScanCountForUnknownMemberCreatesIt() {
	awarded, err := s.engine.RecordScanCount(s.ctx, "new-user", 100)
	s.Require().NoError(err)
	s.Require().Len(awarded, 1)

	c, err := s.engine.GetComp(s.ctx, awarded[0].ID)
	s.Require().NoError(err)
	s.Equal(comp.StatusFailed, c.Status, "no wallet on file yet")
}

func (s *CompTestSuite) TestHandlerAcceptsDecodedPointerEvents() {
	s.member("user-5", walletAddr, nil)
	c, err := s.engine.AwardComp(s.ctx, compsvc.AwardRequest{UserID: "user-5", Amount: 100})
	s.Require().NoError(err)
	calls := s.rail.Calls()

	handler := s.engine.SettlementHandler()
	ev := &events.CompSettlementRequested{CompID: c.ID, Attempt: 1}
	s.NoError(handler(s.ctx, ev))
	s.NoError(handler(s.ctx, ev))
	s.Equal(calls, s.rail.Calls())

	s.Error(handler(s.ctx, events.CompFailed{CompID: c.ID}))
}

func (s *CompTestSuite) TestLostSettlementRequestIsSwept() {
	s.member("user-6", walletAddr, &s.upline.ID)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	// nothing consumes settlement requests on this bus
	engine := compsvc.New(s.uow, s.sender, s.payouts, infraeventbus.NewWithMemory(testutils.DiscardLogger()),
		s.cfg, testutils.DiscardLogger(), nil).
		WithClock(func() time.Time { return clock })

	awarded, err := engine.RecordScanCount(s.ctx, "user-6", 100)
	s.Require().NoError(err)
	s.Require().Len(awarded, 1)
	id := awarded[0].ID
	c, err := engine.GetComp(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(comp.StatusPending, c.Status)
	s.Equal(0, s.rail.Calls())

	n, err := engine.SweepPending(s.ctx, 15*time.Minute)
	s.Require().NoError(err)
	s.Zero(n, "a fresh pending comp is left to its request")

	clock = clock.Add(20 * time.Minute)
	n, err = engine.SweepPending(s.ctx, 15*time.Minute)
	s.Require().NoError(err)
	s.Equal(1, n)

	c, err = engine.GetComp(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(comp.StatusCompleted, c.Status)
	s.Equal(1, c.Attempts)
	s.Equal("21.00", money.FormatAmount(c.AffiliateMatch, money.USDT))
	s.Equal(1, s.rail.Calls())

	n, err = engine.SweepPending(s.ctx, 15*time.Minute)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *CompTestSuite) TestMatchCreditFailureLeavesCompPending() {
	s.member("user-7", walletAddr, &s.upline.ID)
	earnings := &flakyEarnings{next: s.payouts, failing: true}
	engine := compsvc.New(s.uow, s.sender, earnings, nil, s.cfg, testutils.DiscardLogger(), nil)

	c, err := engine.AwardComp(s.ctx, compsvc.AwardRequest{UserID: "user-7", Amount: s.usdt("1000.00")})
	s.Require().NoError(err)
	s.Equal(comp.StatusPending, c.Status, "a paid comp is not completed without its match")
	s.Zero(c.AffiliateMatch)
	s.Equal(1, s.rail.Calls())

	got, err := s.affiliates.Earnings(s.ctx, s.upline.ID)
	s.Require().NoError(err)
	s.Empty(got)

	_, err = engine.Settle(s.ctx, c.ID)
	s.Require().Error(err)

	earnings.failing = false
	settled, err := engine.Settle(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(comp.StatusCompleted, settled.Status)
	s.Equal("210.00", money.FormatAmount(settled.AffiliateMatch, money.USDT))
	s.Equal(1, s.rail.Calls(), "the committed send is reused")

	got, err = s.affiliates.Earnings(s.ctx, s.upline.ID)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(s.usdt("210.00"), got[0].Amount)

	bal, err := s.store.GetBalance(s.ctx, ledger.Consumer, nil)
	s.Require().NoError(err)
	s.Equal("99000.00", bal.USDT.StringFixed())
}

func TestCompTestSuite(t *testing.T) {
	suite.Run(t, new(CompTestSuite))
}

func TestConfigFromProgram(t *testing.T) {
	cfg, err := compsvc.ConfigFromProgram(config.DefaultProgram())
	require.NoError(t, err)
	assert.Equal(t, "0.21", cfg.MatchRate.String())
	require.Len(t, cfg.Milestones, 3)
	assert.Equal(t, int64(10000), cfg.Milestones[2].ScanCount)
	assert.Equal(t, int64(1_000_000), cfg.Milestones[2].Amount)

	p := config.DefaultProgram()
	p.Milestones[0].Amount = "1.001"
	_, err = compsvc.ConfigFromProgram(p)
	assert.Error(t, err)
}
