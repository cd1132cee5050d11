package payout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain/affiliate"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/middleware"
	affiliatesvc "github.com/amirasaad/treasury/pkg/service/affiliate"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	payoutsvc "github.com/amirasaad/treasury/pkg/service/payout"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/pkg/testutils"
	payoutapi "github.com/amirasaad/treasury/webapi/payout"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const periodEnd = `{"period_end":"2099-01-01T00:00:00Z"}`

type PayoutAPITestSuite struct {
	suite.Suite
	app  *fiber.App
	rail *infraprovider.MockRail
	aff  *affiliate.Affiliate
}

func (s *PayoutAPITestSuite) SetupTest() {
	uow, _ := testutils.SetupTestUoW(s.T())
	ctx := context.Background()
	logger := testutils.DiscardLogger()

	store := ledgersvc.New(uow, nil, logger, nil)
	s.Require().NoError(store.SyncPools(ctx, testutils.DefaultPools()))
	fund, err := ledger.NewTransaction().WithPool(ledger.Affiliate).Inbound(100_000).Build()
	s.Require().NoError(err)
	_, err = store.RecordTransaction(ctx, fund)
	s.Require().NoError(err)

	s.rail = infraprovider.NewMockRail()
	sender := transfersvc.New(uow, store, s.rail, nil, transfersvc.Config{RailTimeout: time.Second}, logger, nil)
	engine := payoutsvc.New(uow, sender, nil, logger, nil)
	s.aff, err = affiliatesvc.New(uow, nil, logger).Enroll(ctx, "Partner", "0x5555555555555555555555555555555555555555")
	s.Require().NoError(err)

	s.app = fiber.New()
	payoutapi.Routes(s.app, engine, middleware.Protected(&config.Auth{}))
}

func (s *PayoutAPITestSuite) do(method, path, body string) *http.Response {
	return testutils.MakeRequestWithApp(s.app, method, path, body, map[string]string{"X-Operator-ID": "carol"})
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data
}

func (s *PayoutAPITestSuite) earn(ref, amount string) {
	resp := s.do("POST", "/payouts/earnings",
		`{"affiliate_id":"`+s.aff.ID.String()+`","amount":"`+amount+`","ref":"`+ref+`"}`)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
}

func (s *PayoutAPITestSuite) aggregate() payoutapi.BatchDTO {
	resp := s.do("POST", "/payouts/batches/aggregate", periodEnd)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	return decode[payoutapi.BatchDTO](s.T(), resp)
}

func (s *PayoutAPITestSuite) TestBatchLifecycle() {
	s.earn("share-1", "120.00")
	s.earn("share-2", "30.00")
	s.earn("share-1", "120.00") // replay

	b := s.aggregate()
	s.Equal("pending", b.Status)
	s.Equal("150.00", b.Total)
	s.Equal(1, b.AffiliateCount)

	resp := s.do("POST", "/payouts/batches/"+b.ID+"/execute", "")
	s.Equal(fiber.StatusConflict, resp.StatusCode, "execute before approve")

	resp = s.do("POST", "/payouts/batches/"+b.ID+"/approve", "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("carol", decode[payoutapi.BatchDTO](s.T(), resp).ApprovedBy)

	resp = s.do("POST", "/payouts/batches/"+b.ID+"/execute", "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("paid", decode[payoutapi.BatchDTO](s.T(), resp).Status)
	s.Equal(2, s.rail.Calls())

	resp = s.do("GET", "/payouts/batches/"+b.ID, "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	got := decode[payoutapi.BatchDTO](s.T(), resp)
	s.Len(got.Payouts, 2)
	for _, p := range got.Payouts {
		s.Equal("paid", p.Status)
	}
}

func (s *PayoutAPITestSuite) TestFailedBatchRetry() {
	s.earn("share-1", "10.00")
	b := s.aggregate()
	s.Require().Equal(fiber.StatusOK, s.do("POST", "/payouts/batches/"+b.ID+"/approve", "").StatusCode)

	s.rail.FailNext(1, errors.New("rail down"))
	resp := s.do("POST", "/payouts/batches/"+b.ID+"/execute", "")
	s.Equal(fiber.StatusBadGateway, resp.StatusCode)

	resp = s.do("GET", "/payouts/batches?status=failed", "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Len(decode[[]payoutapi.BatchDTO](s.T(), resp), 1)

	resp = s.do("POST", "/payouts/batches/"+b.ID+"/retry", "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("pending", decode[payoutapi.BatchDTO](s.T(), resp).Status)
}

func (s *PayoutAPITestSuite) TestRejectPendingOnly() {
	s.earn("share-1", "10.00")
	b := s.aggregate()

	resp := s.do("POST", "/payouts/batches/"+b.ID+"/reject", `{}`)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do("POST", "/payouts/batches/"+b.ID+"/reject", `{"reason":"duplicate"}`)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("failed", decode[payoutapi.BatchDTO](s.T(), resp).Status)

	resp = s.do("POST", "/payouts/batches/"+b.ID+"/reject", `{"reason":"again"}`)
	s.Equal(fiber.StatusConflict, resp.StatusCode)
}

func (s *PayoutAPITestSuite) TestNothingToAggregate() {
	resp := s.do("POST", "/payouts/batches/aggregate", "")
	s.Equal(fiber.StatusOK, resp.StatusCode)

	resp = s.do("GET", "/payouts/batches?status=bogus", "")
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func TestPayoutAPITestSuite(t *testing.T) {
	suite.Run(t, new(PayoutAPITestSuite))
}
