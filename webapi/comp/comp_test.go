package comp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	infraprovider "github.com/amirasaad/treasury/infra/provider"
	"github.com/amirasaad/treasury/pkg/config"
	"github.com/amirasaad/treasury/pkg/domain/ledger"
	"github.com/amirasaad/treasury/pkg/middleware"
	affiliatesvc "github.com/amirasaad/treasury/pkg/service/affiliate"
	compsvc "github.com/amirasaad/treasury/pkg/service/comp"
	ledgersvc "github.com/amirasaad/treasury/pkg/service/ledger"
	payoutsvc "github.com/amirasaad/treasury/pkg/service/payout"
	transfersvc "github.com/amirasaad/treasury/pkg/service/transfer"
	"github.com/amirasaad/treasury/pkg/testutils"
	compapi "github.com/amirasaad/treasury/webapi/comp"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const wallet = "0x7777777777777777777777777777777777777777"

type CompAPITestSuite struct {
	suite.Suite
	app        *fiber.App
	affiliates *affiliatesvc.Service
}

func (s *CompAPITestSuite) SetupTest() {
	uow, _ := testutils.SetupTestUoW(s.T())
	ctx := context.Background()
	logger := testutils.DiscardLogger()

	store := ledgersvc.New(uow, nil, logger, nil)
	s.Require().NoError(store.SyncPools(ctx, testutils.DefaultPools()))
	fund, err := ledger.NewTransaction().WithPool(ledger.Consumer).Inbound(10_000_000).Build()
	s.Require().NoError(err)
	_, err = store.RecordTransaction(ctx, fund)
	s.Require().NoError(err)

	sender := transfersvc.New(uow, store, infraprovider.NewMockRail(), nil,
		transfersvc.Config{RailTimeout: time.Second}, logger, nil)
	cfg, err := compsvc.ConfigFromProgram(config.DefaultProgram())
	s.Require().NoError(err)
	engine := compsvc.New(uow, sender, payoutsvc.New(uow, sender, nil, logger, nil), nil, cfg, logger, nil)
	s.affiliates = affiliatesvc.New(uow, nil, logger)

	s.app = fiber.New()
	compapi.Routes(s.app, engine, middleware.Protected(&config.Auth{}))
}

func (s *CompAPITestSuite) do(method, path, body string) *http.Response {
	return testutils.MakeRequestWithApp(s.app, method, path, body, map[string]string{"X-Operator-ID": "dave"})
}

func (s *CompAPITestSuite) wallet(userID string) {
	_, err := s.affiliates.UpsertMember(context.Background(), affiliatesvc.MemberRequest{
		UserID: userID, WalletAddress: wallet,
	})
	s.Require().NoError(err)
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

func (s *CompAPITestSuite) TestAwardAndFetch() {
	s.wallet("user-1")
	resp := s.do("POST", "/comps", `{"user_id":"user-1","amount":"25.00","reason":"support goodwill"}`)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	c := decode[compapi.CompDTO](s.T(), resp)
	s.Equal("completed", c.Status)
	s.Equal("25.00", c.Amount)
	s.NotEmpty(c.SettlementRef)

	resp = s.do("GET", "/comps/"+c.ID, "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal(c.ID, decode[compapi.CompDTO](s.T(), resp).ID)
}

func (s *CompAPITestSuite) TestFailedCompRetries() {
	resp := s.do("POST", "/comps", `{"user_id":"user-2","amount":"5.00"}`)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	c := decode[compapi.CompDTO](s.T(), resp)
	s.Equal("failed", c.Status)

	resp = s.do("GET", "/comps?status=failed", "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Len(decode[[]compapi.CompDTO](s.T(), resp), 1)

	s.wallet("user-2")
	resp = s.do("POST", "/comps/"+c.ID+"/retry", "")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("completed", decode[compapi.CompDTO](s.T(), resp).Status)

	resp = s.do("POST", "/comps/"+c.ID+"/retry", "")
	s.Equal(fiber.StatusConflict, resp.StatusCode)
}

func (s *CompAPITestSuite) TestBulkRetry() {
	var ids []string
	for range 2 {
		resp := s.do("POST", "/comps", `{"user_id":"user-3","amount":"1.00"}`)
		s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
		ids = append(ids, decode[compapi.CompDTO](s.T(), resp).ID)
	}
	s.wallet("user-3")
	body, err := json.Marshal(map[string][]string{"ids": ids})
	s.Require().NoError(err)

	resp := s.do("POST", "/comps/retry", string(body))
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal(2, decode[compapi.BulkRetryDTO](s.T(), resp).Initiated)

	resp = s.do("POST", "/comps/retry", `{"ids":["not-a-uuid"]}`)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func (s *CompAPITestSuite) TestScanEventsAwardMilestones() {
	s.wallet("user-4")
	resp := s.do("POST", "/comps/scan-events", `{"user_id":"user-4","scan_count":1500}`)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	awarded := decode[[]compapi.CompDTO](s.T(), resp)
	s.Len(awarded, 2)

	resp = s.do("POST", "/comps/scan-events", `{"user_id":"user-4","scan_count":1500}`)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Empty(decode[[]compapi.CompDTO](s.T(), resp))

	resp = s.do("POST", "/comps/scan-events", `{"user_id":"user-4","scan_count":-1}`)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func (s *CompAPITestSuite) TestValidation() {
	resp := s.do("POST", "/comps", `{"user_id":"user-5","amount":"-1"}`)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp = s.do("GET", "/comps?status=weird", "")
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func TestCompAPITestSuite(t *testing.T) {
	suite.Run(t, new(CompAPITestSuite))
}
