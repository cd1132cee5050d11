package sunset_test

import (
	"context"
	"testing"
	"time"

	infracache "github.com/amirasaad/treasury/infra/cache"
	infraeventbus "github.com/amirasaad/treasury/infra/eventbus"
	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/events"
	"github.com/amirasaad/treasury/pkg/repository"
	sunsetsvc "github.com/amirasaad/treasury/pkg/service/sunset"
	"github.com/amirasaad/treasury/pkg/testutils"
	"github.com/stretchr/testify/suite"
)

type SunsetTestSuite struct {
	suite.Suite
	ctx     context.Context
	clock   time.Time
	cache   *infracache.MemoryProgressCache
	bus     *infraeventbus.MemoryEventBus
	uow     repository.UnitOfWork
	monitor *sunsetsvc.Monitor
}

func (s *SunsetTestSuite) SetupTest() {
	uow, _ := testutils.SetupTestUoW(s.T())
	s.uow = uow
	s.ctx = context.Background()
	s.clock = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	logger := testutils.DiscardLogger()
	s.cache = infracache.NewMemoryProgressCache()
	s.bus = infraeventbus.NewWithMemory(logger)
	s.monitor = sunsetsvc.New(uow, s.cache, s.bus, 1000, time.Hour, logger, nil).
		WithClock(func() time.Time { return s.clock })
}

func (s *SunsetTestSuite) volume(year int, month time.Month, tins int64) {
	_, err := s.monitor.RecordVolume(s.ctx, nil, tins, time.Date(year, month, 10, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
}

func (s *SunsetTestSuite) triggeredEvents() int {
	n := 0
	for _, e := range s.bus.Published() {
		if _, ok := e.(events.SunsetTriggered); ok {
			n++
		}
	}
	return n
}

func (s *SunsetTestSuite) TestAverageAtThresholdTriggers() {
	s.volume(2026, time.January, 900)
	s.volume(2026, time.February, 1000)
	s.volume(2026, time.March, 1100)
	s.volume(2026, time.April, 5000) // current month does not count

	p, err := s.monitor.CheckSunset(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1100), p.MonthlyVolume)
	s.Equal("1000", p.Rolling3moAvg.String())
	s.Equal("100", p.Percentage.String())
	s.True(p.IsTriggered)
	s.Require().NotNil(p.TriggeredAt)
	s.True(p.TriggeredAt.Equal(s.clock))
	s.Equal(1, s.triggeredEvents())

	triggered, err := s.monitor.Triggered(s.ctx)
	s.Require().NoError(err)
	s.True(triggered)
}

func (s *SunsetTestSuite) TestLatchNeverResets() {
	s.volume(2026, time.January, 900)
	s.volume(2026, time.February, 1000)
	s.volume(2026, time.March, 1100)
	first, err := s.monitor.CheckSunset(s.ctx)
	s.Require().NoError(err)
	s.Require().True(first.IsTriggered)

	// three quiet months later the average is far below the threshold
	s.clock = time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	later, err := s.monitor.CheckSunset(s.ctx)
	s.Require().NoError(err)
	s.True(later.Percentage.IsZero())
	s.True(later.IsTriggered)
	s.True(later.TriggeredAt.Equal(*first.TriggeredAt))
	s.Equal(1, s.triggeredEvents())
}

func (s *SunsetTestSuite) TestBelowThresholdDoesNotTrigger() {
	s.volume(2026, time.January, 300)
	s.volume(2026, time.February, 300)
	s.volume(2026, time.March, 300)

	p, err := s.monitor.CheckSunset(s.ctx)
	s.Require().NoError(err)
	s.Equal("30", p.Percentage.String())
	s.False(p.IsTriggered)
	s.Nil(p.TriggeredAt)
	s.Zero(s.triggeredEvents())

	triggered, err := s.monitor.Triggered(s.ctx)
	s.Require().NoError(err)
	s.False(triggered)
}

func (s *SunsetTestSuite) TestAverageJustBelowThresholdStaysOpen() {
	monitor := sunsetsvc.New(s.uow, nil, s.bus, 10000, time.Hour, testutils.DiscardLogger(), nil).
		WithClock(func() time.Time { return s.clock })
	for month, tins := range map[time.Month]int64{time.January: 9999, time.February: 10000, time.March: 10000} {
		_, err := monitor.RecordVolume(s.ctx, nil, tins, time.Date(2026, month, 10, 0, 0, 0, 0, time.UTC))
		s.Require().NoError(err)
	}

	p, err := monitor.CheckSunset(s.ctx)
	s.Require().NoError(err)
	s.Equal("9999.67", p.Rolling3moAvg.String())
	s.Equal("100", p.Percentage.String(), "display rounds up")
	s.False(p.IsTriggered)
	s.Nil(p.TriggeredAt)
	s.Zero(s.triggeredEvents())

	triggered, err := monitor.Triggered(s.ctx)
	s.Require().NoError(err)
	s.False(triggered)
}

func (s *SunsetTestSuite) TestProgressServesLastSnapshot() {
	p, err := s.monitor.Progress(s.ctx)
	s.Require().NoError(err)
	s.True(p.Percentage.IsZero())

	s.volume(2026, time.March, 3000)
	cached, err := s.monitor.Progress(s.ctx)
	s.Require().NoError(err)
	s.True(cached.Percentage.IsZero(), "progress is not recomputed on read")

	s.Require().NoError(s.cache.Delete(s.ctx))
	fromDB, err := s.monitor.Progress(s.ctx)
	s.Require().NoError(err)
	s.True(fromDB.Percentage.IsZero())

	fresh, err := s.monitor.CheckSunset(s.ctx)
	s.Require().NoError(err)
	s.Equal("100", fresh.Percentage.String())
	cached, err = s.monitor.Progress(s.ctx)
	s.Require().NoError(err)
	s.True(cached.IsTriggered)
}

func (s *SunsetTestSuite) TestRecordVolumeRejectsNonPositive() {
	_, err := s.monitor.RecordVolume(s.ctx, nil, 0, time.Time{})
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func TestSunsetTestSuite(t *testing.T) {
	suite.Run(t, new(SunsetTestSuite))
}
