package comp_test

import (
	"testing"
	"time"

	"github.com/amirasaad/treasury/pkg/domain"
	"github.com/amirasaad/treasury/pkg/domain/comp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchAmount(t *testing.T) {
	rate := decimal.RequireFromString("0.21")
	assert.Equal(t, int64(21000), comp.MatchAmount(100000, rate))
	assert.Equal(t, int64(2), comp.MatchAmount(11, rate), "floor of 2.31 cents")
}

func TestNew(t *testing.T) {
	c, err := comp.New("user-1", 10000, "support credit", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, comp.StatusPending, c.Status)
	assert.Equal(t, comp.TypeManual, c.CompType)

	_, err = comp.New("", 10000, "", "", time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = comp.New("user-1", -1, "", "", time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCrossed(t *testing.T) {
	ms := []comp.Milestone{
		{ScanCount: 1000, Amount: 100000},
		{ScanCount: 100, Amount: 10000},
		{ScanCount: 10000, Amount: 1000000},
	}
	got := comp.Crossed(ms, 1500)
	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].ScanCount)
	assert.Equal(t, int64(1000), got[1].ScanCount)
	assert.Equal(t, "milestone_1000", got[1].Type())
	assert.Equal(t, "u1:1000", got[1].Key("u1"))
	assert.Empty(t, comp.Crossed(ms, 99))
}
