package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckEventOrder_RejectsOlderTimestamp(t *testing.T) {
	latest := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

	err := checkEventOrder(latest, latest.Add(-time.Second))

	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestCheckEventOrder_RejectsSubSecondRegression(t *testing.T) {
	latest := time.Date(2026, time.May, 1, 12, 0, 0, 500_000_000, time.UTC)

	err := checkEventOrder(latest, latest.Add(-time.Millisecond))

	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestCheckEventOrder_AllowsEqualTimestamp(t *testing.T) {
	latest := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, checkEventOrder(latest, latest))
}

func TestCheckEventOrder_AllowsNewerTimestamp(t *testing.T) {
	latest := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

	assert.NoError(t, checkEventOrder(latest, latest.Add(time.Second)))
}

func TestCheckEventOrder_AllowsFirstEvent(t *testing.T) {
	// COALESCE maps an empty log to the epoch sentinel
	epoch := time.Unix(0, 0).UTC()

	assert.NoError(t, checkEventOrder(epoch, time.Now().UTC()))
}
