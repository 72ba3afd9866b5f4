package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seat-enrollment-api/internal/models"
)

func TestLedgerReserveCommitRelease(t *testing.T) {
	l, err := NewLedger([]models.Course{{ID: "c1", Seats: 2}}, map[string]int{"c1": 1})
	require.NoError(t, err)

	ok, err := l.TryReserve("c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryReserve("c1")
	require.NoError(t, err)
	assert.False(t, ok, "reservation must hold the last seat")
	assert.Equal(t, 1, l.Filled("c1"), "reservations are not published")

	l.Release("c1")
	ok, _ = l.TryReserve("c1")
	assert.True(t, ok)
	assert.Equal(t, 2, l.Commit("c1"))
	assert.Equal(t, map[string]int{"c1": 2}, l.Snapshot())

	ok, _ = l.TryReserve("c1")
	assert.False(t, ok)
}

func TestLedgerUnknownCourse(t *testing.T) {
	l, err := NewLedger(nil, nil)
	require.NoError(t, err)
	_, err = l.TryReserve("nope")
	assert.ErrorIs(t, err, ErrUnknownCourse)
}

func TestNewLedgerRejectsOverfilledSeed(t *testing.T) {
	_, err := NewLedger([]models.Course{{ID: "c1", Seats: 1}}, map[string]int{"c1": 2})
	assert.Error(t, err)
}

func TestLedgerAdoptCapsAtCapacity(t *testing.T) {
	l, err := NewLedger([]models.Course{{ID: "c1", Seats: 1}}, map[string]int{"c1": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, l.Adopt("c1"))
}
