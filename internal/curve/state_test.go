package curve

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCompletionIsMonotonic(t *testing.T) {
	c := newTestCurve()

	assert.False(t, c.CheckCompletion(curveLimit-1, curveLimit))
	assert.Equal(t, PhaseTrading, c.Phase)

	assert.True(t, c.CheckCompletion(curveLimit, curveLimit))
	assert.Equal(t, PhaseCompleted, c.Phase)

	// Later queries never revert the phase.
	assert.True(t, c.CheckCompletion(0, curveLimit))
	assert.True(t, c.IsCompleted())
	assert.ErrorIs(t, c.CanTrade(), ErrCurveCompleted)
}

func TestMigrationTransitions(t *testing.T) {
	c := newTestCurve()
	assert.ErrorIs(t, c.CheckMigrationEligibility(), ErrCurveNotComplete)
	assert.ErrorIs(t, c.MarkMigrated(), ErrCurveNotComplete)
	assert.Equal(t, PhaseTrading, c.Phase)

	c.CheckCompletion(curveLimit, curveLimit)
	require.NoError(t, c.MarkMigrated())
	assert.True(t, c.IsMigrated())
	assert.True(t, c.IsCompleted())

	assert.ErrorIs(t, c.MarkMigrated(), ErrAlreadyMigrated)
	assert.ErrorIs(t, c.CanTrade(), ErrAlreadyMigrated)
}

func TestUpdateReservesFloor(t *testing.T) {
	c := newTestCurve()
	err := c.UpdateReserves(DefaultMinSolReserve-1, launchToken, DefaultMinSolReserve)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, launchSol, c.VirtualSolReserve)

	err = c.UpdateReserves(launchSol, 0, DefaultMinSolReserve)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	require.NoError(t, c.UpdateReserves(launchSol+1, launchToken-1, DefaultMinSolReserve))
	assert.Equal(t, Reserves{Sol: launchSol + 1, Token: launchToken - 1}, c.Reserves())
}

func TestApplyCompletesCurve(t *testing.T) {
	p := DefaultParams()
	c := newTestCurve()
	// A curve whose limit sits just above the current reserve.
	limit := launchSol + LamportsPerSol/2

	q, err := Evaluate(c.Reserves(), Request{Direction: Buy, AmountIn: LamportsPerSol, FeeRate: 100}, p)
	require.NoError(t, err)

	completed, err := c.Apply(q, p, limit)
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, PhaseCompleted, c.Phase)
	assert.Equal(t, q.After, c.Reserves())
	assert.Equal(t, uint64(2_923_200)+q.SolDelta, c.RealSolReserve)
	assert.Equal(t, launchToken-q.AmountOut, c.RealTokenReserve)

	next, err := Preview(c.Reserves(), Buy, LamportsPerSol, 100, p)
	require.NoError(t, err)
	_, err = c.Apply(next, p, limit)
	assert.ErrorIs(t, err, ErrCurveCompleted)
}

func TestPhaseStrings(t *testing.T) {
	for _, ph := range []Phase{PhaseTrading, PhaseCompleted, PhaseMigrated} {
		parsed, err := ParsePhase(ph.String())
		require.NoError(t, err)
		assert.Equal(t, ph, parsed)
	}
	_, err := ParsePhase("paused")
	assert.Error(t, err)

	d, err := ParseDirection("sell")
	require.NoError(t, err)
	assert.Equal(t, Sell, d)
	_, err = ParseDirection("hold")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestTextEncoding(t *testing.T) {
	out, err := json.Marshal(struct {
		Phase     Phase     `json:"phase"`
		Direction Direction `json:"direction"`
	}{PhaseCompleted, Sell})
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"completed","direction":"sell"}`, string(out))

	var in struct {
		Phase     Phase     `json:"phase"`
		Direction Direction `json:"direction"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"migrated","direction":"buy"}`), &in))
	assert.Equal(t, PhaseMigrated, in.Phase)
	assert.Equal(t, Buy, in.Direction)

	assert.Error(t, json.Unmarshal([]byte(`{"direction":"hold"}`), &in))
	_, err = json.Marshal(Direction(7))
	assert.Error(t, err)
}
