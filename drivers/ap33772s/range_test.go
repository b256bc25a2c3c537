package ap33772s

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, raw uint16, pos Position) PDO {
	t.Helper()
	p, err := DecodePDO(raw, pos)
	require.NoError(t, err)
	return p
}

func TestResolveMinVoltage(t *testing.T) {
	t.Run("standard exact code", func(t *testing.T) {
		p := mustDecode(t, MakeAdjustableRecord(Standard, 3300, 11000, 3000, true), 6)
		rng, err := Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, Millivolts(3300), rng.MinVoltage)
	})

	t.Run("standard range code lifts the floor to one step above 5 V", func(t *testing.T) {
		p := mustDecode(t, MakeAdjustableRecord(Standard, 5100, 11000, 3000, true), 6)
		rng, err := Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, Millivolts(5100), rng.MinVoltage)
		// The band is nominally 3.3-5 V; neither nominal bound is usable.
		assert.NotEqual(t, Millivolts(3300), rng.MinVoltage)
		assert.Greater(t, rng.MinVoltage, Millivolts(5000))
	})

	t.Run("extended exact code", func(t *testing.T) {
		p := mustDecode(t, MakeAdjustableRecord(Extended, 15000, 28000, 5000, true), 9)
		rng, err := Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, Millivolts(15000), rng.MinVoltage)
	})

	t.Run("extended range code lifts the floor to one step above 20 V", func(t *testing.T) {
		p := mustDecode(t, MakeAdjustableRecord(Extended, 20200, 28000, 5000, true), 9)
		rng, err := Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, Millivolts(20200), rng.MinVoltage)
		assert.Greater(t, rng.MinVoltage, Millivolts(20000))
	})

	t.Run("reserved min-voltage codes fail", func(t *testing.T) {
		for _, code := range []uint8{minVoltReserved, minVoltOther} {
			raw := packPDO(tagAdjustable, true, 7, code, 100)
			p := mustDecode(t, raw, 8)
			_, err := Resolve(p)
			assert.ErrorIs(t, err, ErrConversionFailed, "code %d", code)
		}
	})
}

func TestResolve(t *testing.T) {
	t.Run("fixed supply has nothing to resolve", func(t *testing.T) {
		p := mustDecode(t, MakeFixedRecord(Standard, 5000, 3000, true), 1)
		_, err := Resolve(p)
		assert.ErrorIs(t, err, ErrMissingArgument)
	})

	t.Run("adjustable envelope", func(t *testing.T) {
		p := mustDecode(t, MakeAdjustableRecord(Extended, 15000, 20000, 5000, true), 8)
		rng, err := Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, ResolvedRange{MinVoltage: 15000, MaxVoltage: 20000, MaxCurrent: 5000}, rng)
		assert.Equal(t, Millivolts(5000), rng.Width())
		assert.True(t, rng.Contains(15000))
		assert.True(t, rng.Contains(20000))
		assert.False(t, rng.Contains(14800))
		assert.False(t, rng.Contains(20200))
	})

	t.Run("variable envelope", func(t *testing.T) {
		p := mustDecode(t, MakeVariableRecord(Standard, 3300, 12000, 2000, true), 3)
		rng, err := Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, Millivolts(3300), rng.MinVoltage)
		assert.Equal(t, Millivolts(12000), rng.MaxVoltage)
	})

	t.Run("resolution is repeatable", func(t *testing.T) {
		p := mustDecode(t, MakeAdjustableRecord(Standard, 5100, 11000, 3000, true), 6)
		a, err := Resolve(p)
		require.NoError(t, err)
		b, err := Resolve(p)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestCurrentBands(t *testing.T) {
	cases := []struct {
		ask  Milliamps
		code uint8
		max  Milliamps
	}{
		{500, 0, 1240},
		{1240, 0, 1240},
		{1500, 1, 1740},
		{2250, 3, 2740},
		{3000, 4, 3240},
		{4990, 6, 4990},
		{5000, 7, 5000},
		{6000, 7, 5000},
	}
	for _, c := range cases {
		code := currentCodeFor(c.ask)
		assert.Equal(t, c.code, code, "ask %d", c.ask)
		assert.Equal(t, c.max, maxCurrentByCode[code], "ask %d", c.ask)
	}

	// Bands are contiguous: each lower bound sits just above the previous
	// band's guaranteed maximum.
	for code := 1; code < len(minCurrentByCode); code++ {
		assert.LessOrEqual(t, minCurrentByCode[code], maxCurrentByCode[code], "code %d", code)
		assert.Greater(t, minCurrentByCode[code], maxCurrentByCode[code-1], "code %d", code)
	}
}
