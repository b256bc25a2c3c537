package ap33772s

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableOf builds a Table from (position, record) pairs.
func tableOf(t *testing.T, slots map[Position]uint16) Table {
	t.Helper()
	var tbl Table
	for pos := Position(1); pos <= NumSlots; pos++ {
		raw, ok := slots[pos]
		if !ok {
			continue
		}
		tbl.add(mustDecode(t, raw, pos))
	}
	return tbl
}

func TestFindBestFor(t *testing.T) {
	// A source offering 5 V/3 A fixed and a 15-20 V/5 A adjustable.
	tbl := tableOf(t, map[Position]uint16{
		1: MakeFixedRecord(Standard, 5000, 3000, true),
		8: MakeAdjustableRecord(Extended, 15000, 20000, 5000, true),
	})

	t.Run("in-range target selects the adjustable slot", func(t *testing.T) {
		p, ok := tbl.FindBestFor(18000, 3000)
		require.True(t, ok)
		assert.Equal(t, Position(8), p.Position())
		assert.Equal(t, KindAVS, p.Kind())
	})

	t.Run("target outside every range falls back to fixed", func(t *testing.T) {
		p, ok := tbl.FindBestFor(5000, 3000)
		require.True(t, ok)
		assert.Equal(t, Position(1), p.Position())
		assert.Equal(t, KindFixed, p.Kind())
	})

	t.Run("nothing suitable", func(t *testing.T) {
		_, ok := tbl.FindBestFor(12000, 3000)
		assert.False(t, ok)
	})

	t.Run("current bound filters the adjustable slot", func(t *testing.T) {
		_, ok := tbl.FindBestFor(18000, 5500)
		assert.False(t, ok)
	})
}

func TestFindAdjustableTightestFit(t *testing.T) {
	t.Run("smallest qualifying span wins", func(t *testing.T) {
		tbl := tableOf(t, map[Position]uint16{
			6: MakeAdjustableRecord(Standard, 3300, 21000, 3000, true), // span 17.7 V
			7: MakeAdjustableRecord(Standard, 5100, 11000, 3000, true), // span 5.9 V
		})
		adj, ok := tbl.FindAdjustable(9000, 2000)
		require.True(t, ok)
		assert.Equal(t, Position(7), adj.Position())
	})

	t.Run("equal spans pick the lowest position", func(t *testing.T) {
		tbl := tableOf(t, map[Position]uint16{
			6: MakeAdjustableRecord(Standard, 5100, 11000, 3000, true),
			7: MakeAdjustableRecord(Standard, 5100, 11000, 3000, true),
		})
		adj, ok := tbl.FindAdjustable(9000, 2000)
		require.True(t, ok)
		assert.Equal(t, Position(6), adj.Position())
	})

	t.Run("undetected slots never qualify", func(t *testing.T) {
		tbl := tableOf(t, map[Position]uint16{
			6: MakeAdjustableRecord(Standard, 5100, 11000, 3000, false),
		})
		_, ok := tbl.FindAdjustable(9000, 2000)
		assert.False(t, ok)
	})

	t.Run("variable slots never qualify", func(t *testing.T) {
		tbl := tableOf(t, map[Position]uint16{
			3: MakeVariableRecord(Standard, 3300, 12000, 2000, true),
		})
		_, ok := tbl.FindAdjustable(9000, 1000)
		assert.False(t, ok)
	})
}

func TestFindFixed(t *testing.T) {
	tbl := tableOf(t, map[Position]uint16{
		1: MakeFixedRecord(Standard, 5000, 3000, true),
		2: MakeFixedRecord(Standard, 9000, 3000, true),
	})

	t.Run("exact voltage", func(t *testing.T) {
		f, ok := tbl.FindFixed(9000, 2000)
		require.True(t, ok)
		assert.Equal(t, Position(2), f.Position())
	})

	t.Run("within one resolution step", func(t *testing.T) {
		f, ok := tbl.FindFixed(9050, 2000)
		require.True(t, ok)
		assert.Equal(t, Millivolts(9000), f.Voltage())
	})

	t.Run("current demand filters", func(t *testing.T) {
		_, ok := tbl.FindFixed(9000, 3500)
		assert.False(t, ok)
	})

	t.Run("no match beyond one step", func(t *testing.T) {
		_, ok := tbl.FindFixed(9300, 1000)
		assert.False(t, ok)
	})
}

func TestTableIteration(t *testing.T) {
	tbl := tableOf(t, map[Position]uint16{
		1: MakeFixedRecord(Standard, 5000, 3000, true),
		2: MakeFixedRecord(Standard, 9000, 3000, false),
		8: MakeAdjustableRecord(Extended, 15000, 20000, 5000, true),
	})

	var all, detected []Position
	for p := range tbl.All() {
		all = append(all, p.Position())
	}
	for p := range tbl.Detected() {
		detected = append(detected, p.Position())
	}
	assert.Equal(t, []Position{1, 2, 8}, all)
	assert.Equal(t, []Position{1, 8}, detected)

	// Restartable: a second pass sees the same slots.
	var again []Position
	for p := range tbl.Detected() {
		again = append(again, p.Position())
	}
	assert.Equal(t, detected, again)

	// Early break must not panic or skip cleanup.
	for range tbl.Detected() {
		break
	}
}
