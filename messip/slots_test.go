package messip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotTableAllocReusesFreedIndex(t *testing.T) {
	var t1 slotTable
	a := t1.alloc(nil, []byte("a"))
	b := t1.alloc(nil, []byte("b"))
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)

	t1.release(a)
	c := t1.alloc(nil, []byte("c"))
	assert.Equal(t, 0, c, "freed index must be reused before growing")
	assert.Equal(t, 2, t1.pending())
}

func TestSlotTableGetMissingOrReleased(t *testing.T) {
	var t1 slotTable
	_, ok := t1.get(0)
	assert.False(t, ok)

	idx := t1.alloc(nil, nil)
	_, ok = t1.get(idx)
	assert.True(t, ok)

	t1.release(idx)
	_, ok = t1.get(idx)
	assert.False(t, ok)
}

func TestSlotTableReleaseOutOfRangeIsNoOp(t *testing.T) {
	var t1 slotTable
	assert.NotPanics(t, func() {
		t1.release(5)
		t1.release(-1)
	})
}

func TestSlotTablePendingCountsOnlyLive(t *testing.T) {
	var t1 slotTable
	t1.alloc(nil, nil)
	idx := t1.alloc(nil, nil)
	t1.alloc(nil, nil)
	t1.release(idx)
	assert.Equal(t, 2, t1.pending())
}
