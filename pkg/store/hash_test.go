package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPutGetErase(t *testing.T) {
	assert := require.New(t)

	h := NewHash[uint64, string]()

	_, found := h.Get(1)
	assert.False(found)

	h.Put(1, "one")
	v, found := h.Get(1)
	assert.True(found)
	assert.Equal("one", v)

	// Last writer wins.
	h.Put(1, "uno")
	v, found = h.Get(1)
	assert.True(found)
	assert.Equal("uno", v)

	assert.True(h.Erase(1))
	assert.False(h.Erase(1))
	_, found = h.Get(1)
	assert.False(found)
}

func TestHashAll(t *testing.T) {
	assert := require.New(t)

	h := NewHash[uint64, string]()
	h.Put(1, "a")
	h.Put(2, "b")
	h.Put(3, "c")
	assert.Equal(3, h.Len())

	all := h.All()
	assert.ElementsMatch([]Entry[uint64, string]{
		{Key: 1, Value: "a"},
		{Key: 2, Value: "b"},
		{Key: 3, Value: "c"},
	}, all)
}

func TestKeySet(t *testing.T) {
	assert := require.New(t)

	s := NewKeySet[string]()
	assert.True(s.Add("x"))
	assert.False(s.Add("x"))
	assert.True(s.Has("x"))
	assert.False(s.Has("y"))
	assert.Equal(1, s.Len())

	assert.True(s.Add("y"))
	assert.ElementsMatch([]string{"x", "y"}, s.All())

	assert.True(s.Remove("x"))
	assert.False(s.Remove("x"))
	assert.False(s.Has("x"))
}

func TestFIFO(t *testing.T) {
	assert := require.New(t)

	q := NewFIFO[int64]()
	_, ok := q.Pop()
	assert.False(ok)
	_, ok = q.Front()
	assert.False(ok)

	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(3, q.Len())

	front, ok := q.Front()
	assert.True(ok)
	assert.Equal(int64(1), front)

	for want := int64(1); want <= 3; want++ {
		v, ok := q.Pop()
		assert.True(ok)
		assert.Equal(want, v)
	}
	_, ok = q.Pop()
	assert.False(ok)
}

func TestHeapOrder(t *testing.T) {
	assert := require.New(t)

	h := NewHeap(func(a, b int64) bool { return a < b })
	_, ok := h.Pop()
	assert.False(ok)

	for _, v := range []int64{3, 1, 4, 1, 5, 9, 2, 6} {
		h.Push(v)
	}
	assert.Equal(8, h.Len())

	top, ok := h.Top()
	assert.True(ok)
	assert.Equal(int64(9), top)
	// Top must not mutate.
	assert.Equal(8, h.Len())

	var drained []int64
	for {
		v, ok := h.Pop()
		if !ok {
			break
		}
		drained = append(drained, v)
	}
	assert.Equal([]int64{9, 6, 5, 4, 3, 2, 1, 1}, drained)
}
