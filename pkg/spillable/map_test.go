package spillable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statemill/statemill/pkg/serde"
	"github.com/statemill/statemill/pkg/store/memory"
)

func newTestMap(t *testing.T) *Map[string, int64] {
	t.Helper()
	ctx := context.Background()
	st := memory.NewStore(ctx)
	a := NewAllocator()
	id, err := a.Allocate(0, []byte("map"))
	require.NoError(t, err)
	m := newMap[string, int64](id, st, serde.String{}, serde.Int64{})
	require.NoError(t, m.Setup(ctx))
	return m
}

func TestMap_Scenario(t *testing.T) {
	m := newTestMap(t)

	assert.NoError(t, m.BeginWindow(0))
	assert.NoError(t, m.Put("a", 1))
	assert.NoError(t, m.Put("b", 2))
	assert.NoError(t, m.EndWindow())

	assert.NoError(t, m.BeginWindow(1))
	v, found, err := m.Get("a")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), v)

	v, found, err = m.Get("b")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), v)
	assert.Equal(t, int64(2), m.Size())

	assert.NoError(t, m.Remove("a"))
	assert.NoError(t, m.EndWindow())

	assert.NoError(t, m.BeginWindow(2))
	has, err := m.ContainsKey("a")
	assert.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, int64(1), m.Size())
	assert.NoError(t, m.EndWindow())
}

func TestMap_ReadYourOwnWrite(t *testing.T) {
	m := newTestMap(t)

	assert.NoError(t, m.BeginWindow(0))
	assert.NoError(t, m.Put("k", 42))

	// buffered, not spilled, still visible
	v, found, err := m.Get("k")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), v)

	has, err := m.ContainsKey("k")
	assert.NoError(t, err)
	assert.True(t, has)
}

func TestMap_RemoveBuffered(t *testing.T) {
	m := newTestMap(t)

	assert.NoError(t, m.BeginWindow(0))
	assert.NoError(t, m.Put("k", 1))
	assert.NoError(t, m.Remove("k"))

	// the tombstone shadows the buffered put
	_, found, err := m.Get("k")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), m.Size())

	// a put over a tombstone counts as a new insert
	assert.NoError(t, m.Put("k", 2))
	assert.Equal(t, int64(1), m.Size())
}

func TestMap_RemoveAbsentIsNoop(t *testing.T) {
	m := newTestMap(t)

	assert.NoError(t, m.BeginWindow(0))
	assert.NoError(t, m.Remove("ghost"))
	assert.Equal(t, int64(0), m.Size())
	assert.NoError(t, m.EndWindow())
}

func TestMap_OverwriteKeepsSize(t *testing.T) {
	m := newTestMap(t)

	assert.NoError(t, m.BeginWindow(0))
	assert.NoError(t, m.Put("k", 1))
	assert.NoError(t, m.Put("k", 2))
	assert.Equal(t, int64(1), m.Size())
	assert.NoError(t, m.EndWindow())

	assert.NoError(t, m.BeginWindow(1))
	assert.NoError(t, m.Put("k", 3))
	assert.Equal(t, int64(1), m.Size())

	v, found, err := m.Get("k")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(3), v)
}

func TestMap_MutationRequiresOpenWindow(t *testing.T) {
	m := newTestMap(t)

	assert.ErrorIs(t, m.Put("k", 1), ErrInvalidLifecycleState)
	assert.ErrorIs(t, m.Remove("k"), ErrInvalidLifecycleState)
}

func TestMap_SizeSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore(ctx)

	a := NewAllocator()
	id, err := a.Allocate(0, []byte("map"))
	require.NoError(t, err)
	m := newMap[string, int64](id, st, serde.String{}, serde.Int64{})
	require.NoError(t, m.Setup(ctx))
	require.NoError(t, m.BeginWindow(0))
	require.NoError(t, m.Put("a", 1))
	require.NoError(t, m.Put("b", 2))
	require.NoError(t, m.EndWindow())
	require.NoError(t, m.Teardown())

	a2 := NewAllocator()
	id2, err := a2.Allocate(0, []byte("map"))
	require.NoError(t, err)
	m2 := newMap[string, int64](id2, st, serde.String{}, serde.Int64{})
	require.NoError(t, m2.Setup(ctx))
	assert.Equal(t, int64(2), m2.Size())
	v, found, err := m2.Get("b")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), v)
}

func TestMap_NamespaceIsolationInSharedBucket(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore(ctx)
	a := NewAllocator()

	id1, err := a.Allocate(0, []byte("left"))
	require.NoError(t, err)
	id2, err := a.Allocate(0, []byte("right"))
	require.NoError(t, err)

	m1 := newMap[string, int64](id1, st, serde.String{}, serde.Int64{})
	m2 := newMap[string, int64](id2, st, serde.String{}, serde.Int64{})
	require.NoError(t, m1.Setup(ctx))
	require.NoError(t, m2.Setup(ctx))

	require.NoError(t, m1.BeginWindow(0))
	require.NoError(t, m2.BeginWindow(0))
	require.NoError(t, m1.Put("k", 1))
	require.NoError(t, m1.EndWindow())
	require.NoError(t, m2.EndWindow())

	// same bucket, same logical key, different identifier: invisible
	_, found, err := m2.Get("k")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(0), m2.Size())
}
