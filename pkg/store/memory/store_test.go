package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statemill/statemill/pkg/store"
)

func TestMemoryStore_PutGetRemove(t *testing.T) {
	st := NewStore(context.Background())

	_, found, err := st.Get(0, []byte("k"))
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, st.Put(0, []byte("k"), []byte("v")))
	v, found, err := st.Get(0, []byte("k"))
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)

	// buckets are isolated
	_, found, err = st.Get(1, []byte("k"))
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, st.Remove(0, []byte("k")))
	_, found, err = st.Get(0, []byte("k"))
	assert.NoError(t, err)
	assert.False(t, found)

	// removing an absent key is not an error
	assert.NoError(t, st.Remove(0, []byte("ghost")))
}

func TestMemoryStore_PutDoesNotAliasCaller(t *testing.T) {
	st := NewStore(context.Background())

	key := []byte("k")
	value := []byte("v")
	require.NoError(t, st.Put(0, key, value))
	value[0] = 'x'

	v, found, err := st.Get(0, []byte("k"))
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestMemoryStore_GetDoesNotAliasTree(t *testing.T) {
	st := NewStore(context.Background())

	require.NoError(t, st.Put(0, []byte("k"), []byte("v")))
	v, found, err := st.Get(0, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	v[0] = 'x'

	v, found, err = st.Get(0, []byte("k"))
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestMemoryStore_CheckpointRestore(t *testing.T) {
	st := NewStore(context.Background())

	require.NoError(t, st.BeginWindow(0))
	require.NoError(t, st.Put(0, []byte("a"), []byte("1")))
	require.NoError(t, st.EndWindow())
	require.NoError(t, st.Checkpoint(0))

	// writes after the checkpoint must not leak into it
	require.NoError(t, st.BeginWindow(1))
	require.NoError(t, st.Put(0, []byte("a"), []byte("2")))
	require.NoError(t, st.Put(0, []byte("b"), []byte("3")))
	require.NoError(t, st.EndWindow())

	require.NoError(t, st.(store.Restorer).Restore(0))

	v, found, err := st.Get(0, []byte("a"))
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), v)

	_, found, err = st.Get(0, []byte("b"))
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_NoCheckpointOrRestoreMidWindow(t *testing.T) {
	st := NewStore(context.Background())

	require.NoError(t, st.Checkpoint(0))
	require.NoError(t, st.BeginWindow(1))

	assert.ErrorIs(t, st.Checkpoint(1), store.ErrWindowOpen)
	assert.ErrorIs(t, st.(store.Restorer).Restore(0), store.ErrWindowOpen)

	require.NoError(t, st.EndWindow())
	assert.NoError(t, st.Checkpoint(1))
	assert.NoError(t, st.(store.Restorer).Restore(0))
}

func TestMemoryStore_RestoreUnknownWindow(t *testing.T) {
	st := NewStore(context.Background())
	assert.ErrorIs(t, st.(store.Restorer).Restore(42), store.ErrNoSuchCheckpoint)
}

func TestMemoryStore_CommittedReclaimsOldCheckpoints(t *testing.T) {
	st := NewStore(context.Background())

	require.NoError(t, st.Put(0, []byte("a"), []byte("1")))
	require.NoError(t, st.Checkpoint(0))
	require.NoError(t, st.Put(0, []byte("a"), []byte("2")))
	require.NoError(t, st.Checkpoint(1))

	require.NoError(t, st.Committed(1))

	assert.ErrorIs(t, st.(store.Restorer).Restore(0), store.ErrNoSuchCheckpoint)
	assert.NoError(t, st.(store.Restorer).Restore(1))
}

func TestMemoryStore_ClosedStore(t *testing.T) {
	st := NewStore(context.Background())
	require.NoError(t, st.Close())

	assert.ErrorIs(t, st.Put(0, []byte("k"), []byte("v")), store.ErrStoreClosed)
	_, _, err := st.Get(0, []byte("k"))
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.ErrorIs(t, st.BeginWindow(0), store.ErrStoreClosed)
}
