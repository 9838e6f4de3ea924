package spillable

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocator_DuplicateName(t *testing.T) {
	a := NewAllocator()

	id, err := a.Allocate(0, []byte("counts"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("counts"), id.Name)

	_, err = a.Allocate(0, []byte("counts"))
	assert.ErrorIs(t, err, ErrDuplicateName)

	// the name is taken for the allocator's lifetime, bucket does not matter
	_, err = a.Allocate(7, []byte("counts"))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestAllocator_AutoNamesNeverCollide(t *testing.T) {
	a := NewAllocator()

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := a.Allocate(0, nil)
		assert.NoError(t, err)
		_, dup := seen[string(id.Name)]
		assert.False(t, dup)
		seen[string(id.Name)] = struct{}{}
	}
}

func TestAllocator_AutoNamesSkipTakenNames(t *testing.T) {
	a := NewAllocator()

	// take the exact bytes the first auto name would use
	first := append([]byte{autoNamePrefix}, make([]byte, 8)...)
	_, err := a.Allocate(0, first)
	assert.NoError(t, err)

	id, err := a.Allocate(0, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, first, id.Name)
}

func TestIdentifier_KeysArePrefixFree(t *testing.T) {
	a := NewAllocator()
	short, err := a.Allocate(0, []byte("a"))
	assert.NoError(t, err)
	long, err := a.Allocate(0, []byte("ab"))
	assert.NoError(t, err)

	// name "a" with suffix "bX" must not land inside "ab"'s key range
	k1 := short.Key([]byte("bX"))
	k2 := long.Key([]byte("X"))
	assert.False(t, bytes.Equal(k1, k2))
	assert.False(t, bytes.HasPrefix(k2, short.Key(nil)))
}

func TestIdentifier_KeyLayout(t *testing.T) {
	id := Identifier{Bucket: 3, Name: []byte("x")}
	key := id.Key([]byte{0x01})
	assert.Equal(t, []byte{0x00, 0x01, 'x', 0x01}, key)
}
