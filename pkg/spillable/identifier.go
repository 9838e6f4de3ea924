package spillable

import (
	"encoding/binary"
	"fmt"
)

// key suffix markers, distinguishing a structure's element entries from its
// metadata entry within the identifier's namespace
const (
	elementMarker byte = 0x00
	metaMarker    byte = 0x01
)

// autoNamePrefix starts every synthesized name so they sort apart from the
// typical user-supplied name.
const autoNamePrefix byte = 0x00

// Identifier names one spillable structure's key range inside a bucket.
// Structures sharing a bucket never share an identifier.
type Identifier struct {
	Bucket uint64
	Name   []byte
}

// Key returns the store key for suffix inside the identifier's namespace.
// The name is length-prefixed, which keeps distinct names prefix-free: a
// structure can never read a key belonging to another structure in the same
// bucket, even when one name is a prefix of the other.
func (id Identifier) Key(suffix []byte) []byte {
	key := make([]byte, 2+len(id.Name)+len(suffix))
	binary.BigEndian.PutUint16(key, uint16(len(id.Name)))
	copy(key[2:], id.Name)
	copy(key[2+len(id.Name):], suffix)
	return key
}

func (id Identifier) String() string {
	return fmt.Sprintf("%d/%q", id.Bucket, id.Name)
}

// Allocator hands out unique identifiers. A name is never reused within one
// allocator's lifetime, even after the owning structure is logically gone, so
// stale store keys of a removed structure can never be misread as live data
// by a newer structure.
type Allocator struct {
	used map[string]struct{}
	next uint64
}

func NewAllocator() *Allocator {
	return &Allocator{used: make(map[string]struct{})}
}

// Allocate returns an identifier for name in bucket. Allocating a name that
// is already in use fails with ErrDuplicateName. A nil or empty name is
// synthesized from a monotonic counter and never collides.
func (a *Allocator) Allocate(bucket uint64, name []byte) (Identifier, error) {
	if len(name) == 0 {
		name = a.nextName()
	}
	if len(name) > 1<<16-1 {
		return Identifier{}, fmt.Errorf("allocate: name of %d bytes exceeds the 65535 byte limit", len(name))
	}
	if _, ok := a.used[string(name)]; ok {
		return Identifier{}, fmt.Errorf("allocate %q: %w", name, ErrDuplicateName)
	}
	a.used[string(name)] = struct{}{}

	id := Identifier{Bucket: bucket, Name: make([]byte, len(name))}
	copy(id.Name, name)
	return id, nil
}

func (a *Allocator) nextName() []byte {
	for {
		name := make([]byte, 9)
		name[0] = autoNamePrefix
		binary.BigEndian.PutUint64(name[1:], a.next)
		a.next++
		if _, ok := a.used[string(name)]; !ok {
			return name
		}
	}
}
