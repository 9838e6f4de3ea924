package spillable

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/statemill/statemill/pkg/serde"
	"github.com/statemill/statemill/pkg/shared/logging"
	"github.com/statemill/statemill/pkg/store"
)

// dirtyEntry is one buffered mutation: either a pending value or a
// tombstone for a pending remove.
type dirtyEntry[V any] struct {
	value     V
	tombstone bool
}

// Map is a spillable key to value structure. Keys are serialized once, at
// mutation time, and the encoded bytes form the store key suffix inside the
// map's namespace; the key serde must therefore be deterministic and
// injective, two keys that encode identically are the same key. Values are
// buffered decoded and only serialized when spilled at EndWindow.
//
// Map is not safe for concurrent use.
type Map[K any, V any] struct {
	id         Identifier
	store      store.Store
	keySerde   serde.Serde[K]
	valueSerde serde.Serde[V]
	// size is maintained incrementally, insert of a new key increments,
	// remove of a present key decrements; persisted at every flush
	size  int64
	dirty map[string]dirtyEntry[V]
	state lifecycleState
	log   *zap.SugaredLogger
}

var _ Component = (*Map[string, string])(nil)

func newMap[K any, V any](id Identifier, st store.Store, ks serde.Serde[K], vs serde.Serde[V]) *Map[K, V] {
	return &Map[K, V]{
		id:         id,
		store:      st,
		keySerde:   ks,
		valueSerde: vs,
		dirty:      make(map[string]dirtyEntry[V]),
	}
}

// ID returns the identifier naming this map's key range.
func (m *Map[K, V]) ID() Identifier {
	return m.id
}

// Size returns the number of keys present. O(1).
func (m *Map[K, V]) Size() int64 {
	return m.size
}

// Get returns the value for key, or found=false if the key is absent.
// Absence is not an error.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var zero V
	if m.state != stateReady && m.state != stateInWindow {
		return zero, false, fmt.Errorf("map %s get: state %s: %w", m.id, m.state, ErrInvalidLifecycleState)
	}
	enc, err := m.keySerde.Encode(key)
	if err != nil {
		return zero, false, fmt.Errorf("map %s encode key %v: %w", m.id, key, err)
	}
	if e, ok := m.dirty[string(enc)]; ok {
		if e.tombstone {
			return zero, false, nil
		}
		return e.value, true, nil
	}
	raw, found, err := m.store.Get(m.id.Bucket, m.elementKey(enc))
	if err != nil {
		return zero, false, fmt.Errorf("map %s get key %v: %w", m.id, key, err)
	}
	if !found {
		return zero, false, nil
	}
	v, err := m.valueSerde.Decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("map %s decode value for key %v: %w", m.id, key, err)
	}
	return v, true, nil
}

// ContainsKey reports whether key is present, without decoding its value.
func (m *Map[K, V]) ContainsKey(key K) (bool, error) {
	if m.state != stateReady && m.state != stateInWindow {
		return false, fmt.Errorf("map %s contains: state %s: %w", m.id, m.state, ErrInvalidLifecycleState)
	}
	enc, err := m.keySerde.Encode(key)
	if err != nil {
		return false, fmt.Errorf("map %s encode key %v: %w", m.id, key, err)
	}
	return m.present(enc)
}

// present reports presence for an already-encoded key, buffer first.
func (m *Map[K, V]) present(enc []byte) (bool, error) {
	if e, ok := m.dirty[string(enc)]; ok {
		return !e.tombstone, nil
	}
	_, found, err := m.store.Get(m.id.Bucket, m.elementKey(enc))
	if err != nil {
		return false, fmt.Errorf("map %s get: %w", m.id, err)
	}
	return found, nil
}

// Put buffers a key/value pair. The value is not written through until
// EndWindow.
func (m *Map[K, V]) Put(key K, value V) error {
	if m.state != stateInWindow {
		return fmt.Errorf("map %s put: state %s: %w", m.id, m.state, ErrInvalidLifecycleState)
	}
	enc, err := m.keySerde.Encode(key)
	if err != nil {
		return fmt.Errorf("map %s encode key %v: %w", m.id, key, err)
	}
	was, err := m.present(enc)
	if err != nil {
		return err
	}
	if !was {
		m.size++
	}
	m.dirty[string(enc)] = dirtyEntry[V]{value: value}
	return nil
}

// Remove buffers a tombstone for key. Removing an absent key is a no-op.
func (m *Map[K, V]) Remove(key K) error {
	if m.state != stateInWindow {
		return fmt.Errorf("map %s remove: state %s: %w", m.id, m.state, ErrInvalidLifecycleState)
	}
	enc, err := m.keySerde.Encode(key)
	if err != nil {
		return fmt.Errorf("map %s encode key %v: %w", m.id, key, err)
	}
	was, err := m.present(enc)
	if err != nil {
		return err
	}
	if was {
		m.size--
	}
	m.dirty[string(enc)] = dirtyEntry[V]{tombstone: true}
	return nil
}

// Setup restores the persisted size, if an earlier incarnation flushed one.
func (m *Map[K, V]) Setup(ctx context.Context) error {
	if m.state != stateCreated {
		return fmt.Errorf("map %s setup: state %s: %w", m.id, m.state, ErrInvalidLifecycleState)
	}
	m.log = logging.FromContext(ctx).With("spillable", "map").With("id", m.id.String())
	raw, found, err := m.store.Get(m.id.Bucket, m.metaKey())
	if err != nil {
		return fmt.Errorf("map %s setup: %w", m.id, err)
	}
	if found {
		n, err := serde.Int64{}.Decode(raw)
		if err != nil {
			return fmt.Errorf("map %s setup: decode size: %w", m.id, err)
		}
		m.size = n
	}
	m.state = stateReady
	return nil
}

func (m *Map[K, V]) BeginWindow(windowID int64) error {
	if m.state != stateReady {
		return fmt.Errorf("map %s begin window %d: state %s: %w", m.id, windowID, m.state, ErrInvalidLifecycleState)
	}
	m.state = stateInWindow
	return nil
}

// EndWindow spills every dirty entry (puts and tombstones), then the size
// metadata, and clears the buffer. Entries are written in encoded-key order
// so the flush is deterministic per run.
func (m *Map[K, V]) EndWindow() error {
	if m.state != stateInWindow {
		return fmt.Errorf("map %s end window: state %s: %w", m.id, m.state, ErrInvalidLifecycleState)
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := m.dirty[k]
		storeKey := m.elementKey([]byte(k))
		if e.tombstone {
			if err := m.store.Remove(m.id.Bucket, storeKey); err != nil {
				return fmt.Errorf("map %s spill remove: %w", m.id, err)
			}
			continue
		}
		raw, err := m.valueSerde.Encode(e.value)
		if err != nil {
			return fmt.Errorf("map %s encode value for key %q: %w", m.id, k, err)
		}
		if err := m.store.Put(m.id.Bucket, storeKey, raw); err != nil {
			return fmt.Errorf("map %s spill put: %w", m.id, err)
		}
	}
	sizeRaw, err := serde.Int64{}.Encode(m.size)
	if err != nil {
		return fmt.Errorf("map %s encode size: %w", m.id, err)
	}
	if err := m.store.Put(m.id.Bucket, m.metaKey(), sizeRaw); err != nil {
		return fmt.Errorf("map %s spill size: %w", m.id, err)
	}
	spilledEntriesCount.WithLabelValues("map").Add(float64(len(keys)))
	m.log.Debugw("Spilled buffered entries", "entries", len(keys), "size", m.size)
	m.dirty = make(map[string]dirtyEntry[V])
	m.state = stateReady
	return nil
}

// Checkpoint is a no-op; the buffer is already empty after EndWindow.
func (m *Map[K, V]) Checkpoint(windowID int64) error {
	return nil
}

func (m *Map[K, V]) Committed(windowID int64) error {
	return nil
}

func (m *Map[K, V]) Teardown() error {
	if m.state == stateTornDown {
		return nil
	}
	m.dirty = nil
	m.state = stateTornDown
	activeStructuresCount.WithLabelValues("map").Dec()
	return nil
}

func (m *Map[K, V]) elementKey(encodedKey []byte) []byte {
	suffix := make([]byte, 1+len(encodedKey))
	suffix[0] = elementMarker
	copy(suffix[1:], encodedKey)
	return m.id.Key(suffix)
}

func (m *Map[K, V]) metaKey() []byte {
	return m.id.Key([]byte{metaMarker})
}
