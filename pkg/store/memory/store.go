package memory

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/statemill/statemill/pkg/shared/logging"
	"github.com/statemill/statemill/pkg/store"
)

const btreeDegree = 32

// kvItem is one (key, value) entry in a bucket tree, ordered by key bytes.
type kvItem struct {
	key   []byte
	value []byte
}

func kvLess(a, b kvItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// memoryStore implements store.Store entirely in memory. Checkpoints are
// copy-on-write clones of the bucket trees, so taking one is cheap and
// restoring one discards everything written since.
type memoryStore struct {
	buckets       map[uint64]*btree.BTreeG[kvItem]
	checkpoints   map[int64]map[uint64]*btree.BTreeG[kvItem]
	currentWindow int64
	windowOpen    bool
	closed        bool
	log           *zap.SugaredLogger
}

var _ store.Store = (*memoryStore)(nil)
var _ store.Restorer = (*memoryStore)(nil)

// NewStore returns a new in-memory store.
func NewStore(ctx context.Context) store.Store {
	return &memoryStore{
		buckets:     make(map[uint64]*btree.BTreeG[kvItem]),
		checkpoints: make(map[int64]map[uint64]*btree.BTreeG[kvItem]),
		log:         logging.FromContext(ctx).With("store", "memory"),
	}
}

func (m *memoryStore) bucket(bucket uint64) *btree.BTreeG[kvItem] {
	bt, ok := m.buckets[bucket]
	if !ok {
		bt = btree.NewG(btreeDegree, kvLess)
		m.buckets[bucket] = bt
	}
	return bt
}

func (m *memoryStore) Get(bucket uint64, key []byte) ([]byte, bool, error) {
	if m.closed {
		return nil, false, store.ErrStoreClosed
	}
	bt, ok := m.buckets[bucket]
	if !ok {
		return nil, false, nil
	}
	item, found := bt.Get(kvItem{key: key})
	if !found {
		return nil, false, nil
	}
	// copy out, the tree's slice must not be reachable by callers
	v := make([]byte, len(item.value))
	copy(v, item.value)
	return v, true, nil
}

func (m *memoryStore) Put(bucket uint64, key []byte, value []byte) error {
	if m.closed {
		return store.ErrStoreClosed
	}
	// copy so later caller mutation of the slices cannot corrupt the tree
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	m.bucket(bucket).ReplaceOrInsert(kvItem{key: k, value: v})
	return nil
}

func (m *memoryStore) Remove(bucket uint64, key []byte) error {
	if m.closed {
		return store.ErrStoreClosed
	}
	if bt, ok := m.buckets[bucket]; ok {
		bt.Delete(kvItem{key: key})
	}
	return nil
}

func (m *memoryStore) BeginWindow(windowID int64) error {
	if m.closed {
		return store.ErrStoreClosed
	}
	m.currentWindow = windowID
	m.windowOpen = true
	return nil
}

func (m *memoryStore) EndWindow() error {
	if m.closed {
		return store.ErrStoreClosed
	}
	m.windowOpen = false
	return nil
}

// Checkpoint snapshots every bucket tree. Clone is copy-on-write, writes
// after the checkpoint do not leak into it.
func (m *memoryStore) Checkpoint(windowID int64) error {
	if m.closed {
		return store.ErrStoreClosed
	}
	if m.windowOpen {
		return fmt.Errorf("checkpoint %d during window %d: %w", windowID, m.currentWindow, store.ErrWindowOpen)
	}
	snapshot := make(map[uint64]*btree.BTreeG[kvItem], len(m.buckets))
	for b, bt := range m.buckets {
		snapshot[b] = bt.Clone()
	}
	m.checkpoints[windowID] = snapshot
	m.log.Debugw("Took checkpoint", "windowID", windowID, "buckets", len(snapshot))
	return nil
}

// Committed drops checkpoints older than windowID, the caller guarantees
// they will never be restored.
func (m *memoryStore) Committed(windowID int64) error {
	if m.closed {
		return store.ErrStoreClosed
	}
	for w := range m.checkpoints {
		if w < windowID {
			delete(m.checkpoints, w)
		}
	}
	return nil
}

// Restore rewinds the live state to the checkpoint taken at windowID.
func (m *memoryStore) Restore(windowID int64) error {
	if m.closed {
		return store.ErrStoreClosed
	}
	if m.windowOpen {
		return fmt.Errorf("restore %d during window %d: %w", windowID, m.currentWindow, store.ErrWindowOpen)
	}
	snapshot, ok := m.checkpoints[windowID]
	if !ok {
		return store.ErrNoSuchCheckpoint
	}
	restored := make(map[uint64]*btree.BTreeG[kvItem], len(snapshot))
	for b, bt := range snapshot {
		restored[b] = bt.Clone()
	}
	m.buckets = restored
	m.windowOpen = false
	m.currentWindow = windowID
	m.log.Infow("Restored from checkpoint", "windowID", windowID)
	return nil
}

func (m *memoryStore) Close() error {
	m.closed = true
	m.buckets = nil
	m.checkpoints = nil
	return nil
}
