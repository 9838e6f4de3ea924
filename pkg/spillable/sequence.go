package spillable

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/statemill/statemill/pkg/serde"
	"github.com/statemill/statemill/pkg/shared/logging"
	"github.com/statemill/statemill/pkg/store"
)

// Sequence is a spillable append/random-access list. Elements written during
// the open window stay in an in-memory buffer; EndWindow writes them through
// to the store and clears the buffer. Reads always check the buffer first, so
// a write is visible to its own structure immediately (read-your-own-write),
// spilled or not.
//
// Sequence is not safe for concurrent use; a single logical thread drives
// each component.
type Sequence[T any] struct {
	id    Identifier
	store store.Store
	serde serde.Serde[T]
	// length is the element count, maintained incrementally and persisted
	// in the metadata entry at every flush so it survives recovery
	length int64
	buffer map[int64]T
	state  lifecycleState
	log    *zap.SugaredLogger
}

var _ Component = (*Sequence[string])(nil)

func newSequence[T any](id Identifier, st store.Store, sd serde.Serde[T]) *Sequence[T] {
	return &Sequence[T]{
		id:     id,
		store:  st,
		serde:  sd,
		buffer: make(map[int64]T),
	}
}

// ID returns the identifier naming this sequence's key range.
func (s *Sequence[T]) ID() Identifier {
	return s.id
}

// Size returns the number of elements. O(1), the count is maintained, never
// recomputed from the store.
func (s *Sequence[T]) Size() int64 {
	return s.length
}

// Get returns the element at index. Fails with ErrIndexOutOfRange if index
// is negative or >= Size().
func (s *Sequence[T]) Get(index int64) (T, error) {
	var zero T
	if s.state != stateReady && s.state != stateInWindow {
		return zero, fmt.Errorf("sequence %s get: state %s: %w", s.id, s.state, ErrInvalidLifecycleState)
	}
	if index < 0 || index >= s.length {
		return zero, fmt.Errorf("sequence %s get: index %d, size %d: %w", s.id, index, s.length, ErrIndexOutOfRange)
	}
	if v, ok := s.buffer[index]; ok {
		return v, nil
	}
	raw, found, err := s.store.Get(s.id.Bucket, s.elementKey(index))
	if err != nil {
		return zero, fmt.Errorf("sequence %s get index %d: %w", s.id, index, err)
	}
	if !found {
		return zero, fmt.Errorf("sequence %s get index %d: entry missing from store", s.id, index)
	}
	v, err := s.serde.Decode(raw)
	if err != nil {
		return zero, fmt.Errorf("sequence %s decode index %d: %w", s.id, index, err)
	}
	return v, nil
}

// Add appends value at Size(). The element is buffered, not written through.
func (s *Sequence[T]) Add(value T) error {
	if s.state != stateInWindow {
		return fmt.Errorf("sequence %s add: state %s: %w", s.id, s.state, ErrInvalidLifecycleState)
	}
	s.buffer[s.length] = value
	s.length++
	return nil
}

// Set replaces the element at index, buffer-first like Add.
func (s *Sequence[T]) Set(index int64, value T) error {
	if s.state != stateInWindow {
		return fmt.Errorf("sequence %s set: state %s: %w", s.id, s.state, ErrInvalidLifecycleState)
	}
	if index < 0 || index >= s.length {
		return fmt.Errorf("sequence %s set: index %d, size %d: %w", s.id, index, s.length, ErrIndexOutOfRange)
	}
	s.buffer[index] = value
	return nil
}

// Setup restores the persisted length, if an earlier incarnation flushed one.
func (s *Sequence[T]) Setup(ctx context.Context) error {
	if s.state != stateCreated {
		return fmt.Errorf("sequence %s setup: state %s: %w", s.id, s.state, ErrInvalidLifecycleState)
	}
	s.log = logging.FromContext(ctx).With("spillable", "sequence").With("id", s.id.String())
	raw, found, err := s.store.Get(s.id.Bucket, s.metaKey())
	if err != nil {
		return fmt.Errorf("sequence %s setup: %w", s.id, err)
	}
	if found {
		n, err := serde.Int64{}.Decode(raw)
		if err != nil {
			return fmt.Errorf("sequence %s setup: decode length: %w", s.id, err)
		}
		s.length = n
	}
	s.state = stateReady
	return nil
}

func (s *Sequence[T]) BeginWindow(windowID int64) error {
	if s.state != stateReady {
		return fmt.Errorf("sequence %s begin window %d: state %s: %w", s.id, windowID, s.state, ErrInvalidLifecycleState)
	}
	s.state = stateInWindow
	return nil
}

// EndWindow spills every buffered element, then the length metadata, and
// clears the buffer. Entries are written in index order so the flush is
// deterministic per run.
func (s *Sequence[T]) EndWindow() error {
	if s.state != stateInWindow {
		return fmt.Errorf("sequence %s end window: state %s: %w", s.id, s.state, ErrInvalidLifecycleState)
	}
	indices := make([]int64, 0, len(s.buffer))
	for i := range s.buffer {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	for _, i := range indices {
		raw, err := s.serde.Encode(s.buffer[i])
		if err != nil {
			return fmt.Errorf("sequence %s encode index %d: %w", s.id, i, err)
		}
		if err := s.store.Put(s.id.Bucket, s.elementKey(i), raw); err != nil {
			return fmt.Errorf("sequence %s spill index %d: %w", s.id, i, err)
		}
	}
	lengthRaw, err := serde.Int64{}.Encode(s.length)
	if err != nil {
		return fmt.Errorf("sequence %s encode length: %w", s.id, err)
	}
	if err := s.store.Put(s.id.Bucket, s.metaKey(), lengthRaw); err != nil {
		return fmt.Errorf("sequence %s spill length: %w", s.id, err)
	}
	spilledEntriesCount.WithLabelValues("sequence").Add(float64(len(indices)))
	s.log.Debugw("Spilled buffered elements", "entries", len(indices), "length", s.length)
	s.buffer = make(map[int64]T)
	s.state = stateReady
	return nil
}

// Checkpoint is a no-op; the buffer is already empty after EndWindow.
func (s *Sequence[T]) Checkpoint(windowID int64) error {
	return nil
}

func (s *Sequence[T]) Committed(windowID int64) error {
	return nil
}

func (s *Sequence[T]) Teardown() error {
	if s.state == stateTornDown {
		return nil
	}
	s.buffer = nil
	s.state = stateTornDown
	activeStructuresCount.WithLabelValues("sequence").Dec()
	return nil
}

func (s *Sequence[T]) elementKey(index int64) []byte {
	suffix := make([]byte, 9)
	suffix[0] = elementMarker
	binary.BigEndian.PutUint64(suffix[1:], uint64(index))
	return s.id.Key(suffix)
}

func (s *Sequence[T]) metaKey() []byte {
	return s.id.Key([]byte{metaMarker})
}
