/*
Copyright 2023 The Statemill Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fs implements a durable store.Store. Live state is kept in ordered
// in-memory bucket trees; Checkpoint writes every bucket to a CRC-protected
// segment file and seals the set with a marker file, so recovery only ever
// sees checkpoints that were written out completely.
package fs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/btree"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

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

type fsStore struct {
	buckets       map[uint64]*btree.BTreeG[kvItem]
	currentWindow int64
	windowOpen    bool
	closed        bool
	opts          *options
	log           *zap.SugaredLogger
}

var _ store.Store = (*fsStore)(nil)
var _ store.Restorer = (*fsStore)(nil)

// NewStore returns a durable store writing checkpoint segments under the
// configured path. The directory is created if missing; existing checkpoints
// are left alone until Restore or Committed touches them.
func NewStore(ctx context.Context, opts ...Option) (store.Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(o.path, 0755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", o.path, err)
	}
	if err := sweepTempFiles(o.path); err != nil {
		return nil, fmt.Errorf("sweeping temp files under %s: %w", o.path, err)
	}
	return &fsStore{
		buckets: make(map[uint64]*btree.BTreeG[kvItem]),
		opts:    o,
		log:     logging.FromContext(ctx).With("store", "fs").With("path", o.path),
	}, nil
}

func (s *fsStore) bucket(bucket uint64) *btree.BTreeG[kvItem] {
	bt, ok := s.buckets[bucket]
	if !ok {
		bt = btree.NewG(btreeDegree, kvLess)
		s.buckets[bucket] = bt
	}
	return bt
}

func (s *fsStore) Get(bucket uint64, key []byte) ([]byte, bool, error) {
	if s.closed {
		return nil, false, store.ErrStoreClosed
	}
	bt, ok := s.buckets[bucket]
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

func (s *fsStore) Put(bucket uint64, key []byte, value []byte) error {
	if s.closed {
		return store.ErrStoreClosed
	}
	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)
	s.bucket(bucket).ReplaceOrInsert(kvItem{key: k, value: v})
	return nil
}

func (s *fsStore) Remove(bucket uint64, key []byte) error {
	if s.closed {
		return store.ErrStoreClosed
	}
	if bt, ok := s.buckets[bucket]; ok {
		bt.Delete(kvItem{key: key})
	}
	return nil
}

func (s *fsStore) BeginWindow(windowID int64) error {
	if s.closed {
		return store.ErrStoreClosed
	}
	s.currentWindow = windowID
	s.windowOpen = true
	return nil
}

func (s *fsStore) EndWindow() error {
	if s.closed {
		return store.ErrStoreClosed
	}
	s.windowOpen = false
	return nil
}

// Checkpoint writes every bucket to its own segment file, then seals the
// checkpoint with a marker file. Segment writers run concurrently; the trees
// they walk are copy-on-write clones, so the live state stays writable.
func (s *fsStore) Checkpoint(windowID int64) (err error) {
	defer func() {
		if err != nil {
			storeErrors.With(map[string]string{labelErrorKind: "checkpoint"}).Inc()
		}
	}()
	if s.closed {
		return store.ErrStoreClosed
	}
	if s.windowOpen {
		return fmt.Errorf("checkpoint %d during window %d: %w", windowID, s.currentWindow, store.ErrWindowOpen)
	}

	start := time.Now()
	totalEntries := atomic.NewInt64(0)

	g := new(errgroup.Group)
	g.SetLimit(s.opts.checkpointWriters)
	for b, bt := range s.buckets {
		b, snapshot := b, bt.Clone()
		g.Go(func() error {
			n, err := writeSegment(s.opts.path, windowID, b, snapshot)
			if err != nil {
				return fmt.Errorf("bucket %d: %w", b, err)
			}
			totalEntries.Add(n)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return fmt.Errorf("checkpoint %d: %w", windowID, err)
	}

	if err = s.writeMarker(windowID); err != nil {
		return fmt.Errorf("checkpoint %d: %w", windowID, err)
	}

	checkpointsCount.Inc()
	checkpointEntriesCount.Add(float64(totalEntries.Load()))
	checkpointWriteTime.Observe(float64(time.Since(start).Milliseconds()))
	s.log.Infow("Checkpoint complete", "windowID", windowID, "buckets", len(s.buckets), "entries", totalEntries.Load())
	return nil
}

// writeMarker seals a checkpoint. Until the marker exists the checkpoint's
// segments are invisible to discovery.
func (s *fsStore) writeMarker(windowID int64) error {
	fp, err := os.OpenFile(markerFilePath(s.opts.path, windowID), os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if err := fp.Sync(); err != nil {
		_ = fp.Close()
		return err
	}
	return fp.Close()
}

// Committed reclaims checkpoints strictly older than windowID.
func (s *fsStore) Committed(windowID int64) error {
	if s.closed {
		return store.ErrStoreClosed
	}
	start := time.Now()
	files, err := os.ReadDir(s.opts.path)
	if err != nil {
		return err
	}
	var errs error
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		// temp files here are leftovers from a writer that crashed before
		// the rename; no checkpoint writer is running outside Checkpoint
		if isTempFile(f.Name()) {
			errs = multierr.Append(errs, os.Remove(filepath.Join(s.opts.path, f.Name())))
			continue
		}
		w, ok := fileWindow(f.Name())
		if !ok || w >= windowID {
			continue
		}
		if err := os.Remove(filepath.Join(s.opts.path, f.Name())); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	garbageCollectingTime.Observe(float64(time.Since(start).Microseconds()))
	return errs
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// sweepTempFiles removes segment temp files an earlier incarnation left
// behind by crashing between write and rename.
func sweepTempFiles(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs error
	for _, f := range files {
		if f.IsDir() || !isTempFile(f.Name()) {
			continue
		}
		errs = multierr.Append(errs, os.Remove(filepath.Join(dir, f.Name())))
	}
	return errs
}

// Restore replaces the live state with the complete checkpoint taken at
// windowID.
func (s *fsStore) Restore(windowID int64) error {
	if s.closed {
		return store.ErrStoreClosed
	}
	if s.windowOpen {
		return fmt.Errorf("restore %d during window %d: %w", windowID, s.currentWindow, store.ErrWindowOpen)
	}
	if _, err := os.Stat(markerFilePath(s.opts.path, windowID)); os.IsNotExist(err) {
		return store.ErrNoSuchCheckpoint
	} else if err != nil {
		return err
	}

	files, err := os.ReadDir(s.opts.path)
	if err != nil {
		return err
	}
	buckets := make(map[uint64]*btree.BTreeG[kvItem])
	prefix := fmt.Sprintf("%s_%d.", SegmentPrefix, windowID)
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), prefix) {
			continue
		}
		seg, err := ReadSegment(filepath.Join(s.opts.path, f.Name()))
		if err != nil {
			return fmt.Errorf("restore %d: %w", windowID, err)
		}
		bt := btree.NewG(btreeDegree, kvLess)
		for _, e := range seg.Entries {
			bt.ReplaceOrInsert(kvItem{key: e.Key, value: e.Value})
		}
		buckets[seg.Bucket] = bt
	}
	s.buckets = buckets
	s.windowOpen = false
	s.currentWindow = windowID
	s.log.Infow("Restored from checkpoint", "windowID", windowID, "buckets", len(buckets))
	return nil
}

func (s *fsStore) Close() error {
	s.closed = true
	s.buckets = nil
	return nil
}

// fileWindow extracts the window id from a segment or marker file name.
func fileWindow(name string) (int64, bool) {
	var rest string
	switch {
	case strings.HasPrefix(name, SegmentPrefix+"_"):
		rest = strings.TrimPrefix(name, SegmentPrefix+"_")
		if i := strings.IndexByte(rest, '.'); i >= 0 {
			rest = rest[:i]
		}
	case strings.HasPrefix(name, MarkerPrefix+"_"):
		rest = strings.TrimPrefix(name, MarkerPrefix+"_")
	default:
		return 0, false
	}
	w, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return w, true
}
