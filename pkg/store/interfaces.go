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

// Package store defines the ordered byte store every spillable structure
// spills into. A store is partitioned into numeric buckets; keys are opaque
// byte slices ordered lexicographically within a bucket. The physical layout
// (in-memory, file segments, ...) is an implementation concern.
package store

// Store provides methods to read and write bucket-scoped byte entries and to
// participate in the window lifecycle of whatever drives it.
//
// A Put must be visible to a subsequent Get in the same bucket immediately,
// whether or not the current window has been checkpointed. When a store is
// physically spilling is its own business; callers only rely on Get/Put
// staying correct across it.
type Store interface {
	// Get returns the most recently put value for key in bucket.
	// A key that was never written (or was removed) returns found=false,
	// not an error.
	Get(bucket uint64, key []byte) (value []byte, found bool, err error)
	// Put writes or buffers a value.
	Put(bucket uint64, key []byte, value []byte) error
	// Remove deletes a key. Removing an absent key is not an error.
	Remove(bucket uint64, key []byte) error

	// BeginWindow marks the start of window windowID.
	BeginWindow(windowID int64) error
	// EndWindow closes the currently open window.
	EndWindow() error
	// Checkpoint makes all state up to and including windowID durable.
	Checkpoint(windowID int64) error
	// Committed tells the store every window <= windowID is durable
	// everywhere, so older checkpoint versions can be reclaimed.
	Committed(windowID int64) error

	// Close releases the store. No calls may follow.
	Close() error
}

// Restorer is implemented by stores that can rewind their live state to a
// previously taken checkpoint.
type Restorer interface {
	// Restore replaces the live state with the checkpoint taken at
	// windowID.
	Restore(windowID int64) error
}
