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

package fs

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/btree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(n int) *btree.BTreeG[kvItem] {
	bt := btree.NewG(btreeDegree, kvLess)
	for i := 0; i < n; i++ {
		bt.ReplaceOrInsert(kvItem{
			key:   []byte(fmt.Sprintf("key-%03d", i)),
			value: []byte(fmt.Sprintf("value-%03d", i)),
		})
	}
	return bt
}

func TestSegment_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	written, err := writeSegment(dir, 7, 3, buildTree(50))
	require.NoError(t, err)
	assert.Equal(t, int64(50), written)

	seg, err := ReadSegment(segmentFilePath(dir, 7, 3))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seg.Bucket)
	assert.Equal(t, int64(7), seg.WindowID)
	require.Len(t, seg.Entries, 50)
	// entries come back in key order
	assert.Equal(t, []byte("key-000"), seg.Entries[0].Key)
	assert.Equal(t, []byte("value-049"), seg.Entries[49].Value)
}

func TestSegment_EmptyBucket(t *testing.T) {
	dir := t.TempDir()

	written, err := writeSegment(dir, 0, 0, buildTree(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), written)

	seg, err := ReadSegment(segmentFilePath(dir, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, seg.Entries)
}

func TestSegment_CorruptionDetected(t *testing.T) {
	dir := t.TempDir()

	_, err := writeSegment(dir, 1, 0, buildTree(10))
	require.NoError(t, err)

	path := segmentFilePath(dir, 1, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// flip a byte inside the last entry's value
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = ReadSegment(path)
	assert.ErrorIs(t, err, errChecksumMismatch)
}

func TestSegment_CorruptEntryLength(t *testing.T) {
	dir := t.TempDir()

	_, err := writeSegment(dir, 1, 0, buildTree(10))
	require.NoError(t, err)

	path := segmentFilePath(dir, 1, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// the first entry preamble starts right after the 32-byte header; flip
	// the sign bit of its little-endian key-len
	raw[35] |= 0x80
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = ReadSegment(path)
	assert.ErrorIs(t, err, errCorruptLength)
}

func TestSegment_CorruptEntryCount(t *testing.T) {
	dir := t.TempDir()

	_, err := writeSegment(dir, 1, 0, buildTree(10))
	require.NoError(t, err)

	path := segmentFilePath(dir, 1, 0)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// absurdly large count: the reader must run out of file and error, not
	// allocate for entries that cannot exist
	raw[30] = 0x7f
	require.NoError(t, os.WriteFile(path, raw, 0644))
	_, err = ReadSegment(path)
	assert.Error(t, err)

	// negative count
	raw[31] = 0xff
	require.NoError(t, os.WriteFile(path, raw, 0644))
	_, err = ReadSegment(path)
	assert.ErrorIs(t, err, errCorruptLength)
}

func TestSegment_NotASegmentFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/garbage"
	require.NoError(t, os.WriteFile(path, []byte("this is not a segment file at all"), 0644))

	_, err := ReadSegment(path)
	assert.ErrorIs(t, err, errBadMagic)
}

func TestSegment_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()

	_, err := writeSegment(dir, 2, 1, buildTree(5))
	require.NoError(t, err)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "segment_2.1", files[0].Name())
}
