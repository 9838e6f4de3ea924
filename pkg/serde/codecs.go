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

package serde

import (
	"encoding/binary"
	"fmt"
	"math"
)

// String encodes a string as its raw bytes.
type String struct{}

func (String) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

func (String) Decode(b []byte) (string, error) {
	return string(b), nil
}

// Bytes passes byte slices through, copying so the caller cannot alias
// buffered state.
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, error) {
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (Bytes) Decode(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Int64 encodes an int64 as 8 bytes big endian.
type Int64 struct{}

func (Int64) Encode(v int64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b, nil
}

func (Int64) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("int64 decode: expected 8 bytes, got %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Int encodes the native int through the Int64 encoding.
type Int struct{}

func (Int) Encode(v int) ([]byte, error) {
	return Int64{}.Encode(int64(v))
}

func (Int) Decode(b []byte) (int, error) {
	v, err := Int64{}.Decode(b)
	return int(v), err
}

// Float64 encodes a float64 by its IEEE 754 bit pattern, 8 bytes big endian.
type Float64 struct{}

func (Float64) Encode(v float64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b, nil
}

func (Float64) Decode(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("float64 decode: expected 8 bytes, got %d", len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}
