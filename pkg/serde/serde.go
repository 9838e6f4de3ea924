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

// Package serde defines the serializer contract the spillable structures are
// parameterized with. Encodings must be deterministic and injective for the
// supported inputs, because encoded keys double as store keys.
package serde

// Serde encodes and decodes values of one type. The round-trip law
// Decode(Encode(v)) == v must hold for every valid v.
type Serde[T any] interface {
	// Encode serializes v. The output must be deterministic, the same v
	// always encodes to the same bytes.
	Encode(v T) ([]byte, error)
	// Decode deserializes b. Decode returns an error if b is not a valid
	// encoding produced by Encode.
	Decode(b []byte) (T, error)
}
