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

	sharedutil "github.com/statemill/statemill/pkg/shared/util"
)

type options struct {
	// path is the directory checkpoint segments are written to
	path string
	// checkpointWriters caps the number of concurrent segment writers
	// during a checkpoint
	checkpointWriters int
}

func defaultOptions() *options {
	return &options{
		path:              sharedutil.LookupEnvStringOr("STATEMILL_DATA_DIR", "/var/run/statemill/store"),
		checkpointWriters: sharedutil.LookupEnvIntOr("STATEMILL_CHECKPOINT_WRITERS", 4),
	}
}

type Option func(*options) error

// WithPath sets the directory used for checkpoint segments.
func WithPath(path string) Option {
	return func(o *options) error {
		o.path = path
		return nil
	}
}

// WithCheckpointWriters sets the number of concurrent segment writers.
func WithCheckpointWriters(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("checkpoint writers must be >= 1, got %d", n)
		}
		o.checkpointWriters = n
		return nil
	}
}
