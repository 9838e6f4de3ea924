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

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupEnvStringOr(t *testing.T) {
	assert.Equal(t, "default", LookupEnvStringOr("FAKE_ENV_STATEMILL", "default"))
	t.Setenv("FAKE_ENV_STATEMILL", "value")
	assert.Equal(t, "value", LookupEnvStringOr("FAKE_ENV_STATEMILL", "default"))
}

func TestLookupEnvIntOr(t *testing.T) {
	assert.Equal(t, 5, LookupEnvIntOr("FAKE_ENV_STATEMILL_INT", 5))
	t.Setenv("FAKE_ENV_STATEMILL_INT", "7")
	assert.Equal(t, 7, LookupEnvIntOr("FAKE_ENV_STATEMILL_INT", 5))
	t.Setenv("FAKE_ENV_STATEMILL_INT", "not-a-number")
	assert.Panics(t, func() { LookupEnvIntOr("FAKE_ENV_STATEMILL_INT", 5) })
}
