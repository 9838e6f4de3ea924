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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const labelErrorKind = "kind"

var checkpointsCount = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "store_fs",
	Name:      "checkpoints_total",
	Help:      "Total number of checkpoints taken",
})

var checkpointEntriesCount = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "store_fs",
	Name:      "checkpoint_entries_total",
	Help:      "Total number of entries written across all checkpoint segments",
})

var checkpointWriteTime = promauto.NewHistogram(prometheus.HistogramOpts{
	Subsystem: "store_fs",
	Name:      "checkpoint_write_time",
	Help:      "Checkpoint write time (1 to 5000 milliseconds)",
	Buckets:   prometheus.ExponentialBucketsRange(1, 5000, 5),
})

var garbageCollectingTime = promauto.NewHistogram(prometheus.HistogramOpts{
	Subsystem: "store_fs",
	Name:      "checkpoint_gc_time",
	Help:      "Time spent reclaiming committed checkpoints (100 to 5000 microseconds)",
	Buckets:   prometheus.ExponentialBucketsRange(100, 5000, 5),
})

var storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "store_fs",
	Name:      "errors",
	Help:      "Errors encountered",
}, []string{labelErrorKind})
