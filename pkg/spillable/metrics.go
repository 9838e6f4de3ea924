package spillable

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const labelStructure = "structure"

// spilledEntriesCount counts buffered entries written through to the store
// at window boundaries.
var spilledEntriesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "spillable",
	Name:      "spilled_entries_total",
	Help:      "Total number of buffered entries spilled to the backing store",
}, []string{labelStructure})

var activeStructuresCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "spillable",
	Name:      "active_structures",
	Help:      "Number of live spillable structures",
}, []string{labelStructure})
