package spillable

import "context"

// Component is the windowed lifecycle contract. Both the orchestrator and
// every spillable structure implement it; any type implementing these calls
// can be driven by the surrounding engine, there is no base type to extend.
type Component interface {
	// Setup is called once before the first window. It may read persisted
	// state left by an earlier incarnation.
	Setup(ctx context.Context) error
	// BeginWindow opens window windowID. Ids are strictly increasing; the
	// component must accept mutations afterward.
	BeginWindow(windowID int64) error
	// EndWindow closes the currently open window and flushes buffered
	// mutations to the backing store.
	EndWindow() error
	// Checkpoint is called at an engine-decided durability point, always
	// between windows.
	Checkpoint(windowID int64) error
	// Committed signals that every window <= windowID is durable
	// everywhere. Advisory, used to reclaim old versions.
	Committed(windowID int64) error
	// Teardown releases resources. No further calls follow.
	Teardown() error
}

// lifecycleState tracks where a component is in the Component contract.
type lifecycleState int

const (
	// stateCreated: constructed, Setup not called yet
	stateCreated lifecycleState = iota
	// stateReady: set up, no window open
	stateReady
	// stateInWindow: between BeginWindow and EndWindow
	stateInWindow
	// stateTornDown: Teardown called, unusable
	stateTornDown
)

func (s lifecycleState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateReady:
		return "ready"
	case stateInWindow:
		return "in-window"
	case stateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}
