package spillable

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/statemill/statemill/pkg/serde"
	"github.com/statemill/statemill/pkg/shared/logging"
	"github.com/statemill/statemill/pkg/store"
)

// ComplexComponent is the orchestrator the surrounding engine talks to. It
// mints spillable structures against one shared store and re-broadcasts
// every lifecycle call to each of them, in creation order, before forwarding
// the call to the store itself. If a member fails, forwarding stops there and
// the failure surfaces; the core does not roll back a half-applied
// transition, recovery from the last checkpoint does.
//
// The component does not own the injected store and never closes it; the
// store may be shared with unrelated components.
type ComplexComponent struct {
	store     store.Store
	allocator *Allocator
	// members in creation order, the fan-out order contract
	members []Component
	state   lifecycleState
	// lastWindow enforces strictly increasing window ids
	lastWindow int64
	hasWindow  bool
	setupCtx   context.Context
	log        *zap.SugaredLogger
}

var _ Component = (*ComplexComponent)(nil)

// NewComplexComponent returns an orchestrator over the given store.
func NewComplexComponent(st store.Store) *ComplexComponent {
	return &ComplexComponent{
		store:     st,
		allocator: NewAllocator(),
	}
}

// NewSequence mints a spillable sequence named name in bucket, registered
// with c. A nil name is auto-generated. Fails with ErrDuplicateName if name
// is taken and with ErrInvalidLifecycleState while a window is open: a
// structure registered mid-window would have no well-defined recovery
// position.
func NewSequence[T any](c *ComplexComponent, bucket uint64, name []byte, sd serde.Serde[T]) (*Sequence[T], error) {
	if err := c.factoryCheck(); err != nil {
		return nil, err
	}
	id, err := c.allocator.Allocate(bucket, name)
	if err != nil {
		return nil, err
	}
	s := newSequence(id, c.store, sd)
	if err := c.register(s); err != nil {
		return nil, err
	}
	activeStructuresCount.WithLabelValues("sequence").Inc()
	return s, nil
}

// NewMap mints a spillable map named name in bucket, registered with c. The
// same naming and lifecycle rules as NewSequence apply.
func NewMap[K any, V any](c *ComplexComponent, bucket uint64, name []byte, ks serde.Serde[K], vs serde.Serde[V]) (*Map[K, V], error) {
	if err := c.factoryCheck(); err != nil {
		return nil, err
	}
	id, err := c.allocator.Allocate(bucket, name)
	if err != nil {
		return nil, err
	}
	m := newMap[K, V](id, c.store, ks, vs)
	if err := c.register(m); err != nil {
		return nil, err
	}
	activeStructuresCount.WithLabelValues("map").Inc()
	return m, nil
}

func (c *ComplexComponent) factoryCheck() error {
	switch c.state {
	case stateInWindow:
		return fmt.Errorf("factory call while window %d is open: %w", c.lastWindow, ErrInvalidLifecycleState)
	case stateTornDown:
		return fmt.Errorf("factory call after teardown: %w", ErrInvalidLifecycleState)
	}
	return nil
}

// register appends a freshly minted member. If the component is already set
// up, the member is brought up immediately so it joins the next window.
func (c *ComplexComponent) register(m Component) error {
	if c.state == stateReady {
		if err := m.Setup(c.setupCtx); err != nil {
			return err
		}
	}
	c.members = append(c.members, m)
	return nil
}

// Setup brings up every member in creation order.
func (c *ComplexComponent) Setup(ctx context.Context) error {
	if c.state != stateCreated {
		return fmt.Errorf("component setup: state %s: %w", c.state, ErrInvalidLifecycleState)
	}
	c.setupCtx = ctx
	c.log = logging.FromContext(ctx).With("component", "spillable")
	for i, m := range c.members {
		if err := m.Setup(ctx); err != nil {
			return fmt.Errorf("member %d setup: %w", i, err)
		}
	}
	c.state = stateReady
	c.log.Infow("Component set up", "members", len(c.members))
	return nil
}

// BeginWindow opens window windowID for every member, then for the store.
// Window ids must be strictly increasing.
func (c *ComplexComponent) BeginWindow(windowID int64) error {
	if c.state != stateReady {
		return fmt.Errorf("component begin window %d: state %s: %w", windowID, c.state, ErrInvalidLifecycleState)
	}
	if c.hasWindow && windowID <= c.lastWindow {
		return fmt.Errorf("component begin window %d after window %d, ids must be strictly increasing: %w", windowID, c.lastWindow, ErrInvalidLifecycleState)
	}
	for i, m := range c.members {
		if err := m.BeginWindow(windowID); err != nil {
			return fmt.Errorf("member %d begin window %d: %w", i, windowID, err)
		}
	}
	if err := c.store.BeginWindow(windowID); err != nil {
		return fmt.Errorf("store begin window %d: %w", windowID, err)
	}
	c.lastWindow = windowID
	c.hasWindow = true
	c.state = stateInWindow
	return nil
}

// EndWindow closes the open window: every member flushes its buffer to the
// store, then the store sees its own EndWindow.
func (c *ComplexComponent) EndWindow() error {
	if c.state != stateInWindow {
		return fmt.Errorf("component end window: state %s: %w", c.state, ErrInvalidLifecycleState)
	}
	for i, m := range c.members {
		if err := m.EndWindow(); err != nil {
			return fmt.Errorf("member %d end window: %w", i, err)
		}
	}
	if err := c.store.EndWindow(); err != nil {
		return fmt.Errorf("store end window: %w", err)
	}
	c.state = stateReady
	return nil
}

// Checkpoint forwards the durability point to every member, then to the
// store. Members have nothing buffered at this point, their buffers were
// flushed at EndWindow.
func (c *ComplexComponent) Checkpoint(windowID int64) error {
	if c.state != stateReady {
		return fmt.Errorf("component checkpoint %d: state %s: %w", windowID, c.state, ErrInvalidLifecycleState)
	}
	for i, m := range c.members {
		if err := m.Checkpoint(windowID); err != nil {
			return fmt.Errorf("member %d checkpoint %d: %w", i, windowID, err)
		}
	}
	if err := c.store.Checkpoint(windowID); err != nil {
		return fmt.Errorf("store checkpoint %d: %w", windowID, err)
	}
	return nil
}

// Committed forwards the commit watermark to every member, then to the
// store, which may reclaim old checkpoint versions.
func (c *ComplexComponent) Committed(windowID int64) error {
	if c.state != stateReady {
		return fmt.Errorf("component committed %d: state %s: %w", windowID, c.state, ErrInvalidLifecycleState)
	}
	for i, m := range c.members {
		if err := m.Committed(windowID); err != nil {
			return fmt.Errorf("member %d committed %d: %w", i, windowID, err)
		}
	}
	if err := c.store.Committed(windowID); err != nil {
		return fmt.Errorf("store committed %d: %w", windowID, err)
	}
	return nil
}

// Teardown tears down every member in creation order. The injected store is
// left open, its owner closes it.
func (c *ComplexComponent) Teardown() error {
	if c.state == stateTornDown {
		return nil
	}
	for i, m := range c.members {
		if err := m.Teardown(); err != nil {
			return fmt.Errorf("member %d teardown: %w", i, err)
		}
	}
	c.state = stateTornDown
	return nil
}
