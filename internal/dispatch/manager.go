package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
	"github.com/urbanfield/deployment-core/internal/infrastructure/mqtt"
)

// State is the lifecycle state of one logical subscription.
type State int

const (
	// StatePending means the subscription has been declared but not yet
	// accepted by the broker.
	StatePending State = iota

	// StateActive means the broker holds the subscription.
	StateActive

	// StateSuspended means the broker connection dropped after the
	// subscription was active. The registration itself is retained and
	// replayed on reconnect.
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	default:
		return "pending"
	}
}

// managed is one declared subscription with its current state.
type managed struct {
	name     string
	register func() error
	state    State
}

// Manager owns the set of logical subscriptions. Declarations survive any
// number of broker disconnects: the list is append-only and never purged
// by a connection failure. Startup registers subscriptions strictly in
// declaration order, because later subscriptions may depend on earlier
// ones having been declared first.
type Manager struct {
	mu   sync.Mutex
	subs []*managed
	log  *logging.Logger
}

// NewManager creates an empty subscription manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{log: log.With("component", "dispatch")}
}

// Declare appends a named subscription. register performs the actual bus
// subscribe and is invoked by Start and again on every reconnect while the
// subscription is Pending.
func (m *Manager) Declare(name string, register func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, &managed{name: name, register: register})
}

// Start registers every declared subscription sequentially, in declaration
// order. A registration that fails because the bus is unreachable is
// logged and left Pending; the remaining subscriptions are still
// attempted, so the set is complete when the connection returns. Any
// other failure aborts startup.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		if err := sub.register(); err != nil {
			if errors.Is(err, mqtt.ErrNotConnected) {
				m.log.Warn("subscription deferred, bus unreachable", "name", sub.name)
				continue
			}
			return fmt.Errorf("registering subscription %q: %w", sub.name, err)
		}
		sub.state = StateActive
		m.log.Debug("subscription active", "name", sub.name)
	}
	return nil
}

// OnConnect is called when the bus (re)connects. Pending subscriptions are
// registered now; Suspended ones were already replayed by the bus client's
// own tracked-subscription list and are simply marked Active again.
func (m *Manager) OnConnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		switch sub.state {
		case StatePending:
			if err := sub.register(); err != nil {
				m.log.Warn("subscription still unregistered after reconnect",
					"name", sub.name, "error", err)
				continue
			}
			sub.state = StateActive
			m.log.Info("subscription registered on reconnect", "name", sub.name)
		case StateSuspended:
			sub.state = StateActive
		}
	}
}

// OnDisconnect is called when the bus connection drops. Active
// subscriptions become Suspended; nothing is removed.
func (m *Manager) OnDisconnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		if sub.state == StateActive {
			sub.state = StateSuspended
		}
	}
	m.log.Warn("bus disconnected, subscriptions suspended", "error", err)
}

// States returns a snapshot of subscription states keyed by name.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]State, len(m.subs))
	for _, sub := range m.subs {
		states[sub.name] = sub.state
	}
	return states
}
