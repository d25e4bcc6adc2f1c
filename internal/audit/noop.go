package audit

import "sync"

// Noop discards all events. Used when auditing is disabled or no database
// is configured.
type Noop struct{}

func (Noop) Record(Event) {}

// Memory keeps recorded events in memory.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Last returns the most recent event, or a zero Event.
func (m *Memory) Last() Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return Event{}
	}
	return m.events[len(m.events)-1]
}
