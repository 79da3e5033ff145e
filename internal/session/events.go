package session

import "time"

// EventType identifies a session notification.
type EventType int

// Event types.
const (
	EventConnected EventType = iota + 1
	EventLinkLost
	EventReconnected
	EventRestoreFailed
	EventListenerError
	EventDisconnected
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventLinkLost:
		return "link_lost"
	case EventReconnected:
		return "reconnected"
	case EventRestoreFailed:
		return "restore_failed"
	case EventListenerError:
		return "listener_error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a link state change or a listener failure. Events travel on a
// channel separate from topic dispatch.
type Event struct {
	Type EventType
	Time time.Time

	// SessionPresent is set for EventConnected and EventReconnected.
	SessionPresent bool

	// Topic and Filter are set for EventListenerError and EventRestoreFailed.
	Topic  string
	Filter string

	Err error
}

// emit delivers ev without blocking. Events are dropped when the channel is
// full or the session has ended.
func (s *Session) emit(ev Event) {
	ev.Time = time.Now()

	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()

	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("session event dropped", "event", ev.Type.String(), "error", ev.Err)
	}
}

func (s *Session) closeEvents() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
}
