package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-pubsub/internal/codec"
	"github.com/nerrad567/gray-logic-pubsub/internal/topic"
)

// ErrListenerPanic wraps a recovered listener panic.
var ErrListenerPanic = errors.New("registry: listener panicked")

// Metadata describes an inbound message alongside its decoded payload.
type Metadata struct {
	// Topic is the raw topic the message was published to.
	Topic string

	// Filter is the registered filter that matched Topic.
	Filter string

	QoS       byte
	Retain    bool
	Duplicate bool
	MessageID uint16
}

// Listener receives decoded payloads for a filter.
// A returned error is reported but does not affect other listeners.
type Listener func(payload any, meta Metadata) error

// Entry is one listener registered under one filter.
// Entries are created by Register and are never shared between filters.
type Entry struct {
	id          uint64
	filter      string
	specificity topic.Specificity
	listener    Listener
	decoder     codec.DecodeFunc

	// slot holds a token while an invocation of listener is running.
	slot chan struct{}
}

// ID returns the registration ordinal. Lower IDs registered earlier.
func (e *Entry) ID() uint64 { return e.id }

// Filter returns the filter the entry is registered under.
func (e *Entry) Filter() string { return e.filter }

// Listener returns the registered callback.
func (e *Entry) Listener() Listener { return e.listener }

// Decoder returns the decoder applied to payloads for this entry.
func (e *Entry) Decoder() codec.DecodeFunc { return e.decoder }

// Acquire waits until no other invocation of the entry is running and
// claims the entry. It returns false if ctx is done first.
// Every successful Acquire must be paired with Release.
func (e *Entry) Acquire(ctx context.Context) bool {
	select {
	case e.slot <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release ends an invocation claimed with Acquire.
func (e *Entry) Release() {
	<-e.slot
}

// ListenerError reports a failed listener invocation.
type ListenerError struct {
	Filter  string
	EntryID uint64
	Err     error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %d on %q: %v", e.EntryID, e.Filter, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// FilterInfo summarises a registered filter.
type FilterInfo struct {
	Filter    string
	QoS       byte // requested by the first subscriber
	Granted   byte
	HasGrant  bool
	Listeners int
}

type filterState struct {
	entries  []*Entry
	qos      byte
	granted  byte
	hasGrant bool
}

// Registry maps topic filters to ordered listener entries.
type Registry struct {
	mu      sync.RWMutex
	filters map[string]*filterState
	nextID  uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		filters: make(map[string]*filterState),
	}
}

// Register appends listener under filter.
//
// The returned bool is true when filter had no listeners before this call,
// meaning the caller must issue a broker subscribe for it. qos is recorded as
// the requested QoS only in that case.
func (r *Registry) Register(filter string, listener Listener, decoder codec.DecodeFunc, qos byte) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry := &Entry{
		id:          r.nextID,
		filter:      filter,
		specificity: topic.SpecificityOf(filter),
		listener:    listener,
		decoder:     decoder,
		slot:        make(chan struct{}, 1),
	}

	state, exists := r.filters[filter]
	if !exists {
		state = &filterState{qos: qos}
		r.filters[filter] = state
	}
	state.entries = append(state.entries, entry)

	return entry, !exists
}

// Unregister removes entry from filter, or every entry when entry is nil.
//
// Filters are compared by exact string equality. It returns the number of
// entries removed and whether filter now has no listeners; the latter is
// true only when this call removed the last one.
func (r *Registry) Unregister(filter string, entry *Entry) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.filters[filter]
	if !exists {
		return 0, false
	}

	removed := 0
	if entry == nil {
		removed = len(state.entries)
		state.entries = nil
	} else {
		kept := state.entries[:0]
		for _, e := range state.entries {
			if e == entry {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		// Clear the tail so removed entries can be collected.
		for i := len(kept); i < len(state.entries); i++ {
			state.entries[i] = nil
		}
		state.entries = kept
	}

	if removed == 0 {
		return 0, false
	}
	if len(state.entries) == 0 {
		delete(r.filters, filter)
		return removed, true
	}
	return removed, false
}

// Snapshot is the saved state of one filter, taken with Snapshot and put
// back with Reinstate.
type Snapshot struct {
	filter string
	state  filterState
}

// Filter returns the filter the snapshot was taken from.
func (s Snapshot) Filter() string { return s.filter }

// Snapshot saves the entries and grant of filter. The bool is false when
// filter is not registered.
func (r *Registry) Snapshot(filter string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.filters[filter]
	if !ok {
		return Snapshot{}, false
	}
	saved := *state
	saved.entries = append([]*Entry(nil), state.entries...)
	return Snapshot{filter: filter, state: saved}, true
}

// Reinstate puts back every entry of snap that is no longer registered,
// keeping registration order. The requested QoS and grant are restored
// when the filter had been removed entirely.
func (r *Registry) Reinstate(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.filters[snap.filter]
	if !exists {
		state = &filterState{
			qos:      snap.state.qos,
			granted:  snap.state.granted,
			hasGrant: snap.state.hasGrant,
		}
		r.filters[snap.filter] = state
	}

	present := make(map[*Entry]bool, len(state.entries))
	for _, e := range state.entries {
		present[e] = true
	}
	for _, e := range snap.state.entries {
		if !present[e] {
			state.entries = append(state.entries, e)
		}
	}
	sort.Slice(state.entries, func(i, j int) bool { return state.entries[i].id < state.entries[j].id })
}

// SetGrant records the broker-granted QoS for filter.
// It is a no-op if filter is no longer registered.
func (r *Registry) SetGrant(filter string, qos byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.filters[filter]; ok {
		state.granted = qos
		state.hasGrant = true
	}
}

// Grant returns the recorded broker grant for filter.
func (r *Registry) Grant(filter string) (byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.filters[filter]
	if !ok || !state.hasGrant {
		return 0, false
	}
	return state.granted, true
}

// Match returns the entries whose filter matches t, in dispatch order.
func (r *Registry) Match(t string) []*Entry {
	r.mu.RLock()
	var matched []*Entry
	for filter, state := range r.filters {
		if topic.Match(filter, t) {
			matched = append(matched, state.entries...)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].specificity != matched[j].specificity {
			return matched[i].specificity > matched[j].specificity
		}
		return matched[i].id < matched[j].id
	})
	return matched
}

// Dispatch invokes fn for every entry matching t, in dispatch order.
//
// Each invocation is isolated: a panic is recovered and reported as
// ErrListenerPanic, and an error from one entry does not stop the others.
// It returns the number of entries invoked and any failures.
func (r *Registry) Dispatch(t string, fn func(*Entry) error) (int, []error) {
	entries := r.Match(t)

	var errs []error
	for _, e := range entries {
		if err := invoke(e, fn); err != nil {
			errs = append(errs, &ListenerError{Filter: e.filter, EntryID: e.id, Err: err})
		}
	}
	return len(entries), errs
}

func invoke(e *Entry, fn func(*Entry) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrListenerPanic, rec)
		}
	}()
	return fn(e)
}

// Has reports whether filter has at least one listener.
func (r *Registry) Has(filter string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.filters[filter]
	return ok
}

// ListenerCount returns the number of entries under filter.
func (r *Registry) ListenerCount(filter string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if state, ok := r.filters[filter]; ok {
		return len(state.entries)
	}
	return 0
}

// Len returns the number of registered filters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filters)
}

// Filters returns a sorted summary of every registered filter.
func (r *Registry) Filters() []FilterInfo {
	r.mu.RLock()
	infos := make([]FilterInfo, 0, len(r.filters))
	for filter, state := range r.filters {
		infos = append(infos, FilterInfo{
			Filter:    filter,
			QoS:       state.qos,
			Granted:   state.granted,
			HasGrant:  state.hasGrant,
			Listeners: len(state.entries),
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Filter < infos[j].Filter })
	return infos
}

// Clear removes every filter and entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = make(map[string]*filterState)
}
