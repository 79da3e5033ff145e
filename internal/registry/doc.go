// Package registry tracks which listeners are registered under which topic
// filters and dispatches inbound topics to them.
//
// The registry is pure bookkeeping: it never talks to the broker. Register
// reports when a filter goes from zero to one listener (a broker subscribe is
// needed) and Unregister reports when it drops back to zero (a broker
// unsubscribe is needed). The caller performs those broker operations.
//
// # Dispatch order
//
// For a given topic, matched entries are ordered by filter specificity
// (exact, then +, then #) and, within a class, by registration order. The
// ordering is stable for every message.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Dispatch snapshots the matched
// entries under a read lock and invokes listeners without holding it, so a
// listener may subscribe or unsubscribe without deadlocking.
package registry
