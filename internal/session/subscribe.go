package session

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-pubsub/internal/codec"
	"github.com/nerrad567/gray-logic-pubsub/internal/registry"
	"github.com/nerrad567/gray-logic-pubsub/internal/topic"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Listener receives the decoded payload of each matching message.
type Listener = registry.Listener

// Metadata describes a delivered message.
type Metadata = registry.Metadata

// Subscription is the grant returned by Subscribe. Pass it to Unsubscribe
// to remove this listener only.
type Subscription struct {
	// Topic is the filter the listener was registered under.
	Topic string

	// QoS is the level granted by the broker, which may be lower than requested.
	QoS byte

	entry *registry.Entry
}

// Subscribe registers listener under filter.
//
// The first listener on a filter triggers a broker subscribe and waits for
// its ack. Later listeners on the same filter share that broker subscription
// and receive the recorded grant without another round trip. If the broker
// subscribe fails or is rejected the listener is removed again.
//
// Parameters:
//   - ctx: Context for cancellation
//   - filter: Topic filter (may contain + and # wildcards)
//   - listener: Called with the decoded payload of each matching message
//   - opts: QoS and decoder; nil uses QoS 0 and the connection decoder
//
// Returns:
//   - Subscription: Handle carrying the granted QoS
//   - error: *Error of KindValidation, KindProtocol or KindLink
func (s *Session) Subscribe(ctx context.Context, filter string, listener Listener, opts *SubscribeOptions) (Subscription, error) {
	const op = "subscribe"

	var o SubscribeOptions
	if opts != nil {
		o = *opts
	}

	if err := topic.ValidateFilter(filter); err != nil {
		return Subscription{}, validationError(op, filter, ErrInvalidTopic, err)
	}
	if listener == nil {
		return Subscription{}, validationError(op, filter, ErrInvalidListener, nil)
	}
	if o.QoS > maxQoS {
		return Subscription{}, validationError(op, filter, ErrInvalidQoS, nil)
	}
	decoder, err := codec.ResolveDecoder(codec.Config{Decoder: o.Decoder}.Merge(s.codecs).Decoder)
	if err != nil {
		return Subscription{}, validationError(op, filter, ErrInvalidCodec, err)
	}

	if !s.IsConnected() {
		return Subscription{}, notConnected(op, filter)
	}

	release := s.locks.lock(filter)
	defer release()

	entry, isNew := s.registry.Register(filter, listener, decoder, o.QoS)
	if !isNew {
		if granted, ok := s.registry.Grant(filter); ok {
			s.logger.Debug("listener added to existing subscription", "filter", filter, "qos", granted)
			return Subscription{Topic: filter, QoS: granted, entry: entry}, nil
		}
	}

	granted, err := s.brokerSubscribe(ctx, filter, o.QoS)
	if err != nil {
		s.registry.Unregister(filter, entry)
		return Subscription{}, err
	}
	if s.state.isTornDown() {
		s.registry.Unregister(filter, entry)
		return Subscription{}, notConnected(op, filter)
	}

	s.registry.SetGrant(filter, granted)
	s.logger.Debug("subscribed", "filter", filter, "requested_qos", o.QoS, "granted_qos", granted)

	return Subscription{Topic: filter, QoS: granted, entry: entry}, nil
}

// brokerSubscribe sends a SUBSCRIBE and validates the returned grant.
func (s *Session) brokerSubscribe(ctx context.Context, filter string, qos byte) (byte, error) {
	const op = "subscribe"

	ackCtx, cancel := s.ackContext(ctx)
	defer cancel()

	granted, err := s.transport.Subscribe(ackCtx, filter, qos)
	if err != nil {
		s.metrics.brokerOp(s.ctx, op, false)
		if s.state.isTornDown() {
			return 0, notConnected(op, filter)
		}
		return 0, transportError(op, filter, ErrSubscribeFailed, err)
	}

	switch {
	case granted == transport.SubackFailure:
		s.metrics.brokerOp(s.ctx, op, false)
		return 0, &Error{Kind: KindProtocol, Op: op, Topic: filter, Err: ErrSubscribeRefused}
	case granted > maxQoS:
		s.metrics.brokerOp(s.ctx, op, false)
		return 0, &Error{Kind: KindProtocol, Op: op, Topic: filter,
			Err: fmt.Errorf("%w: suback return code 0x%02x", ErrUnexpectedAck, granted)}
	}

	s.metrics.brokerOp(s.ctx, op, true)
	return granted, nil
}

// Unsubscribe removes sub from filter, or every listener on filter when sub
// is nil.
//
// filter must be the exact string passed to Subscribe. A broker unsubscribe
// is sent only when the last listener is removed; the returned bool reports
// whether that happened. An unknown filter returns false.
//
// If the broker unsubscribe fails, the removed listeners are registered
// again with their original order and grant, so the call can be retried
// with the same arguments.
func (s *Session) Unsubscribe(ctx context.Context, filter string, sub *Subscription) (bool, error) {
	const op = "unsubscribe"

	if err := topic.ValidateFilter(filter); err != nil {
		return false, validationError(op, filter, ErrInvalidTopic, err)
	}
	if !s.IsConnected() {
		return false, notConnected(op, filter)
	}

	release := s.locks.lock(filter)
	defer release()

	var entry *registry.Entry
	if sub != nil {
		if sub.entry == nil {
			return false, nil
		}
		entry = sub.entry
	}

	snap, _ := s.registry.Snapshot(filter)
	removed, empty := s.registry.Unregister(filter, entry)
	if removed == 0 || !empty {
		return false, nil
	}

	ackCtx, cancel := s.ackContext(ctx)
	defer cancel()

	if err := s.transport.Unsubscribe(ackCtx, filter); err != nil {
		s.metrics.brokerOp(s.ctx, op, false)
		if s.state.isTornDown() {
			return false, notConnected(op, filter)
		}
		s.registry.Reinstate(snap)
		s.logger.Warn("unsubscribe failed, listeners kept", "filter", filter, "error", err)
		return false, transportError(op, filter, ErrUnsubscribeFailed, err)
	}

	s.metrics.brokerOp(s.ctx, op, true)
	s.logger.Debug("unsubscribed", "filter", filter)
	return true, nil
}

// restoreSubscriptions re-sends a broker subscribe for every registered
// filter after a reconnect that did not resume the prior session.
func (s *Session) restoreSubscriptions() {
	filters := s.registry.Filters()
	restored := 0

	for _, info := range filters {
		if s.ctx.Err() != nil {
			return
		}
		if s.restoreFilter(info) {
			restored++
		}
	}

	s.logger.Info("subscriptions restored", "restored", restored, "total", len(filters))
}

func (s *Session) restoreFilter(info registry.FilterInfo) bool {
	release := s.locks.lock(info.Filter)
	defer release()

	// Unsubscribed while waiting for the lock.
	if !s.registry.Has(info.Filter) {
		return false
	}

	granted, err := s.brokerSubscribe(s.ctx, info.Filter, info.QoS)
	if err != nil {
		s.logger.Error("failed to restore subscription", "filter", info.Filter, "error", err)
		s.emit(Event{Type: EventRestoreFailed, Filter: info.Filter, Err: err})
		return false
	}

	s.registry.SetGrant(info.Filter, granted)
	return true
}
