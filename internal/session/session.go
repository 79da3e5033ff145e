package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-pubsub/internal/codec"
	"github.com/nerrad567/gray-logic-pubsub/internal/registry"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Session is a connected broker session.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Listeners see messages one at a time in arrival order (bounded by
//     ListenerTimeout) and may call Subscribe, Unsubscribe, Publish and End.
type Session struct {
	transport transport.Transport
	address   string
	opts      ConnectOptions
	codecs    codec.Config
	logger    Logger
	metrics   *metrics
	limiter   *rate.Limiter

	registry *registry.Registry
	locks    *filterLocks
	state    *stateManager

	sessionPresent atomic.Bool

	inbound      chan transport.Message
	done         chan struct{}
	dispatchDone chan struct{}
	stopOnce     sync.Once

	// ctx is cancelled when the session ends; background work derives from it.
	ctx    context.Context
	cancel context.CancelFunc

	// bg tracks background goroutines (subscription restore).
	bg     sync.WaitGroup
	bgMu   sync.Mutex
	closed bool

	events       chan Event
	eventsMu     sync.RWMutex
	eventsClosed bool
}

// linkHandler adapts transport callbacks onto the session without exposing
// them on Session's method set.
type linkHandler struct {
	s *Session
}

// Connect opens a session over t.
//
// It blocks until the broker acknowledges the connection, the attempt fails,
// ctx is done, or ConnectTimeout elapses. On failure no Session is returned.
//
// Parameters:
//   - ctx: Context for cancellation
//   - t: Transport that owns the broker link
//   - address: Broker address understood by t (e.g. "tcp://localhost:1883")
//   - opts: Connection options; nil uses defaults
//
// Returns:
//   - *Session: Connected session
//   - error: *Error of KindValidation or KindLink
func Connect(ctx context.Context, t transport.Transport, address string, opts *ConnectOptions) (*Session, error) {
	if t == nil {
		return nil, validationError("connect", "", ErrNilTransport, nil)
	}

	o := opts.withDefaults()
	if _, err := codec.ResolveEncoder(o.Encoder); err != nil {
		return nil, validationError("connect", "", ErrInvalidCodec, err)
	}
	if _, err := codec.ResolveDecoder(o.Decoder); err != nil {
		return nil, validationError("connect", "", ErrInvalidCodec, err)
	}

	s := newSession(t, address, o)
	s.state.set(StateConnecting)
	go s.dispatchLoop()

	connectCtx, cancel := context.WithTimeout(ctx, o.ConnectTimeout)
	defer cancel()

	ack, err := t.Connect(connectCtx, address, o.transportOptions(), linkHandler{s: s})
	if err != nil {
		s.stop()
		s.state.set(StateDisconnected)
		return nil, &Error{Kind: KindLink, Op: "connect", Err: fmt.Errorf("%w: %w", ErrConnectFailed, err)}
	}

	s.sessionPresent.Store(ack.SessionPresent)
	s.state.set(StateConnected)

	s.logger.Info("session connected",
		"address", address,
		"client_id", o.ClientID,
		"session_present", ack.SessionPresent,
	)
	s.emit(Event{Type: EventConnected, SessionPresent: ack.SessionPresent})

	return s, nil
}

func newSession(t transport.Transport, address string, o ConnectOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		transport:    t,
		address:      address,
		opts:         o,
		codecs:       o.codecs(),
		logger:       o.Logger,
		metrics:      newMetrics(o.MeterProvider, o.Logger),
		registry:     registry.New(),
		locks:        newFilterLocks(),
		state:        newStateManager(),
		inbound:      make(chan transport.Message, o.DispatchBuffer),
		done:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan Event, o.EventBuffer),
	}
	if o.PublishRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(o.PublishRate), o.PublishBurst)
	}
	return s
}

// End disconnects the session.
//
// It is a no-op when the session is not connected, so calling it more than
// once is safe. Operations in flight when End starts observe the teardown
// once their broker call returns and fail with ErrNotConnected.
//
// Parameters:
//   - ctx: Context bounding the transport disconnect
//   - force: Drop pending transport work instead of waiting for it
//
// Returns:
//   - error: KindLink *Error if the transport failed to disconnect cleanly;
//     the session is torn down regardless
func (s *Session) End(ctx context.Context, force bool) error {
	if !s.state.transitionFrom(StateDisconnecting, StateConnected, StateConnecting) {
		return nil
	}

	err := s.transport.Disconnect(ctx, force)

	s.stop()

	s.bgMu.Lock()
	s.closed = true
	s.bgMu.Unlock()
	s.bg.Wait()

	s.registry.Clear()
	s.state.set(StateDisconnected)

	s.logger.Info("session ended", "address", s.address, "force", force)
	s.emit(Event{Type: EventDisconnected, Err: err})
	s.closeEvents()

	if err != nil {
		return &Error{Kind: KindLink, Op: "end", Err: fmt.Errorf("%w: %w", ErrDisconnectFailed, err)}
	}
	return nil
}

// stop halts the dispatcher and cancels background work.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.done)
		<-s.dispatchDone
	})
}

// goBackground runs fn on a tracked goroutine unless the session has ended.
func (s *Session) goBackground(fn func()) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()

	if s.closed {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn()
	}()
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state.get()
}

// IsConnected reports whether the session is connected.
func (s *Session) IsConnected() bool {
	return s.state.isConnected()
}

// SessionPresent returns the session-present flag from the most recent
// connect ack. False means the broker discarded prior subscription state.
func (s *Session) SessionPresent() bool {
	return s.sessionPresent.Load()
}

// ClientID returns the client identifier used for the broker connection.
func (s *Session) ClientID() string {
	return s.opts.ClientID
}

// Events returns the notification channel. It is closed when End completes.
func (s *Session) Events() <-chan Event {
	return s.events
}

// HealthCheck verifies the session is connected.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("session health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return notConnected("health", "")
	}
	return nil
}

// Filters returns the registered filters in sorted order.
func (s *Session) Filters() []string {
	infos := s.registry.Filters()
	filters := make([]string, len(infos))
	for i, info := range infos {
		filters[i] = info.Filter
	}
	return filters
}

// HasSubscription reports whether filter has at least one local listener.
// Only the exact filter string is checked.
func (s *Session) HasSubscription(filter string) bool {
	return s.registry.Has(filter)
}

// ListenerCount returns the number of listeners registered under filter.
func (s *Session) ListenerCount(filter string) int {
	return s.registry.ListenerCount(filter)
}

// HandleMessage queues msg for dispatch. It blocks only while the dispatch
// queue is full.
func (h linkHandler) HandleMessage(msg transport.Message) {
	select {
	case h.s.inbound <- msg:
	case <-h.s.done:
	}
}

// HandleConnectionLost moves the session back to connecting.
func (h linkHandler) HandleConnectionLost(err error) {
	s := h.s
	if !s.state.transition(StateConnected, StateConnecting) {
		return
	}
	s.logger.Warn("session link lost", "address", s.address, "error", err)
	s.emit(Event{Type: EventLinkLost, Err: &Error{Kind: KindLink, Op: "link", Err: fmt.Errorf("%w: %w", ErrLinkLost, err)}})
}

// HandleReconnect re-applies the session-present flag and, when the broker
// kept no state, restores every registered filter.
func (h linkHandler) HandleReconnect(ack transport.ConnAck) {
	s := h.s
	if !s.state.transition(StateConnecting, StateConnected) {
		return
	}
	s.sessionPresent.Store(ack.SessionPresent)

	s.logger.Info("session reconnected", "address", s.address, "session_present", ack.SessionPresent)
	s.emit(Event{Type: EventReconnected, SessionPresent: ack.SessionPresent})

	if !ack.SessionPresent && s.registry.Len() > 0 {
		s.goBackground(s.restoreSubscriptions)
	}
}

// dispatchLoop delivers queued messages one at a time in arrival order.
func (s *Session) dispatchLoop() {
	defer close(s.dispatchDone)

	for {
		select {
		case msg := <-s.inbound:
			s.dispatch(msg)
		case <-s.done:
			return
		}
	}
}

func (s *Session) dispatch(msg transport.Message) {
	s.metrics.received.Add(s.ctx, 1)

	n, errs := s.registry.Dispatch(msg.Topic, func(e *registry.Entry) error {
		payload, err := e.Decoder()(msg.Payload)
		if err != nil {
			return err
		}
		meta := registry.Metadata{
			Topic:     msg.Topic,
			Filter:    e.Filter(),
			QoS:       msg.QoS,
			Retain:    msg.Retain,
			Duplicate: msg.Duplicate,
			MessageID: msg.MessageID,
		}
		return s.invoke(e, payload, meta)
	})

	s.metrics.invocations.Add(s.ctx, int64(n))
	if n == 0 {
		s.logger.Debug("no listeners for topic", "topic", msg.Topic)
	}

	for _, err := range errs {
		s.metrics.listenerErrors.Add(s.ctx, 1)

		var filter string
		var lerr *registry.ListenerError
		if errors.As(err, &lerr) {
			filter = lerr.Filter
		}
		s.logger.Warn("listener failed", "topic", msg.Topic, "filter", filter, "error", err)
		s.emit(Event{Type: EventListenerError, Topic: msg.Topic, Filter: filter, Err: err})
	}
}

// invoke runs e's listener bounded by ListenerTimeout.
//
// Invocations of one entry never overlap: a listener still running from an
// earlier message (after a timeout) holds the entry, and the next message
// waits for it within the same bound. A listener that overruns keeps running
// on its own goroutine; dispatch moves on.
func (s *Session) invoke(e *registry.Entry, payload any, meta registry.Metadata) error {
	timeout := s.opts.ListenerTimeout
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	if !e.Acquire(ctx) {
		if s.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w after %v", ErrListenerBusy, timeout)
	}

	result := make(chan error, 1)
	go func() {
		defer e.Release()
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%w: %v", registry.ErrListenerPanic, r)
			}
		}()
		result <- e.Listener()(payload, meta)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		// Session ended while the listener ran.
		if s.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w after %v", ErrListenerTimeout, timeout)
	}
}

// ackContext bounds a broker operation by AckTimeout and by session end.
func (s *Session) ackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.AckTimeout)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
