package membroker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-pubsub/internal/topic"
	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// ErrLinkDropped is the cause passed to HandleConnectionLost by DropLink
// when no explicit error is given.
var ErrLinkDropped = errors.New("membroker: link dropped")

// NoAck passed to SetAckDelay withholds acknowledgements until the
// caller's context is done.
const NoAck time.Duration = -1

// FrameKind identifies a recorded client frame.
type FrameKind int

// Frame kinds.
const (
	FrameConnect FrameKind = iota + 1
	FrameSubscribe
	FrameUnsubscribe
	FramePublish
	FrameDisconnect
)

// String returns the MQTT packet name for k.
func (k FrameKind) String() string {
	switch k {
	case FrameConnect:
		return "CONNECT"
	case FrameSubscribe:
		return "SUBSCRIBE"
	case FrameUnsubscribe:
		return "UNSUBSCRIBE"
	case FramePublish:
		return "PUBLISH"
	case FrameDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Frame is a client-to-broker packet as seen by the broker.
type Frame struct {
	ClientID string
	Kind     FrameKind

	// Topic is the filter for SUBSCRIBE/UNSUBSCRIBE, the topic for PUBLISH
	// and the address for CONNECT.
	Topic   string
	QoS     byte
	Payload []byte
	Retain  bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// clientSession is the broker-side state kept for a client ID.
type clientSession struct {
	subs map[string]byte
}

func newClientSession() *clientSession {
	return &clientSession{subs: make(map[string]byte)}
}

// Broker is an in-process message broker.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Transport callbacks are invoked without the broker lock held.
type Broker struct {
	mu sync.Mutex

	clients  map[string]*Transport
	sessions map[string]*clientSession
	retained map[string]transport.Message
	frames   []Frame
	nextMID  uint16

	// Failure injection.
	rejected   map[string]bool
	maxQoS     byte
	connectErr error
	ackDelay   time.Duration

	logger Logger
}

// New creates an empty broker that grants every requested QoS.
func New() *Broker {
	return &Broker{
		clients:  make(map[string]*Transport),
		sessions: make(map[string]*clientSession),
		retained: make(map[string]transport.Message),
		rejected: make(map[string]bool),
		maxQoS:   2,
		logger:   noopLogger{},
	}
}

// SetLogger sets a logger for broker activity. Call it before attaching
// transports.
func (b *Broker) SetLogger(logger Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// NewTransport returns a transport attached to b. Each transport carries
// one client connection at a time.
func (b *Broker) NewTransport() *Transport {
	return &Transport{broker: b}
}

// RejectFilter makes SUBSCRIBE for filter fail with return code 0x80.
func (b *Broker) RejectFilter(filter string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejected[filter] = true
}

// SetMaxQoS caps the QoS granted to subscriptions.
func (b *Broker) SetMaxQoS(qos byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxQoS = qos
}

// FailConnect makes subsequent CONNECT attempts fail with err. A nil err
// restores normal behaviour.
func (b *Broker) FailConnect(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectErr = err
}

// SetAckDelay delays SUBSCRIBE, UNSUBSCRIBE and QoS>0 PUBLISH
// acknowledgements by d. NoAck withholds them until the caller gives up.
func (b *Broker) SetAckDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ackDelay = d
}

// DiscardSession drops the stored session for clientID so the next
// reconnect reports SessionPresent=false.
func (b *Broker) DiscardSession(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, clientID)
}

// DropLink severs the link of clientID and reports cause (or
// ErrLinkDropped) to its handler. Session state is kept.
func (b *Broker) DropLink(clientID string, cause error) bool {
	if cause == nil {
		cause = ErrLinkDropped
	}

	b.mu.Lock()
	t, ok := b.clients[clientID]
	if !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.clients, clientID)
	t.connected = false
	h := t.handler
	b.mu.Unlock()

	b.logger.Debug("link dropped", "client_id", clientID, "error", cause)
	h.HandleConnectionLost(cause)
	return true
}

// Restore reconnects a dropped client, reporting whether its session
// survived through HandleReconnect.
func (b *Broker) Restore(t *Transport) bool {
	b.mu.Lock()
	if t.connected || t.handler == nil {
		b.mu.Unlock()
		return false
	}

	present := b.attach(t)
	clientID, h := t.clientID, t.handler
	b.mu.Unlock()

	b.logger.Debug("link restored", "client_id", clientID, "session_present", present)
	h.HandleReconnect(transport.ConnAck{SessionPresent: present, Reconnect: true})
	return true
}

// attach connects t and resolves its session. Callers must hold b.mu.
func (b *Broker) attach(t *Transport) bool {
	_, present := b.sessions[t.clientID]
	if t.opts.CleanSession || !present {
		b.sessions[t.clientID] = newClientSession()
		present = false
	}

	if prev, ok := b.clients[t.clientID]; ok && prev != t {
		prev.connected = false
	}
	b.clients[t.clientID] = t
	t.connected = true
	return present
}

// Frames returns a copy of every recorded frame in arrival order.
func (b *Broker) Frames() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// FramesOf returns the recorded frames of kind k.
func (b *Broker) FramesOf(k FrameKind) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Frame
	for _, f := range b.frames {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

// SubscribeCount returns how many SUBSCRIBE frames named filter.
func (b *Broker) SubscribeCount(filter string) int {
	return b.count(FrameSubscribe, filter)
}

// UnsubscribeCount returns how many UNSUBSCRIBE frames named filter.
func (b *Broker) UnsubscribeCount(filter string) int {
	return b.count(FrameUnsubscribe, filter)
}

func (b *Broker) count(k FrameKind, name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, f := range b.frames {
		if f.Kind == k && f.Topic == name {
			n++
		}
	}
	return n
}

// Subscriptions returns the sorted filters held by clientID's session.
func (b *Broker) Subscriptions(clientID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cs, ok := b.sessions[clientID]
	if !ok {
		return nil
	}
	filters := make([]string, 0, len(cs.subs))
	for f := range cs.subs {
		filters = append(filters, f)
	}
	sort.Strings(filters)
	return filters
}

// Retained returns the retained message for topicName, if any.
func (b *Broker) Retained(topicName string) (transport.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := b.retained[topicName]
	return msg, ok
}

// Connected reports whether clientID currently has a live link.
func (b *Broker) Connected(clientID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.clients[clientID]
	return ok
}

// session returns the state for clientID, creating it if needed.
// Callers must hold b.mu.
func (b *Broker) session(clientID string) *clientSession {
	cs, ok := b.sessions[clientID]
	if !ok {
		cs = newClientSession()
		b.sessions[clientID] = cs
	}
	return cs
}

func (b *Broker) record(f Frame) {
	b.frames = append(b.frames, f)
}

// await applies the configured ack delay.
func (b *Broker) await(ctx context.Context) error {
	b.mu.Lock()
	d := b.ackDelay
	b.mu.Unlock()

	if d == 0 {
		return ctx.Err()
	}
	if d < 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// delivery is a message bound for one client.
type delivery struct {
	handler transport.Handler
	msg     transport.Message
}

// route builds the deliveries for a publish. Callers must hold b.mu.
// A client with several matching filters receives the message once, at the
// highest QoS granted among them.
func (b *Broker) route(topicName string, payload []byte, qos byte) []delivery {
	var out []delivery

	for clientID, t := range b.clients {
		cs := b.sessions[clientID]
		if cs == nil {
			continue
		}

		matched := false
		var granted byte
		for filter, g := range cs.subs {
			if topic.Match(filter, topicName) {
				matched = true
				if g > granted {
					granted = g
				}
			}
		}
		if !matched {
			continue
		}

		out = append(out, delivery{
			handler: t.handler,
			msg:     b.message(topicName, payload, min(qos, granted), false),
		})
	}
	return out
}

func (b *Broker) message(topicName string, payload []byte, qos byte, retain bool) transport.Message {
	msg := transport.Message{
		Topic:   topicName,
		Payload: append([]byte(nil), payload...),
		QoS:     qos,
		Retain:  retain,
	}
	if qos > 0 {
		b.nextMID++
		if b.nextMID == 0 {
			b.nextMID = 1
		}
		msg.MessageID = b.nextMID
	}
	return msg
}

func (b *Broker) connErr(clientID string) error {
	return fmt.Errorf("%w: client %q", transport.ErrNotConnected, clientID)
}
