package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-pubsub/internal/transport"
)

// Kind classifies session errors.
type Kind int

// Error kinds.
const (
	// KindValidation errors are raised before any network I/O and are never retried.
	KindValidation Kind = iota + 1

	// KindProtocol errors mean the broker rejected or did not acknowledge an operation.
	KindProtocol

	// KindLink errors mean the broker link is unavailable.
	KindLink
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProtocol:
		return "protocol"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// Sentinel errors. Use errors.Is() to check for these in calling code.
var (
	ErrNilTransport      = errors.New("session: transport cannot be nil")
	ErrInvalidTopic      = errors.New("session: invalid topic")
	ErrInvalidListener   = errors.New("session: listener must be a non-nil function")
	ErrInvalidQoS        = errors.New("session: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidCodec      = errors.New("session: invalid codec")
	ErrPayloadTooLarge   = errors.New("session: payload too large")
	ErrNotConnected      = errors.New("session: not connected")
	ErrConnectFailed     = errors.New("session: connection failed")
	ErrLinkLost          = errors.New("session: link lost")
	ErrSubscribeFailed   = errors.New("session: subscribe failed")
	ErrSubscribeRefused  = errors.New("session: subscribe rejected by broker")
	ErrUnexpectedAck     = errors.New("session: unexpected acknowledgement")
	ErrUnsubscribeFailed = errors.New("session: unsubscribe failed")
	ErrPublishFailed     = errors.New("session: publish failed")
	ErrDisconnectFailed  = errors.New("session: disconnect failed")
	ErrTimeout           = errors.New("session: operation timed out")
	ErrListenerTimeout   = errors.New("session: listener timed out")
	ErrListenerBusy      = errors.New("session: listener still running from an earlier message")
)

// Error is returned by every Session operation.
type Error struct {
	Kind  Kind
	Op    string // "connect", "subscribe", "unsubscribe", "publish", "end"
	Topic string
	Err   error
}

func (e *Error) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("%s %q: %s error: %v", e.Op, e.Topic, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

// IsProtocol reports whether err is a broker protocol error.
func IsProtocol(err error) bool { return kindOf(err) == KindProtocol }

// IsLink reports whether err is a link error.
func IsLink(err error) bool { return kindOf(err) == KindLink }

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func validationError(op, topic string, sentinel, cause error) *Error {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &Error{Kind: KindValidation, Op: op, Topic: topic, Err: err}
}

func notConnected(op, topic string) *Error {
	return &Error{Kind: KindLink, Op: op, Topic: topic, Err: ErrNotConnected}
}

// transportError classifies an error returned by the transport for op.
func transportError(op, topic string, sentinel, cause error) *Error {
	switch {
	case errors.Is(cause, transport.ErrNotConnected):
		return &Error{Kind: KindLink, Op: op, Topic: topic, Err: fmt.Errorf("%w: %w", ErrNotConnected, cause)}
	case errors.Is(cause, context.DeadlineExceeded):
		return &Error{Kind: KindProtocol, Op: op, Topic: topic, Err: fmt.Errorf("%w: %w: %w", sentinel, ErrTimeout, cause)}
	default:
		return &Error{Kind: KindProtocol, Op: op, Topic: topic, Err: fmt.Errorf("%w: %w", sentinel, cause)}
	}
}
