package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
//
// Operations on a transport without a live link return errors wrapping
// transport.ErrNotConnected.
var (
	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAlreadyConnected is returned by Connect on a transport with a live link.
	ErrAlreadyConnected = errors.New("mqtt: already connected")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrMissingGrant is returned when a SUBACK carries no result for the filter.
	ErrMissingGrant = errors.New("mqtt: suback missing filter result")

	// errLinkReplaced is reported as the link-lost cause when paho re-established
	// the link before delivering its connection-lost callback.
	errLinkReplaced = errors.New("mqtt: link re-established before loss was reported")
)
