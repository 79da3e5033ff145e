package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-pubsub/internal/codec"
	"github.com/nerrad567/gray-logic-pubsub/internal/topic"
)

// Publish encodes message and sends it to topicName.
//
// The encoder is resolved from opts, then the connection options, then
// codec.Default. Publish returns once the transport confirms delivery for
// the requested QoS: immediately after the write for QoS 0, after the
// broker ack for QoS 1 and 2.
//
// Parameters:
//   - ctx: Context for cancellation (also bounds rate-limit waits)
//   - topicName: Concrete topic (no wildcards)
//   - message: Value handed to the encoder
//   - opts: QoS, retain and encoder; nil uses QoS 0, no retain
//
// Returns:
//   - error: *Error of KindValidation, KindProtocol or KindLink
func (s *Session) Publish(ctx context.Context, topicName string, message any, opts *PublishOptions) error {
	const op = "publish"

	var o PublishOptions
	if opts != nil {
		o = *opts
	}

	if err := topic.ValidateTopic(topicName); err != nil {
		return validationError(op, topicName, ErrInvalidTopic, err)
	}
	if o.QoS > maxQoS {
		return validationError(op, topicName, ErrInvalidQoS, nil)
	}
	encoder, err := codec.ResolveEncoder(codec.Config{Encoder: o.Encoder}.Merge(s.codecs).Encoder)
	if err != nil {
		return validationError(op, topicName, ErrInvalidCodec, err)
	}
	payload, err := encoder(message)
	if err != nil {
		if !errors.Is(err, codec.ErrEncode) {
			err = fmt.Errorf("%w: %w", codec.ErrEncode, err)
		}
		return validationError(op, topicName, ErrInvalidCodec, err)
	}
	if len(payload) > maxPayloadSize {
		return validationError(op, topicName, ErrPayloadTooLarge,
			fmt.Errorf("%d bytes exceeds %d", len(payload), maxPayloadSize))
	}

	if !s.IsConnected() {
		return notConnected(op, topicName)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindProtocol, Op: op, Topic: topicName, Err: fmt.Errorf("%w: %w", ErrPublishFailed, err)}
		}
	}

	ackCtx, cancel := s.ackContext(ctx)
	defer cancel()

	if err := s.transport.Publish(ackCtx, topicName, payload, o.QoS, o.Retain); err != nil {
		if s.state.isTornDown() {
			return notConnected(op, topicName)
		}
		return transportError(op, topicName, ErrPublishFailed, err)
	}

	s.metrics.published.Add(s.ctx, 1)
	return nil
}
