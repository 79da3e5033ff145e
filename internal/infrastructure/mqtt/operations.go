package mqtt

import (
	"context"
	"errors"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe sends a SUBSCRIBE for filter and returns the granted QoS, or
// 0x80 if the broker refused it.
//
// No per-filter callback is registered; matching messages arrive through
// the handler passed to Connect.
func (t *Transport) Subscribe(ctx context.Context, filter string, qos byte) (byte, error) {
	client, err := t.liveClient()
	if err != nil {
		return 0, err
	}

	token := client.Subscribe(filter, qos, nil)
	if err := wait(ctx, token); err != nil {
		if isContextErr(err) {
			return 0, err
		}
		return 0, classify(ErrSubscribeFailed, err)
	}

	st, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected token type %T", ErrSubscribeFailed, token)
	}
	granted, ok := st.Result()[filter]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingGrant, filter)
	}
	return granted, nil
}

// Unsubscribe sends an UNSUBSCRIBE for filter and waits for the UNSUBACK.
func (t *Transport) Unsubscribe(ctx context.Context, filter string) error {
	client, err := t.liveClient()
	if err != nil {
		return err
	}

	token := client.Unsubscribe(filter)
	if err := wait(ctx, token); err != nil {
		if isContextErr(err) {
			return err
		}
		return classify(ErrUnsubscribeFailed, err)
	}
	return nil
}

// Publish sends payload to topic.
//
// QoS Levels:
//   - 0: returns once the packet is handed to the network loop
//   - 1: returns after PUBACK
//   - 2: returns after PUBCOMP
//
// Retained Messages:
//   - When true, the broker stores the last message for the topic
//   - New subscribers immediately receive the retained message
//   - An empty retained payload clears it
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	client, err := t.liveClient()
	if err != nil {
		return err
	}

	token := client.Publish(topic, qos, retain, payload)
	if err := wait(ctx, token); err != nil {
		if isContextErr(err) {
			return err
		}
		return classify(ErrPublishFailed, err)
	}
	return nil
}

// isContextErr reports whether err came from the caller's context, which
// the session classifies itself.
func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
