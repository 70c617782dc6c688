// Package broker defines the fan-out transport that carries room events
// between nodes. Implementations provide at-most-once delivery to the
// subscribers active at publish time; there is no replay. Single-node
// deployments use memorybroker, multi-node deployments use redisbroker.
package broker

import "context"

// Broker publishes envelopes to topics and delivers them to active
// subscribers. Delivery is fire-and-forget: a subscriber that joins after a
// publish never sees it.
type Broker interface {
	// Publish wraps data in an envelope with a generated ID and delivers it
	// to the topic's current subscribers. Returns the envelope ID.
	Publish(ctx context.Context, topic string, data []byte) (string, error)

	// Subscribe invokes handler for each envelope published to topic, one
	// at a time in delivery order. It blocks until ctx is done or the
	// handler returns an error, and returns that error.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error
}

// HandlerFunc consumes one envelope. Returning an error terminates the
// subscription that invoked it.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Envelope wraps a payload with its delivery identity.
type Envelope struct {
	// ID uniquely identifies this publish within the broker.
	ID string `json:"id"`
	// Data is the payload as given to Publish.
	Data []byte `json:"data"`
}
