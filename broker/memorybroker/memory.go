// Package memorybroker provides an in-process implementation of
// broker.Broker using Go channels. Suitable for single-node deployments and
// tests; state is local, so it cannot fan out across nodes.
package memorybroker

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/collabhq/realtime-go/broker"
)

const subscriberBuffer = 128

// Broker implements broker.Broker over per-subscriber channels. Envelopes
// are handed to each subscriber's own buffer at publish time; a subscriber
// whose buffer is full misses the envelope rather than stalling the
// publisher.
type Broker struct {
	mu      sync.RWMutex
	topics  map[string]map[*subscription]struct{}
	counter atomic.Int64
}

type subscription struct {
	ch chan broker.Envelope
}

// New creates an empty in-memory broker.
func New() *Broker {
	return &Broker{topics: make(map[string]map[*subscription]struct{})}
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := strconv.FormatInt(b.counter.Add(1), 10)
	env := broker.Envelope{ID: id, Data: append([]byte(nil), data...)}

	// Snapshot subscribers so delivery happens outside the lock.
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	return id, nil
}

// Subscribe implements broker.Broker. The handler runs on the caller's
// goroutine, one envelope at a time, preserving publish order per
// subscriber.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler broker.HandlerFunc) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	sub := &subscription{ch: make(chan broker.Envelope, subscriberBuffer)}

	b.mu.Lock()
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if set, ok := b.topics[topic]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.topics, topic)
			}
		}
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-sub.ch:
			if err := handler(ctx, env); err != nil {
				return err
			}
		}
	}
}

var _ broker.Broker = (*Broker)(nil)
