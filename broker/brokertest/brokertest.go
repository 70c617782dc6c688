// Package brokertest provides a conformance suite that every broker.Broker
// implementation must pass. Implementation packages call RunBrokerTests
// from their own tests with a factory for a fresh broker.
package brokertest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/collabhq/realtime-go/broker"
)

// Factory creates a fresh broker instance for one test. Register cleanup
// with t.Cleanup.
type Factory func(t *testing.T) broker.Broker

// RunBrokerTests runs the complete conformance suite against the factory.
func RunBrokerTests(t *testing.T, factory Factory) {
	t.Run("DeliverToSubscriber", func(t *testing.T) {
		testDeliverToSubscriber(t, factory)
	})
	t.Run("FanOutToAllSubscribers", func(t *testing.T) {
		testFanOutToAllSubscribers(t, factory)
	})
	t.Run("TopicIsolation", func(t *testing.T) {
		testTopicIsolation(t, factory)
	})
	t.Run("ContextCancelStopsSubscribe", func(t *testing.T) {
		testContextCancelStopsSubscribe(t, factory)
	})
	t.Run("HandlerErrorStopsSubscribe", func(t *testing.T) {
		testHandlerErrorStopsSubscribe(t, factory)
	})
	t.Run("LateSubscriberMissesEarlierPublishes", func(t *testing.T) {
		testLateSubscriberMissesEarlierPublishes(t, factory)
	})
}

// collect subscribes on its own goroutine and forwards every envelope to
// the returned channel. The subscription's terminal error arrives on errs.
func collect(ctx context.Context, b broker.Broker, topic string) (<-chan broker.Envelope, <-chan error) {
	got := make(chan broker.Envelope, 16)
	errs := make(chan error, 1)
	go func() {
		errs <- b.Subscribe(ctx, topic, func(ctx context.Context, env broker.Envelope) error {
			got <- env
			return nil
		})
	}()
	// Give the subscription time to register before the caller publishes.
	// Both implementations under test are in-process, so this is generous.
	time.Sleep(100 * time.Millisecond)
	return got, errs
}

func recvEnvelope(t *testing.T, got <-chan broker.Envelope) broker.Envelope {
	t.Helper()
	select {
	case env := <-got:
		return env
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for envelope")
		return broker.Envelope{}
	}
}

func expectNoEnvelope(t *testing.T, got <-chan broker.Envelope) {
	t.Helper()
	select {
	case env := <-got:
		t.Fatalf("unexpected envelope %q: %s", env.ID, env.Data)
	case <-time.After(200 * time.Millisecond):
	}
}

func testDeliverToSubscriber(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, _ := collect(ctx, b, "rooms")

	payload := []byte(`{"event":"user:presence:online"}`)
	id, err := b.Publish(ctx, "rooms", payload)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id == "" {
		t.Fatalf("publish must return a non-empty envelope id")
	}

	env := recvEnvelope(t, got)
	if env.ID != id {
		t.Fatalf("envelope id mismatch: published %q, received %q", id, env.ID)
	}
	if !bytes.Equal(env.Data, payload) {
		t.Fatalf("payload mismatch: %s", env.Data)
	}
}

func testFanOutToAllSubscribers(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got1, _ := collect(ctx, b, "rooms")
	got2, _ := collect(ctx, b, "rooms")

	id, err := b.Publish(ctx, "rooms", []byte(`"hello"`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	env1 := recvEnvelope(t, got1)
	env2 := recvEnvelope(t, got2)
	if env1.ID != id || env2.ID != id {
		t.Fatalf("both subscribers must see the publish: %q, %q, want %q", env1.ID, env2.ID, id)
	}
}

func testTopicIsolation(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gotA, _ := collect(ctx, b, "topic-a")
	gotB, _ := collect(ctx, b, "topic-b")

	if _, err := b.Publish(ctx, "topic-a", []byte(`"only-a"`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env := recvEnvelope(t, gotA)
	if string(env.Data) != `"only-a"` {
		t.Fatalf("subscriber a received wrong payload: %s", env.Data)
	}
	expectNoEnvelope(t, gotB)
}

func testContextCancelStopsSubscribe(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, errs := collect(ctx, b, "rooms")
	cancel()

	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("subscribe did not return after cancel")
	}
}

func testHandlerErrorStopsSubscribe(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errBoom := errors.New("boom")
	errs := make(chan error, 1)
	go func() {
		errs <- b.Subscribe(ctx, "rooms", func(ctx context.Context, env broker.Envelope) error {
			return errBoom
		})
	}()
	time.Sleep(100 * time.Millisecond)

	if _, err := b.Publish(ctx, "rooms", []byte(`"x"`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, errBoom) {
			t.Fatalf("want handler error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("subscribe did not return after handler error")
	}
}

func testLateSubscriberMissesEarlierPublishes(t *testing.T, factory Factory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.Publish(ctx, "rooms", []byte(`"early"`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, _ := collect(ctx, b, "rooms")

	if _, err := b.Publish(ctx, "rooms", []byte(`"late"`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	env := recvEnvelope(t, got)
	if string(env.Data) != `"late"` {
		t.Fatalf("late subscriber must only see later publishes, got %s", env.Data)
	}
	expectNoEnvelope(t, got)
}
