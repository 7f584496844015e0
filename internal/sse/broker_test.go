package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	broker := NewBroker(client)
	t.Cleanup(broker.Close)
	return broker
}

func receive(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case event := <-client.Events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBroker(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to every subscriber of a topic", func(t *testing.T) {
		broker := newTestBroker(t)
		first := broker.Subscribe("pairing:abc")
		second := broker.Subscribe("pairing:abc")
		assert.Equal(t, 2, broker.ClientCount("pairing:abc"))

		err := broker.Publish(ctx, "pairing:abc", Event{Type: "authorized", Data: json.RawMessage(`{"status":"authorized"}`)})
		require.NoError(t, err)

		assert.Equal(t, "authorized", receive(t, first).Type)
		assert.Equal(t, "authorized", receive(t, second).Type)
	})

	t.Run("topics are isolated", func(t *testing.T) {
		broker := newTestBroker(t)
		mine := broker.Subscribe("pairing:mine")
		other := broker.Subscribe("pairing:other")

		require.NoError(t, broker.Publish(ctx, "pairing:other", Event{Type: "authorized", Data: json.RawMessage(`{}`)}))

		assert.Equal(t, "authorized", receive(t, other).Type)
		select {
		case event := <-mine.Events:
			t.Fatalf("unexpected event %q", event.Type)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("last unsubscribe drops the topic", func(t *testing.T) {
		broker := newTestBroker(t)
		client := broker.Subscribe("pairing:abc")

		broker.Unsubscribe(client)
		broker.Unsubscribe(client)

		assert.Equal(t, 0, broker.ClientCount("pairing:abc"))
		_, open := <-client.Done
		assert.False(t, open)
	})

	t.Run("close ends every client", func(t *testing.T) {
		broker := newTestBroker(t)
		client := broker.Subscribe("pairing:abc")

		broker.Close()

		_, open := <-client.Done
		assert.False(t, open)
		assert.NotPanics(t, func() { broker.Unsubscribe(client) })
	})
}
