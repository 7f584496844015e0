package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/session-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	SubscribeTimeout  = 5 * time.Second
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	Topic  string
	Events chan Event
	Done   chan struct{}
}

type topic struct {
	clients map[*Client]bool
	cancel  context.CancelFunc
	ready   chan struct{}
}

// Broker fans redis pub/sub messages out to in-process subscribers. Any
// instance can publish; every instance with a subscriber on the topic
// delivers.
type Broker struct {
	redis  *redis.Client
	topics map[string]*topic
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redis.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		topics: make(map[string]*topic),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe returns once the redis subscription for the topic is live, so a
// caller that checks state after subscribing cannot miss a publish.
func (b *Broker) Subscribe(name string) *Client {
	client := &Client{
		Topic:  name,
		Events: make(chan Event, 16),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	t, ok := b.topics[name]
	if !ok {
		ctx, cancel := context.WithCancel(b.ctx)
		t = &topic{
			clients: make(map[*Client]bool),
			cancel:  cancel,
			ready:   make(chan struct{}),
		}
		b.topics[name] = t
		go b.subscribeToRedis(ctx, name, t.ready)
	}
	t.clients[client] = true
	clientCount := len(t.clients)
	b.mu.Unlock()

	select {
	case <-t.ready:
	case <-time.After(SubscribeTimeout):
		log.Warn().Str("topic", name).Msg("redis subscription not confirmed in time")
	}

	log.Debug().
		Str("topic", name).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[client.Topic]
	if !ok {
		return
	}
	if _, ok := t.clients[client]; !ok {
		return
	}

	delete(t.clients, client)
	close(client.Done)

	if len(t.clients) == 0 {
		t.cancel()
		delete(b.topics, client.Topic)
	}

	log.Debug().
		Str("topic", client.Topic).
		Int("clientCount", len(t.clients)).
		Msg("sse client unsubscribed")
}

func (b *Broker) Publish(ctx context.Context, name string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.redis.Publish(ctx, redisclient.EventChannel(name), data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, name string, ready chan struct{}) {
	channel := redisclient.EventChannel(name)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("redis pubsub subscribe failed")
	}
	close(ready)

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(name, event)
		}
	}
}

func (b *Broker) broadcast(name string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.topics[name]
	if !ok {
		return
	}

	for client := range t.clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("topic", name).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.topics {
		for client := range t.clients {
			close(client.Done)
		}
	}
	b.topics = make(map[string]*topic)
}

func (b *Broker) ClientCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if t, ok := b.topics[name]; ok {
		return len(t.clients)
	}
	return 0
}
