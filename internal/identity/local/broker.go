package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnexa/learnexa/internal/identity"
)

// EventsChannel is the Redis pub/sub channel carrying session changes.
const EventsChannel = "learnexa:auth:events"

// Message is one session change on the wire. ClientID targets a single
// browser; USER_UPDATED messages without a client target every browser
// signed in as UserID.
type Message struct {
	Kind      identity.EventKind `json:"kind"`
	ClientID  string             `json:"client_id,omitempty"`
	UserID    string             `json:"user_id,omitempty"`
	User      *identity.User     `json:"user,omitempty"`
	ExpiresAt time.Time          `json:"expires_at,omitempty"`
}

type subscriber struct {
	clientID string
	userID   func() string
	fn       func(Message)
}

// Broker fans session changes published by any process out to the
// clients subscribed in this one.
type Broker struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int

	ready     chan struct{}
	readyOnce sync.Once
}

// NewBroker constructs a Broker. Run must be started for deliveries.
func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, logger: logger, subs: make(map[int]*subscriber), ready: make(chan struct{})}
}

// Publish sends msg to every process.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("local: encode event: %w", err)
	}
	if err := b.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("local: publish event: %w", err)
	}
	return nil
}

// NotifyUserUpdated asks every open session of userID to reload it.
func (b *Broker) NotifyUserUpdated(ctx context.Context, userID string) error {
	return b.Publish(ctx, Message{Kind: identity.EventUserUpdated, UserID: userID})
}

// Subscribe registers fn for messages addressed to clientID, and for user
// updates of whichever user userID reports at delivery time.
func (b *Broker) Subscribe(clientID string, userID func() string, fn func(Message)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{clientID: clientID, userID: userID, fn: fn}
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Ready is closed once the Redis subscription is confirmed.
func (b *Broker) Ready() <-chan struct{} {
	return b.ready
}

// Run consumes the channel until ctx ends. Messages are dispatched one at
// a time so each client sees them in publish order.
func (b *Broker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, EventsChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("local: subscribe events: %w", err)
	}
	b.readyOnce.Do(func() { close(b.ready) })

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("drop malformed auth event", slog.Any("error", err))
				continue
			}
			b.Deliver(msg)
		}
	}
}

// Deliver hands msg to the matching subscribers of this process only.
func (b *Broker) Deliver(msg Message) {
	b.mu.RLock()
	targets := make([]func(Message), 0, 1)
	for _, s := range b.subs {
		if msg.ClientID != "" {
			if s.clientID == msg.ClientID {
				targets = append(targets, s.fn)
			}
			continue
		}
		if msg.Kind == identity.EventUserUpdated && msg.UserID != "" && s.userID != nil && s.userID() == msg.UserID {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range targets {
		fn(msg)
	}
}
