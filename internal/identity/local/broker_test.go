package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnexa/learnexa/internal/identity"
)

type inbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (i *inbox) add(msg Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
}

func (i *inbox) kinds() []identity.EventKind {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]identity.EventKind, 0, len(i.msgs))
	for _, m := range i.msgs {
		out = append(out, m.Kind)
	}
	return out
}

func startBroker(t *testing.T) (*Broker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	broker := NewBroker(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = broker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-broker.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("broker did not subscribe")
	}
	return broker, client
}

func fixed(id string) func() string {
	return func() string { return id }
}

func TestBrokerRoutesByClient(t *testing.T) {
	broker, _ := startBroker(t)
	a, b := &inbox{}, &inbox{}
	broker.Subscribe("client-a", fixed("user-1"), a.add)
	broker.Subscribe("client-b", fixed("user-2"), b.add)

	ctx := context.Background()
	require.NoError(t, broker.Publish(ctx, Message{Kind: identity.EventSignedIn, ClientID: "client-a"}))
	require.NoError(t, broker.Publish(ctx, Message{Kind: identity.EventSignedOut, ClientID: "client-a"}))

	assert.Eventually(t, func() bool { return len(a.kinds()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []identity.EventKind{identity.EventSignedIn, identity.EventSignedOut}, a.kinds())
	assert.Empty(t, b.kinds())
}

func TestBrokerRoutesUserUpdatesByUser(t *testing.T) {
	broker, _ := startBroker(t)
	tab1, tab2, other := &inbox{}, &inbox{}, &inbox{}
	broker.Subscribe("laptop", fixed("user-1"), tab1.add)
	broker.Subscribe("phone", fixed("user-1"), tab2.add)
	broker.Subscribe("desk", fixed("user-2"), other.add)

	require.NoError(t, broker.NotifyUserUpdated(context.Background(), "user-1"))

	assert.Eventually(t, func() bool { return len(tab1.kinds()) == 1 && len(tab2.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, other.kinds())
}

func TestBrokerUnsubscribe(t *testing.T) {
	broker, client := startBroker(t)
	box, marker := &inbox{}, &inbox{}
	cancel := broker.Subscribe("client-a", fixed(""), box.add)
	broker.Subscribe("marker", fixed(""), marker.add)
	cancel()
	cancel()

	ctx := context.Background()
	require.NoError(t, broker.Publish(ctx, Message{Kind: identity.EventSignedIn, ClientID: "client-a"}))
	require.NoError(t, client.Publish(ctx, EventsChannel, "{not json").Err())
	require.NoError(t, broker.Publish(ctx, Message{Kind: identity.EventSignedIn, ClientID: "marker"}))

	assert.Eventually(t, func() bool { return len(marker.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, box.kinds())
}
