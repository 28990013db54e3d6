package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Envelope
	closed bool
	reads  chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 16)}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(data) == 0 {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err == nil {
		f.frames = append(f.frames, env)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) read() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return 1, data, nil
}

func (f *fakeConn) events() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.frames))
	for _, e := range f.frames {
		if e.Code == CodeEvent {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeConn) hasCode(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.frames {
		if e.Code == code {
			return true
		}
	}
	return false
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func connect(t *testing.T, hub *Hub) *fakeConn {
	t.Helper()
	c := newFakeConn()
	go hub.serve(c, c.read)
	t.Cleanup(func() { close(c.reads) })
	return c
}

func TestHub_PublishReachesOnlySubscribers(t *testing.T) {
	hub, _ := startHub(t)
	subscriber := connect(t, hub)
	other := connect(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	subscriber.reads <- []byte(`{"code":"SUBSCRIBE","channel":"chat_79001234567"}`)
	require.Eventually(t, func() bool { return subscriber.hasCode(CodeSubscribed) }, time.Second, 5*time.Millisecond)

	hub.Publish("chat_79001234567", "new_message", map[string]string{"content": "Hi"})
	hub.Broadcast("chat_updated", map[string]string{"chat_id": "chat_79001234567"})

	require.Eventually(t, func() bool { return len(subscriber.events()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(other.events()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "new_message", subscriber.events()[0].Event)
	assert.Equal(t, "chat_79001234567", subscriber.events()[0].Channel)
	assert.Equal(t, "chat_updated", other.events()[0].Event)
}

func TestHub_UnsubscribeAndPing(t *testing.T) {
	hub, _ := startHub(t)
	c := connect(t, hub)

	c.reads <- []byte(`{"code":"SUBSCRIBE","channel":"chat_1"}`)
	c.reads <- []byte(`{"code":"UNSUBSCRIBE","channel":"chat_1"}`)
	c.reads <- []byte(`not json`)
	c.reads <- []byte(`{"code":"PING"}`)
	require.Eventually(t, func() bool { return c.hasCode(CodePong) }, time.Second, 5*time.Millisecond)
	assert.True(t, c.hasCode(CodeUnsubscribed))

	hub.Publish("chat_1", "new_message", nil)
	hub.Broadcast("marker", nil)
	require.Eventually(t, func() bool { return len(c.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "marker", c.events()[0].Event)
}

type fakeRelay struct {
	mu        sync.Mutex
	published []string
	deliver   chan string
}

func (r *fakeRelay) Publish(_ context.Context, channel, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, channel+" "+message)
	return nil
}

func (r *fakeRelay) Subscribe(ctx context.Context, _ string, fn func(string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-r.deliver:
			fn(msg)
		}
	}
}

func (r *fakeRelay) first() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published[0]
}

func (r *fakeRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func TestHub_RelayIgnoresOwnEnvelopes(t *testing.T) {
	relay := &fakeRelay{deliver: make(chan string, 4)}
	hub := NewHub()
	hub.SetRelay(relay, "waamo:", "server-a")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	c := connect(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast("chat_updated", nil)
	require.Eventually(t, func() bool { return relay.count() == 1 }, time.Second, 5*time.Millisecond)
	first := relay.first()
	assert.Contains(t, first, "waamo:ws_broadcast ")
	assert.Contains(t, first, `"sender_id":"server-a"`)

	relay.deliver <- `{"code":"EVENT","event":"echo","sender_id":"server-a"}`
	relay.deliver <- `{"code":"EVENT","event":"remote","sender_id":"server-b"}`

	require.Eventually(t, func() bool { return len(c.events()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "chat_updated", c.events()[0].Event)
	assert.Equal(t, "remote", c.events()[1].Event)
	assert.Equal(t, 1, relay.count())
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	c := connect(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.closed
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.ClientCount())
}
