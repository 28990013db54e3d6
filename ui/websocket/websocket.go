package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// Client message codes.
const (
	CodeSubscribe    = "SUBSCRIBE"
	CodeUnsubscribe  = "UNSUBSCRIBE"
	CodeSubscribed   = "SUBSCRIBED"
	CodeUnsubscribed = "UNSUBSCRIBED"
	CodePing         = "PING"
	CodePong         = "PONG"
	CodeEvent        = "EVENT"
)

const relayChannel = "ws_broadcast"

// Envelope is the frame written to clients and relayed between servers. An
// empty Channel means every client receives it.
type Envelope struct {
	Code      string    `json:"code"`
	Event     string    `json:"event,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  string    `json:"sender_id,omitempty"`
}

type clientMessage struct {
	Code    string `json:"code"`
	Channel string `json:"channel"`
}

type conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Relay carries envelopes between servers; *valkey.Client satisfies it.
type Relay interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string, fn func(message string)) error
}

// Hub owns the connection set. All map access happens on the Run goroutine,
// other goroutines submit closures through control.
type Hub struct {
	clients  map[conn]map[string]struct{}
	control  chan func()
	outbound chan Envelope
	inbound  chan Envelope
	done     chan struct{}

	relay        Relay
	relayChannel string
	serverID     string
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[conn]map[string]struct{}),
		control:  make(chan func()),
		outbound: make(chan Envelope, 256),
		inbound:  make(chan Envelope, 256),
		done:     make(chan struct{}),
	}
}

// SetRelay enables cross-server fan-out. keyPrefix namespaces the pub/sub
// channel; serverID tags our own envelopes so they are not delivered twice.
func (h *Hub) SetRelay(relay Relay, keyPrefix, serverID string) {
	h.relay = relay
	h.relayChannel = keyPrefix + relayChannel
	h.serverID = serverID
}

// Publish sends event to clients subscribed to channel.
func (h *Hub) Publish(channel, event string, payload any) {
	h.enqueue(Envelope{Code: CodeEvent, Event: event, Channel: channel, Payload: payload})
}

// Broadcast sends event to every connected client.
func (h *Hub) Broadcast(event string, payload any) {
	h.enqueue(Envelope{Code: CodeEvent, Event: event, Payload: payload})
}

func (h *Hub) enqueue(env Envelope) {
	env.Timestamp = time.Now().UTC()
	select {
	case h.outbound <- env:
	default:
		logrus.Warnf("[WS] outbound queue full, dropping %s event", env.Event)
	}
}

// Run processes hub traffic until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.relay != nil {
		h.startRelaySubscriber(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.closeConn(c)
			}
			return
		case fn := <-h.control:
			fn()
		case env := <-h.outbound:
			h.deliver(env)
			if h.relay != nil {
				h.publishToRelay(ctx, env)
			}
		case env := <-h.inbound:
			h.deliver(env)
		}
	}
}

// submit runs fn on the hub goroutine; false once the hub has stopped.
func (h *Hub) submit(fn func()) bool {
	select {
	case h.control <- fn:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) setSubscription(c conn, channel string, on bool) {
	channels, ok := h.clients[c]
	if !ok {
		return
	}
	code := CodeUnsubscribed
	if on {
		channels[channel] = struct{}{}
		code = CodeSubscribed
	} else {
		delete(channels, channel)
	}
	h.write(c, Envelope{Code: code, Channel: channel, Timestamp: time.Now().UTC()})
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	result := make(chan int, 1)
	if !h.submit(func() { result <- len(h.clients) }) {
		return 0
	}
	return <-result
}

func (h *Hub) deliver(env Envelope) {
	env.SenderID = ""
	data, err := json.Marshal(env)
	if err != nil {
		logrus.Errorf("[WS] marshal error: %v", err)
		return
	}
	for c, channels := range h.clients {
		if env.Channel != "" {
			if _, ok := channels[env.Channel]; !ok {
				continue
			}
		}
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			logrus.Errorf("[WS] write error: %v", err)
			h.closeConn(c)
		}
	}
}

func (h *Hub) write(c conn, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		h.closeConn(c)
	}
}

func (h *Hub) closeConn(c conn) {
	_ = c.WriteMessage(websocket.CloseMessage, []byte{})
	_ = c.Close()
	delete(h.clients, c)
}

func (h *Hub) publishToRelay(ctx context.Context, env Envelope) {
	env.SenderID = h.serverID
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := h.relay.Publish(ctx, h.relayChannel, string(data)); err != nil {
		logrus.Errorf("[WS] failed to publish to valkey: %v", err)
	}
}

func (h *Hub) startRelaySubscriber(ctx context.Context) {
	logrus.Infof("[WS] subscribing to %s for cross-server events", h.relayChannel)
	go func() {
		err := h.relay.Subscribe(ctx, h.relayChannel, func(message string) {
			var env Envelope
			if err := json.Unmarshal([]byte(message), &env); err != nil {
				return
			}
			if env.SenderID == h.serverID {
				return
			}
			select {
			case h.inbound <- env:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.Errorf("[WS] valkey subscriber failed: %v", err)
		}
	}()
}

// serve reads client frames until the connection fails.
func (h *Hub) serve(c conn, read func() (int, []byte, error)) {
	if !h.submit(func() { h.clients[c] = make(map[string]struct{}) }) {
		_ = c.Close()
		return
	}
	logrus.Debug("[WS] connection registered")
	defer func() {
		h.submit(func() { delete(h.clients, c) })
		_ = c.Close()
		logrus.Debug("[WS] connection unregistered")
	}()

	for {
		messageType, message, err := read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Debugf("[WS] read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logrus.Debugf("[WS] ignoring malformed frame: %v", err)
			continue
		}
		switch msg.Code {
		case CodeSubscribe, CodeUnsubscribe:
			if msg.Channel == "" {
				continue
			}
			channel, on := msg.Channel, msg.Code == CodeSubscribe
			h.submit(func() { h.setSubscription(c, channel, on) })
		case CodePing:
			h.submit(func() { h.write(c, Envelope{Code: CodePong, Timestamp: time.Now().UTC()}) })
		}
	}
}

func RegisterRoutes(app fiber.Router, hub *Hub) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.serve(c, c.ReadMessage)
	}))
}
