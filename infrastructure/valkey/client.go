package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const DefaultConnectTimeout = 5 * time.Second

type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// Client is the shared Valkey connection. Keys passed to Get, Set and
// GetDel are stored under the configured prefix; pub/sub channels are not.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings once; an unreachable server is an error so
// callers can fall back to single-server mode.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	}
	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("valkey: connect %s: %w", cfg.Address, err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("valkey: ping %s within %v: %w", cfg.Address, timeout, err)
	}

	return &Client{inner: inner, keyPrefix: normalizePrefix(cfg.KeyPrefix)}, nil
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts under the prefix: Key("secrets", "AMO_ACCESS_TOKEN") is
// "waamo:secrets:AMO_ACCESS_TOKEN" for prefix "waamo".
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

func (c *Client) KeyPrefix() string {
	return c.keyPrefix
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// Get reads key; a missing key reports ok=false without an error.
func (c *Client) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	value, err = c.inner.Do(ctx, c.inner.B().Get().Key(key).Build()).ToString()
	return missing(value, err)
}

// Set writes key. A positive ttl makes it expire, rounded down to whole
// seconds with a floor of one.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl > 0 {
		seconds := int64(ttl / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		return c.inner.Do(ctx, c.inner.B().Set().Key(key).Value(value).ExSeconds(seconds).Build()).Error()
	}
	return c.inner.Do(ctx, c.inner.B().Set().Key(key).Value(value).Build()).Error()
}

// GetDel reads and removes key atomically.
func (c *Client) GetDel(ctx context.Context, key string) (value string, ok bool, err error) {
	value, err = c.inner.Do(ctx, c.inner.B().Getdel().Key(key).Build()).ToString()
	return missing(value, err)
}

// Publish sends message on channel as is.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return c.inner.Do(ctx, c.inner.B().Publish().Channel(channel).Message(message).Build()).Error()
}

// Subscribe blocks, invoking fn for every message on channel until ctx ends.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(message string)) error {
	return c.inner.Receive(ctx, c.inner.B().Subscribe().Channel(channel).Build(), func(msg valkeylib.PubSubMessage) {
		fn(msg.Message)
	})
}

func missing(value string, err error) (string, bool, error) {
	if valkeylib.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
