package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	userAgent      = "WhatsApp-AmoCRM-Integration/1.0"
	defaultTimeout = 30 * time.Second
)

// Config describes one CRM account and its OAuth application.
type Config struct {
	BaseURL      string // https://<subdomain>.amocrm.ru/api/v4
	TokenURL     string // https://<subdomain>.amocrm.ru/oauth2/access_token
	AuthURL      string // https://www.amocrm.ru/oauth
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client talks to the CRM REST API on behalf of a TokenStore. Every
// authenticated call goes through withAuthRetry.
type Client struct {
	cfg    Config
	tokens *TokenStore
	http   *http.Client
	now    func() time.Time

	// OnRefresh, if set, is called after every refresh attempt with its outcome.
	OnRefresh func(err error)
}

func NewClient(cfg Config, tokens *TokenStore) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://www.amocrm.ru/oauth"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   httpClient,
		now:    time.Now,
	}
}

// Tokens exposes the store backing this client.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

// request is an immutable description of one API call; it can be replayed
// after a token refresh.
type request struct {
	method string
	path   string
	query  url.Values
	body   []byte
}

func newRequest(method, path string, query url.Values, payload any) (request, error) {
	r := request{method: method, path: path, query: query}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return r, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		r.body = b
	}
	return r, nil
}

// do runs an authenticated call and decodes the JSON answer into dest. It
// returns (false, nil) for 204 No Content, which the CRM uses for empty searches.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, dest any) (bool, error) {
	req, err := newRequest(method, path, query, payload)
	if err != nil {
		return false, err
	}

	status, body, err := c.withAuthRetry(ctx, req, 1)
	if err != nil {
		return false, err
	}
	if status == http.StatusNoContent || len(body) == 0 {
		return false, nil
	}
	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return false, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return true, nil
}

// withAuthRetry sends req and, when the CRM answers 401, refreshes the token
// and replays req. At most maxAttempts refreshes happen for this one call; the
// counter lives on this stack frame so concurrent calls never share it. If the
// refresh is impossible or fails, the original 401 is returned.
func (c *Client) withAuthRetry(ctx context.Context, req request, maxAttempts int) (int, []byte, error) {
	if c.tokens.AccessToken() == "" && c.tokens.RefreshToken() == "" {
		return 0, nil, ErrNoToken
	}

	attempts := 0
	for {
		status, body, err := c.send(ctx, req)
		if err != nil {
			return 0, nil, err
		}
		if status >= 200 && status < 300 {
			return status, body, nil
		}

		apiErr := newAPIError(status, body)
		if status != http.StatusUnauthorized {
			logrus.Warnf("[AMOCRM] %s %s failed: %v", req.method, req.path, apiErr)
			return status, body, apiErr
		}

		c.tokens.MarkUnauthorized()
		if attempts >= maxAttempts || c.tokens.RefreshToken() == "" {
			return status, body, apiErr
		}
		attempts++

		logrus.Infof("[AMOCRM] access token rejected on %s %s, refreshing", req.method, req.path)
		if _, rerr := c.RefreshAccessToken(ctx); rerr != nil {
			logrus.WithError(rerr).Warn("[AMOCRM] token refresh failed")
			return status, body, apiErr
		}
	}
}

func (c *Client) send(ctx context.Context, req request) (int, []byte, error) {
	endpoint := c.cfg.BaseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		reader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.AccessToken(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("amocrm %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("amocrm %s %s: read body: %w", req.method, req.path, err)
	}
	return resp.StatusCode, body, nil
}
