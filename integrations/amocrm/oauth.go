package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	domainCRM "github.com/AzielCF/wa-amo-bridge/domains/crm"
	"github.com/sirupsen/logrus"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthURL builds the consent page URL the operator opens once to connect the account.
func (c *Client) AuthURL(state string) (string, error) {
	if c.cfg.ClientID == "" {
		return "", fmt.Errorf("amocrm: client id is not configured")
	}
	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)
	return c.cfg.AuthURL + "?" + params.Encode(), nil
}

// ExchangeCode trades an authorization code for a token pair and installs it.
func (c *Client) ExchangeCode(ctx context.Context, code string) (domainCRM.TokenPair, error) {
	if code == "" {
		return domainCRM.TokenPair{}, fmt.Errorf("amocrm: authorization code is empty")
	}
	pair, err := c.requestToken(ctx, tokenRequest{GrantType: grantAuthorizationCode, Code: code})
	if err != nil {
		return domainCRM.TokenPair{}, err
	}
	if err := c.tokens.Replace(ctx, pair); err != nil {
		logrus.WithError(err).Warn("[AMOCRM] tokens obtained but could not be persisted")
	}
	logrus.Info("[AMOCRM] authorization code exchanged, tokens stored")
	return c.tokens.Current(), nil
}

// RefreshAccessToken exchanges the stored refresh token for a new pair. The
// refresh token returned by the endpoint replaces the old one; if none is
// returned the old one is kept.
func (c *Client) RefreshAccessToken(ctx context.Context) (domainCRM.TokenPair, error) {
	refresh, ok := c.tokens.beginRefresh()
	if !ok {
		err := fmt.Errorf("amocrm: no refresh token")
		if c.OnRefresh != nil {
			c.OnRefresh(err)
		}
		return domainCRM.TokenPair{}, err
	}

	pair, err := c.requestToken(ctx, tokenRequest{GrantType: grantRefreshToken, RefreshToken: refresh})
	if err != nil {
		c.tokens.abortRefresh()
		if c.OnRefresh != nil {
			c.OnRefresh(err)
		}
		return domainCRM.TokenPair{}, err
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refresh
	}
	if err := c.tokens.Replace(ctx, pair); err != nil {
		logrus.WithError(err).Warn("[AMOCRM] refreshed tokens could not be persisted")
	}
	if c.OnRefresh != nil {
		c.OnRefresh(nil)
	}
	logrus.Info("[AMOCRM] access token refreshed")
	return c.tokens.Current(), nil
}

func (c *Client) requestToken(ctx context.Context, req tokenRequest) (domainCRM.TokenPair, error) {
	req.ClientID = c.cfg.ClientID
	req.ClientSecret = c.cfg.ClientSecret
	req.RedirectURI = c.cfg.RedirectURI

	payload, err := json.Marshal(req)
	if err != nil {
		return domainCRM.TokenPair{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return domainCRM.TokenPair{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domainCRM.TokenPair{}, fmt.Errorf("amocrm token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, body)
		logrus.Errorf("[AMOCRM] token endpoint (%s) failed: %v", req.GrantType, apiErr)
		return domainCRM.TokenPair{}, apiErr
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domainCRM.TokenPair{}, fmt.Errorf("amocrm token response: %w", err)
	}
	if tr.AccessToken == "" {
		return domainCRM.TokenPair{}, fmt.Errorf("amocrm: token endpoint returned no access_token")
	}

	pair := domainCRM.TokenPair{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	if tr.ExpiresIn > 0 {
		exp := c.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
		pair.ExpiresAt = &exp
	}
	return pair, nil
}
