// Package gmail provides a minimal client for the Gmail REST API: OAuth2
// token exchange/refresh, inbox listing, message metadata, and raw send.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the mail operations used by the poller and reply surface.
type Client interface {
	// AuthURL returns the OAuth consent URL for the configured scopes.
	AuthURL(state string) string
	// Exchange trades an authorization code for tokens. The refresh token is
	// what gets persisted; it is empty unless consent was prompted.
	Exchange(ctx context.Context, code string) (*Token, error)
	// ListInbox returns ids of the most recent inbox items.
	ListInbox(ctx context.Context, refreshToken string, maxResults int) ([]MessageRef, error)
	// GetMessage fetches subject/from headers and the snippet for one item.
	GetMessage(ctx context.Context, refreshToken, id string) (*MessageDetail, error)
	// Send submits a raw RFC-2822 message.
	Send(ctx context.Context, refreshToken, to, subject, body string) error
}

// Token is the OAuth2 token pair returned by an exchange or refresh.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// MessageRef is a message id from a list call.
type MessageRef struct {
	ID string `json:"id"`
}

// MessageDetail holds the headers and snippet for one inbox item.
type MessageDetail struct {
	ID      string
	Subject string
	From    string
	Snippet string
}

const oauthScopes = "https://www.googleapis.com/auth/gmail.readonly https://www.googleapis.com/auth/gmail.send"

// Option configures the Gmail client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithTokenURL sets a custom OAuth token endpoint (for testing).
func WithTokenURL(u string) Option {
	return func(c *httpClient) { c.tokenURL = u }
}

// WithAuthURL sets a custom OAuth consent endpoint (for testing).
func WithAuthURL(u string) Option {
	return func(c *httpClient) { c.authURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps outbound API calls per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	clientID     string
	clientSecret string
	redirectURL  string
	baseURL      string
	tokenURL     string
	authURL      string
	http         *http.Client
	limiter      *rate.Limiter

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewClient creates a Gmail client with the given OAuth application
// credentials.
func NewClient(clientID, clientSecret, redirectURL string, opts ...Option) Client {
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		baseURL:      "https://gmail.googleapis.com",
		tokenURL:     "https://oauth2.googleapis.com/token",
		authURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", oauthScopes)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	if state != "" {
		q.Set("state", state)
	}
	return c.authURL + "?" + q.Encode()
}

func (c *httpClient) Exchange(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("redirect_uri", c.redirectURL)

	tok, err := c.postToken(ctx, form)
	if err != nil {
		return nil, eris.Wrap(err, "gmail: exchange code")
	}
	return tok, nil
}

// accessTokenFor returns a valid access token for the refresh token,
// refreshing through the token endpoint when the cached one has expired.
func (c *httpClient) accessTokenFor(ctx context.Context, refreshToken string) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		tok := c.accessToken
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	tok, err := c.postToken(ctx, form)
	if err != nil {
		return "", eris.Wrap(err, "gmail: refresh token")
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	// Renew a minute early so in-flight calls don't straddle expiry.
	c.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	c.mu.Unlock()

	return tok.AccessToken, nil
}

func (c *httpClient) postToken(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("token endpoint %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, eris.Wrap(err, "decode token response")
	}
	return &tok, nil
}

func (c *httpClient) ListInbox(ctx context.Context, refreshToken string, maxResults int) ([]MessageRef, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	endpoint := fmt.Sprintf("%s/gmail/v1/users/me/messages?maxResults=%d&labelIds=INBOX", c.baseURL, maxResults)

	var out struct {
		Messages []MessageRef `json:"messages"`
	}
	if err := c.getJSON(ctx, refreshToken, endpoint, &out); err != nil {
		return nil, eris.Wrap(err, "gmail: list inbox")
	}
	return out.Messages, nil
}

func (c *httpClient) GetMessage(ctx context.Context, refreshToken, id string) (*MessageDetail, error) {
	endpoint := fmt.Sprintf(
		"%s/gmail/v1/users/me/messages/%s?format=metadata&metadataHeaders=Subject&metadataHeaders=From",
		c.baseURL, url.PathEscape(id),
	)

	var out struct {
		ID      string `json:"id"`
		Snippet string `json:"snippet"`
		Payload struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
		} `json:"payload"`
	}
	if err := c.getJSON(ctx, refreshToken, endpoint, &out); err != nil {
		return nil, eris.Wrapf(err, "gmail: get message %s", id)
	}

	detail := &MessageDetail{ID: out.ID, Snippet: out.Snippet}
	for _, h := range out.Payload.Headers {
		switch h.Name {
		case "Subject":
			detail.Subject = h.Value
		case "From":
			detail.From = h.Value
		}
	}
	return detail, nil
}

func (c *httpClient) getJSON(ctx context.Context, refreshToken, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.accessTokenFor(ctx, refreshToken)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return eris.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gmail api %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
