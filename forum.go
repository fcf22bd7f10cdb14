// Package forum is the Go client SDK for the forum backend.
//
// It covers the REST endpoints a client needs around its session and the
// real-time messaging layer: one persistent connection carrying messages,
// typing indicators, presence and session-expiry pushes, with bounded
// automatic reconnection.
//
// Example:
//
//	client := forum.NewClient("https://forum.example.com")
//	_ = client.Login(ctx, "alice@example.com", "secret")
//
//	rt, _ := client.Realtime(nil)
//	stop := rt.OnMessage(func(m forum.Message) { fmt.Println(m.Content) })
//	defer stop()
//	_ = rt.Connect(ctx)
//	rt.SendMessage(ctx, 2, "hi")
package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 30 * time.Second
	WSPath         = "/api/ws"
	LoginPath      = "/login"
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the forum REST API. Its cookie jar carries the session.
type Client struct {
	baseURL    string
	site       *url.URL
	httpClient *http.Client
	creds      *CookieCredentials
	log        *zap.Logger
}

type ClientOption func(*Client)

// WithHTTPClient uses client for requests. A jar is attached if it has none.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		hc := *client
		if hc.Jar == nil {
			hc.Jar = c.httpClient.Jar
		}
		c.httpClient = &hc
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	site, err := url.Parse(c.baseURL)
	if err != nil {
		c.log.Warn("unparseable base url", zap.String("base_url", c.baseURL), zap.Error(err))
		site = &url.URL{}
	}
	c.site = site
	c.creds = NewCookieCredentials(c.httpClient.Jar, site)
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken installs a session token, e.g. one persisted by a previous login.
func (c *Client) SetToken(token string) {
	c.creds.SetToken(token)
}

// Token returns the current session token, or "".
func (c *Client) Token() string {
	return c.creds.Token()
}

// Credentials returns the cookie-backed credential store of this client.
func (c *Client) Credentials() *CookieCredentials {
	return c.creds
}

// WSURL returns the persistent connection endpoint.
func (c *Client) WSURL() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + WSPath
}

// Realtime creates a realtime client that shares this client's session
// cookie and uses it for the offline presence flush. Call Connect to open it.
func (c *Client) Realtime(config *RealtimeConfig) (*RealtimeClient, error) {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = c.httpClient
	}
	if cfg.Offline == nil {
		cfg.Offline = c
	}
	if cfg.Logger == nil {
		cfg.Logger = c.log
	}
	return NewRealtimeClient(c.WSURL(), &cfg)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return nil, apiErr
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	if body == nil {
		return c.doRequest(ctx, method, path, nil, "", query)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doRequest(ctx, method, path, bytes.NewReader(b), "application/json", query)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Auth
// ============================================================================

// Login authenticates with an email or username and password. The session
// cookie lands in the client's jar.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	form := url.Values{}
	form.Set("email", identifier)
	form.Set("password", password)
	_, err := c.doRequest(ctx, "POST", "/api/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil)
	return err
}

// UserStatus reports whether the session is logged in, and as whom.
func (c *Client) UserStatus(ctx context.Context) (*UserStatus, error) {
	data, err := c.doJSON(ctx, "GET", "/api/user/status", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[UserStatus](data)
}

// Logout ends the session on the backend.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doJSON(ctx, "POST", "/api/logout", nil, nil)
	return err
}

// MarkOffline sets the current user offline.
func (c *Client) MarkOffline(ctx context.Context) error {
	_, err := c.doJSON(ctx, "POST", "/api/user/status/offline", nil, nil)
	return err
}

// ============================================================================
// Messaging
// ============================================================================

// Conversations lists conversations and users without one yet.
func (c *Client) Conversations(ctx context.Context) (*ConversationList, error) {
	data, err := c.doJSON(ctx, "GET", "/api/messages", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ConversationList](data)
}

// Messages returns one page of the conversation with peerID, newest first.
func (c *Client) Messages(ctx context.Context, peerID, offset int) (*MessagePage, error) {
	q := url.Values{}
	q.Set("chat_id", strconv.Itoa(peerID))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	data, err := c.doJSON(ctx, "GET", "/api/messages", nil, q)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MessagePage](data)
}

// MarkRead marks messages from senderID as read.
func (c *Client) MarkRead(ctx context.Context, senderID int) error {
	_, err := c.doJSON(ctx, "POST", "/api/messages/mark-read", map[string]int{"sender_id": senderID}, nil)
	return err
}

// UnreadCount returns the number of unread messages.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	data, err := c.doJSON(ctx, "GET", "/api/messages/unread-count", nil, nil)
	if err != nil {
		return 0, err
	}
	res, err := decodeJSON[struct {
		Count int `json:"count"`
	}](data)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}
