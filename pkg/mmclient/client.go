// Package mmclient talks to a Mattermost server over its v4 REST API:
// a thin HTTP client plus an entity cache and the paginated post
// fetcher. One client serves one run; calls are strictly sequential.
package mmclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmdl/mattermost-dl/internal/logger"
)

const apiPrefix = "/api/v4/"

// Client is a stateful connection to one Mattermost server. It holds
// the bearer token and a context map whose entries substitute
// placeholders like {userId} in request paths.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string

	context   map[string]string
	loopDelay time.Duration

	cache cache
}

// Option configures a Client.
type Option func(*Client)

// WithToken seeds the client with a personal access token, skipping
// the login round trip.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLoopDelay sets the pause between paginated requests. Zero means
// no throttling.
func WithLoopDelay(d time.Duration) Option {
	return func(c *Client) { c.loopDelay = d }
}

// WithHTTPClient replaces the underlying HTTP client, mainly for
// tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL (scheme + host, no
// API suffix).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		context: map[string]string{},
	}
	c.cache.init()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken reports whether the client already holds a usable token.
func (c *Client) HasToken() bool { return c.token != "" }

// Login exchanges credentials for a bearer token. The server returns
// the token in the Token response header rather than the body.
func (c *Client) Login(username, password string) error {
	body, err := json.Marshal(map[string]string{
		"login_id": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.baseURL+apiPrefix+"users/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return &AuthError{Login: username, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Login: username, Err: httpError(resp)}
	}
	token := resp.Header.Get("Token")
	if token == "" {
		return &AuthError{Login: username, Err: fmt.Errorf("login response carries no token header")}
	}
	c.token = token
	return nil
}

// expandPath substitutes {key} placeholders from the client's context
// map.
func (c *Client) expandPath(path string) string {
	for key, value := range c.context {
		path = strings.ReplaceAll(path, "{"+key+"}", value)
	}
	return path
}

// getRaw performs a GET and returns the raw response; the caller
// closes the body. Non-200 responses are drained into an HTTPError.
func (c *Client) getRaw(path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + apiPrefix + strings.TrimLeft(c.expandPath(path), "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, httpError(resp)
	}
	return resp, nil
}

// get performs a GET and decodes the JSON body into result.
func (c *Client) get(path string, query url.Values, result any) error {
	resp, err := c.getRaw(path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response of %s: %w", path, err)
	}
	return nil
}

// DownloadTo streams the body of an API path into w and returns the
// Content-Type the server declared, which may be empty.
func (c *Client) DownloadTo(path string, w io.Writer) (contentType string, err error) {
	resp, err := c.getRaw(path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download %s: %w", path, err)
	}
	return resp.Header.Get("Content-Type"), nil
}

// Delay sleeps the configured throttling pause between paginated
// requests.
func (c *Client) Delay() {
	if c.loopDelay <= 0 {
		return
	}
	logger.Debug("Throttling between paginated requests", "delay", c.loopDelay)
	time.Sleep(c.loopDelay)
}

func httpError(resp *http.Response) *HTTPError {
	e := &HTTPError{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
	}
	var serverErr struct {
		Message       string `json:"message"`
		DetailedError string `json:"detailed_error"`
	}
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err == nil {
		if json.Unmarshal(body, &serverErr) == nil {
			e.Message = serverErr.Message
			e.Detail = serverErr.DetailedError
		}
	}
	return e
}
