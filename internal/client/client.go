// Package client talks to a countergraph server over HTTP and WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	store "github.com/hanpama/countergraph/internal/store"
)

// Location is a line/column position in the request source.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ResponseError is one entry of a response's errors list.
type ResponseError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is a decoded result envelope.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []ResponseError `json:"errors,omitempty"`
}

// Error is returned when the server answered with a non-empty errors list.
type Error struct {
	Status int
	Errors []ResponseError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, re := range e.Errors {
		msgs[i] = re.Message
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Client sends operations to one server.
type Client struct {
	endpoint string
	stream   string
	http     *http.Client
	dialer   *websocket.Dialer
	log      *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithLogger(l *zap.Logger) Option       { return func(c *Client) { c.log = l } }

// New returns a client for the server rooted at serverURL, e.g.
// "http://localhost:4000". Operations go to /graphql and streams to
// /graphql/ws.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("client: empty server URL")
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", base.Scheme)
	}
	endpoint := base.JoinPath("graphql")
	stream := base.JoinPath("graphql", "ws")
	stream.Scheme = "ws"
	if base.Scheme == "https" {
		stream.Scheme = "wss"
	}

	c := &Client{
		endpoint: endpoint.String(),
		stream:   stream.String(),
		http:     http.DefaultClient,
		dialer:   websocket.DefaultDialer,
		log:      zap.NewNop(),
	}
	for _, f := range opts {
		f(c)
	}
	return c, nil
}

// Do runs a query or mutation and decodes its data into out, which may be
// nil. Without variables the source is posted as application/graphql. Any
// errors in the response make Do fail with *Error.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, out any) error {
	res, status, err := c.post(ctx, query, variables)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return &Error{Status: status, Errors: res.Errors}
	}
	if out == nil || len(res.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Data, out); err != nil {
		return fmt.Errorf("client: decode data: %w", err)
	}
	return nil
}

// Raw runs a query or mutation and returns the envelope as received.
func (c *Client) Raw(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	res, _, err := c.post(ctx, query, variables)
	return res, err
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any) (*Response, int, error) {
	var (
		body        []byte
		contentType string
	)
	if variables == nil {
		body, contentType = []byte(query), "application/graphql"
	} else {
		b, err := json.Marshal(map[string]any{"query": query, "variables": variables})
		if err != nil {
			return nil, 0, fmt.Errorf("client: encode request: %w", err)
		}
		body, contentType = b, "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/graphql-response+json, application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("client: post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("client: read response: %w", err)
	}
	c.log.Debug("graphql response", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(raw)))

	var res Response
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("client: unexpected %s response: %w", resp.Status, err)
	}
	return &res, resp.StatusCode, nil
}

// Query reads the counter.
func (c *Client) Query(ctx context.Context) (store.Counter, error) {
	var out struct {
		Counter store.Counter `json:"counter"`
	}
	if err := c.Do(ctx, "{ counter { count } }", nil, &out); err != nil {
		return store.Counter{}, err
	}
	return out.Counter, nil
}

// Increment adds by to the counter. A nil by uses the server default.
func (c *Client) Increment(ctx context.Context, by *int) (store.Counter, error) {
	var out struct {
		Increment *store.Counter `json:"increment"`
	}
	var err error
	if by == nil {
		err = c.Do(ctx, "mutation { increment { count } }", nil, &out)
	} else {
		err = c.Do(ctx, "mutation($by: Int) { increment(by: $by) { count } }", map[string]any{"by": *by}, &out)
	}
	if err != nil {
		return store.Counter{}, err
	}
	if out.Increment == nil {
		return store.Counter{}, errors.New("client: increment returned null")
	}
	return *out.Increment, nil
}

// Reset zeroes the counter.
func (c *Client) Reset(ctx context.Context) (store.Counter, error) {
	var out struct {
		Reset store.Counter `json:"reset"`
	}
	if err := c.Do(ctx, "mutation { reset { count } }", nil, &out); err != nil {
		return store.Counter{}, err
	}
	return out.Reset, nil
}

// Watch sends query over a WebSocket and calls fn with every envelope the
// server sends back, until ctx is done, the server closes the stream, or fn
// returns an error. A clean close by either side returns nil.
func (c *Client) Watch(ctx context.Context, query string, fn func(*Response) error) error {
	conn, _, err := c.dialer.DialContext(ctx, c.stream, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.stream, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline())
		_ = conn.Close()
	})
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(query)); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client: read: %w", err)
		}
		var res Response
		if err := json.Unmarshal(msg, &res); err != nil {
			return fmt.Errorf("client: decode envelope: %w", err)
		}
		if err := fn(&res); err != nil {
			return err
		}
	}
}

func deadline() time.Time { return time.Now().Add(time.Second) }
