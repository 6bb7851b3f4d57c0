package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	eventbus "github.com/hanpama/countergraph/internal/eventbus"
	events "github.com/hanpama/countergraph/internal/events"
	executor "github.com/hanpama/countergraph/internal/executor"
	language "github.com/hanpama/countergraph/internal/language"
	reqid "github.com/hanpama/countergraph/internal/reqid"
	subscription "github.com/hanpama/countergraph/internal/subscription"
	validation "github.com/hanpama/countergraph/internal/validation"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// WSHandler serves GraphQL over a WebSocket. Each text message carries one
// request, either as raw source text or as a JSON object with query,
// operationName and variables. A connection holds at most one subscription.
type WSHandler struct {
	ops      operations
	subs     *subscription.Manager
	upgrader websocket.Upgrader
	opt      wsOptions
}

type wsOptions struct {
	log        *zap.Logger
	limit      rate.Limit
	burst      int
	pingPeriod time.Duration
	origins    []string
}

type WSOption func(*wsOptions)

// WithWSLogger sets the logger used for connection lifecycle messages.
func WithWSLogger(l *zap.Logger) WSOption { return func(o *wsOptions) { o.log = l } }

// WithRateLimit caps inbound messages per connection. A zero limit disables it.
func WithRateLimit(limit rate.Limit, burst int) WSOption {
	return func(o *wsOptions) { o.limit, o.burst = limit, burst }
}

// WithPingPeriod sets how often keepalive pings are written. The read
// deadline is a little longer than the period.
func WithPingPeriod(d time.Duration) WSOption { return func(o *wsOptions) { o.pingPeriod = d } }

// WithOrigins restricts upgrades to the listed origins. "*" allows any.
func WithOrigins(origins ...string) WSOption { return func(o *wsOptions) { o.origins = origins } }

// NewWS creates the streaming handler. Subscriptions are registered with subs.
func NewWS(exec *executor.Executor, subs *subscription.Manager, opts ...WSOption) *WSHandler {
	o := wsOptions{limit: 20, burst: 40, pingPeriod: 54 * time.Second, origins: []string{"*"}}
	for _, f := range opts {
		f(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	h := &WSHandler{ops: operations{exec: exec}, subs: subs, opt: o}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || contains(h.opt.origins, "*") {
		return true
	}
	return contains(h.opt.origins, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.opt.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &wsConn{
		h:      h,
		ws:     ws,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, 16),
		log:    h.opt.log.With(zap.String("remote", r.RemoteAddr)),
	}
	if h.opt.limit > 0 {
		c.limiter = rate.NewLimiter(h.opt.limit, h.opt.burst)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.WSConnect{Remote: r.RemoteAddr})
	c.log.Debug("websocket connected")

	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump()
	}()
	c.readPump()

	c.shutdown()
	c.pumps.Wait()
	<-written

	eventbus.Publish(context.Background(), events.WSDisconnect{Remote: r.RemoteAddr, Messages: c.messages, Duration: time.Since(start)})
	c.log.Debug("websocket disconnected", zap.Int("messages", c.messages), zap.Duration("duration", time.Since(start)))
}

// wsConn is one upgraded connection: one reader (the ServeHTTP goroutine),
// one writer, and at most one stream pump.
type wsConn struct {
	h       *WSHandler
	ws      *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	send    chan []byte
	limiter *rate.Limiter
	log     *zap.Logger

	mu       sync.Mutex
	stream   *subscription.Stream
	pumps    sync.WaitGroup
	messages int
}

func (c *wsConn) readPump() {
	pongWait := c.h.opt.pingPeriod * 10 / 9
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.messages++
		if kind != websocket.TextMessage {
			c.reply(requestError("only text messages are supported"))
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.reply(requestError("rate limit exceeded"))
			continue
		}
		c.handle(msg)
	}
}

// writePump owns every write to the socket. A failed write ends the
// connection.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.h.opt.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				c.shutdown()
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("websocket ping failed", zap.Error(err))
				c.shutdown()
				_ = c.ws.Close()
				return
			}
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.ws.Close()
			return
		}
	}
}

func (c *wsConn) handle(msg []byte) {
	// A message that is a JSON object is a request body; anything else,
	// including the "{ ... }" query shorthand, is source text.
	params := validation.Params{Query: string(msg)}
	if text := strings.TrimSpace(string(msg)); strings.HasPrefix(text, "{") && json.Valid(msg) {
		var body GraphQLRequest
		if err := json.Unmarshal(msg, &body); err != nil {
			c.reply(requestError("invalid JSON message"))
			return
		}
		params = validation.Params{Query: body.Query, OperationName: body.OperationName, Variables: body.Variables}
	}

	ctx, rid := reqid.NewContext(c.ctx)
	req, rejected := c.h.ops.prepare(ctx, "ws", params)
	if rejected != nil {
		c.reply(*rejected)
		return
	}
	if req.Kind != language.Subscription {
		c.reply(c.h.ops.execute(ctx, "ws", req))
		return
	}
	c.subscribe(ctx, rid, req)
}

func (c *wsConn) subscribe(ctx context.Context, rid string, req *validation.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.reply(requestError("a subscription is already active on this connection"))
		return
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Transport: "ws", Query: req.Query, OperationName: req.OperationName, OperationType: string(req.Kind)})
	stream, err := c.h.subs.Subscribe(ctx, req)
	finish := events.GraphQLFinish{
		Transport:     "ws",
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: string(req.Kind),
		Duration:      time.Since(start),
	}
	if err != nil {
		finish.Errors = []error{err}
		eventbus.Publish(ctx, finish)
		c.reply(requestError(err.Error()))
		return
	}
	eventbus.Publish(ctx, finish)
	c.stream = stream
	c.log.Debug("subscription registered", zap.String("request_id", rid), zap.String("subscription_id", stream.ID().String()))

	c.pumps.Add(1)
	go func() {
		defer c.pumps.Done()
		c.pumpStream(stream)
	}()
}

// pumpStream forwards every value the stream produces until the stream or
// the connection closes.
func (c *wsConn) pumpStream(stream *subscription.Stream) {
	for {
		res, err := stream.Next(c.ctx)
		if err != nil {
			if !errors.Is(err, subscription.ErrClosed) && !errors.Is(err, context.Canceled) {
				c.log.Debug("subscription ended", zap.Error(err))
			}
			if errors.Is(err, subscription.ErrClosed) {
				// Manager shutdown: nothing more will arrive.
				c.shutdown()
			}
			return
		}
		c.reply(fromResult(res))
	}
}

// reply queues res for the writer. It gives up once the connection is
// closing.
func (c *wsConn) reply(res Response) {
	b, err := json.Marshal(res)
	if err != nil {
		c.log.Error("encode websocket response", zap.Error(err))
		return
	}
	select {
	case c.send <- b:
	case <-c.ctx.Done():
	}
}

// shutdown cancels the connection context and releases its stream.
func (c *wsConn) shutdown() {
	c.cancel()
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
}
