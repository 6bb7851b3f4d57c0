package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	eventbus "github.com/hanpama/countergraph/internal/eventbus"
	events "github.com/hanpama/countergraph/internal/events"
	executor "github.com/hanpama/countergraph/internal/executor"
	language "github.com/hanpama/countergraph/internal/language"
	reqid "github.com/hanpama/countergraph/internal/reqid"
	validation "github.com/hanpama/countergraph/internal/validation"
)

const (
	contentTypeJSON            = "application/json; charset=utf-8"
	contentTypeGraphQLResponse = "application/graphql-response+json; charset=utf-8"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the executor, and formats responses per GraphQL spec.
type Handler struct {
	ops operations
	opt Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// StreamPath is where subscriptions are served; it is named in the
	// error returned for subscriptions sent over HTTP.
	StreamPath string

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithGraphiQL(enable bool) Option   { return func(o *Options) { o.GraphiQL = enable } }
func WithStreamPath(path string) Option { return func(o *Options) { o.StreamPath = path } }
func WithLogger(l *zap.Logger) Option   { return func(o *Options) { o.Logger = l } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler over exec.
func New(exec *executor.Executor, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, GraphiQL: true, StreamPath: "/graphql/ws"}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	return &Handler{ops: operations{exec: exec}, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	log := h.opt.Logger.With(zap.String("request_id", rid))

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
		log.Debug("graphql http request",
			zap.String("method", r.Method),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	ct := responseContentType(r.Header.Get("Accept"))
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeJSON(w, ct, status, requestError("method not allowed"), h.opt.Pretty)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(graphiqlPage(h.opt.StreamPath))
		return
	}

	req, batch, berr := parseRequest(w, r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = berr.status
		log.Debug("rejected graphql request body", zap.String("reason", berr.message))
		writeJSON(w, ct, status, requestError(berr.message), h.opt.Pretty)
		return
	}

	if batch != nil {
		out := make([]Response, len(batch))
		for i := range batch {
			out[i], _ = h.executeOne(ctx, r.Method, batch[i])
		}
		writeJSON(w, ct, status, out, h.opt.Pretty)
		return
	}

	var res Response
	res, status = h.executeOne(ctx, r.Method, req)
	if len(res.Errors) > 0 {
		log.Debug("graphql request finished with errors",
			zap.Int("errors", len(res.Errors)),
			zap.String("first_error", res.Errors[0].Message))
	}
	writeJSON(w, ct, status, res, h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, method string, params GraphQLRequest) (Response, int) {
	req, rejected := h.ops.prepare(ctx, "http", validation.Params{
		Query:         params.Query,
		OperationName: params.OperationName,
		Variables:     params.Variables,
	})
	if rejected != nil {
		return *rejected, http.StatusBadRequest
	}
	switch {
	case req.Kind == language.Subscription:
		return requestError("subscriptions are not supported over HTTP; connect to " + h.opt.StreamPath), http.StatusBadRequest
	case req.Kind == language.Mutation && method == http.MethodGet:
		return requestError("mutations must be sent with POST"), http.StatusMethodNotAllowed
	}
	return h.ops.execute(ctx, "http", req), http.StatusOK
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type bodyError struct {
	status  int
	message string
}

func badRequest(message string) *bodyError {
	return &bodyError{status: http.StatusBadRequest, message: message}
}

func parseRequest(w http.ResponseWriter, r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *bodyError) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, badRequest("missing 'query'")
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, badRequest("invalid 'variables' JSON")
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return GraphQLRequest{}, nil, &bodyError{status: http.StatusUnsupportedMediaType, message: "invalid Content-Type"}
		}
		mediaType = mt
	}
	if mediaType != "application/json" && mediaType != "application/graphql" {
		return GraphQLRequest{}, nil, &bodyError{status: http.StatusUnsupportedMediaType, message: "unsupported Content-Type"}
	}

	body := r.Body
	if maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return GraphQLRequest{}, nil, &bodyError{status: http.StatusRequestEntityTooLarge, message: "body too large"}
		}
		return GraphQLRequest{}, nil, badRequest("failed to read body")
	}

	if mediaType == "application/graphql" {
		return GraphQLRequest{Query: string(raw), Variables: map[string]any{}}, nil, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var arr []GraphQLRequest
		if err := json.Unmarshal(raw, &arr); err != nil {
			return GraphQLRequest{}, nil, badRequest("invalid JSON")
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, badRequest("empty batch")
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return GraphQLRequest{}, nil, badRequest("invalid JSON")
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, badRequest("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

func writeJSON(w http.ResponseWriter, contentType string, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

// responseContentType prefers the GraphQL response media type when the
// client lists it.
func responseContentType(accept string) string {
	for _, p := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(p))
		if err == nil && mt == "application/graphql-response+json" {
			return contentTypeGraphQLResponse
		}
	}
	return contentTypeJSON
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	if accept == "" {
		return false
	}
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") || p == "*/*" {
			return true
		}
	}
	return false
}
