package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hanpama/countergraph/internal/config"
	"github.com/hanpama/countergraph/internal/counter"
	"github.com/hanpama/countergraph/internal/eventbus"
	"github.com/hanpama/countergraph/internal/executor"
	"github.com/hanpama/countergraph/internal/introspection"
	"github.com/hanpama/countergraph/internal/logger"
	"github.com/hanpama/countergraph/internal/metrics"
	"github.com/hanpama/countergraph/internal/otel"
	"github.com/hanpama/countergraph/internal/server"
	"github.com/hanpama/countergraph/internal/store"
	"github.com/hanpama/countergraph/internal/subscription"
)

func newServeCmd() *cobra.Command {
	// Flags default to the environment, so a flag beats COUNTERGRAPH_* which
	// beats the built-in default.
	cfg, envErr := config.LoadServer()
	var pretty bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			log, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, pretty, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json, console)")
	f.BoolVar(&cfg.Introspection, "introspection", cfg.Introspection, "enable GraphQL introspection")
	f.BoolVar(&cfg.GraphiQL, "graphiql", cfg.GraphiQL, "serve GraphiQL on GET /graphql")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	f.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "request body limit in bytes (0 disables)")
	f.StringSliceVar(&cfg.CORSOrigins, "cors-origin", cfg.CORSOrigins, "allowed CORS origin; repeatable")
	f.Float64Var(&cfg.WSRateLimit, "ws-rate-limit", cfg.WSRateLimit, "WebSocket messages per second per connection (0 disables)")
	f.IntVar(&cfg.WSBurst, "ws-burst", cfg.WSBurst, "WebSocket message burst per connection")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	f.StringVar(&cfg.OTLPEndpoint, "otel-endpoint", cfg.OTLPEndpoint, "OTLP collector endpoint")
	f.StringVar(&cfg.ServiceName, "otel-service", cfg.ServiceName, "OpenTelemetry service name")
	f.BoolVar(&pretty, "pretty", false, "pretty-print JSON responses")
	return cmd
}

// app is the fully wired server: store, executor, subscriptions and routes.
type app struct {
	store   *store.Store
	subs    *subscription.Manager
	handler http.Handler
	close   func()
}

func newApp(cfg config.Server, pretty bool, log *zap.Logger) (*app, error) {
	sch, err := counter.LoadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	st := store.New()
	rt := counter.NewRuntime(st)
	if err := rt.Check(sch); err != nil {
		return nil, fmt.Errorf("check resolvers: %w", err)
	}
	exec := executor.New(introspection.Wrap(rt, sch, introspection.WithEnabled(cfg.Introspection)), sch)

	subs := subscription.NewManager(exec, subscription.WithLogger(log.Named("subscription")))
	st.SetNotifier(subs)

	eventbus.Use(eventbus.New())
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	unregister := m.Register()

	hopts := []server.Option{
		server.WithTimeout(cfg.Timeout),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
		server.WithGraphiQL(cfg.GraphiQL),
		server.WithStreamPath("/graphql/ws"),
		server.WithLogger(log.Named("http")),
	}
	if pretty {
		hopts = append(hopts, server.WithPretty())
	}
	wsopts := []server.WSOption{
		server.WithWSLogger(log.Named("ws")),
		server.WithRateLimit(rate.Limit(cfg.WSRateLimit), cfg.WSBurst),
	}
	if len(cfg.CORSOrigins) > 0 {
		hopts = append(hopts, server.WithCORS(cfg.CORSOrigins...))
		wsopts = append(wsopts, server.WithOrigins(cfg.CORSOrigins...))
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", server.New(exec, hopts...))
	mux.Handle("/graphql/ws", server.NewWS(exec, subs, wsopts...))
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"hello": "world"})
	})

	return &app{
		store:   st,
		subs:    subs,
		handler: mux,
		close: func() {
			subs.Close()
			unregister()
		},
	}, nil
}

func serve(ctx context.Context, cfg config.Server, pretty bool, log *zap.Logger) error {
	a, err := newApp(cfg, pretty, log)
	if err != nil {
		return err
	}
	shutdownOtel, err := otel.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			log.Warn("otel shutdown", zap.Error(err))
		}
	}()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("GraphQL server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// Streaming connections are hijacked, so Shutdown does not wait for
		// them; closing the subscriptions ends them.
		a.close()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
