package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LivelyChat/api/message"
	"github.com/LivelyChat/api/platform"
	"github.com/LivelyChat/api/telemetry"
)

// NewMux returns the HTTP handler with all routes wired to deps.
func NewMux(deps Deps) http.Handler {
	handlers := NewHandlers(deps)

	mux := http.NewServeMux()

	routes := []routeDoc{
		{
			Method: http.MethodPost, Path: "/messages/new",
			Summary:     "Submit a new message",
			RequestBody: schemaOfValue(message.Message{}),
			Responses: map[int]responseDoc{
				201: {Description: "Message stored and broadcast"},
				400: {Description: "Malformed message body", Schema: schemaOfValue(errorBody{})},
			},
		},
		{
			Method: http.MethodGet, Path: "/messages",
			Summary: "Fetch message history",
			Params: []paramDoc{
				{Name: "platform", In: "query", Required: true, Description: "Platform name (lower-cased server-side)"},
				{Name: "chat", In: "query", Required: true, Description: "Chat ID or alias"},
				{Name: "secret", In: "query", Description: "Secret for chats that require one"},
				{Name: "before", In: "query", Description: "Only messages strictly before this epoch-seconds timestamp"},
				{Name: "limit", In: "query", Description: "Page size, 1-100, default 20"},
			},
			Responses: map[int]responseDoc{
				200: {Description: "Total and page of messages", Schema: schemaOfValue(message.List{})},
				403: {Description: "Invalid secret", Schema: schemaOfValue(errorBody{})},
				404: {Description: "Chat not found", Schema: schemaOfValue(errorBody{})},
			},
		},
		{
			Method: http.MethodGet, Path: "/qq/group/{groupId}",
			Summary: "Get QQ group metadata",
			Params: []paramDoc{
				{Name: "groupId", In: "path", Required: true, Description: "QQ group ID"},
				{Name: "secret", In: "query", Description: "Secret for chats that require one"},
			},
			Responses: map[int]responseDoc{
				200: {Description: "Group metadata", Schema: schemaOfValue(platform.Group{})},
				403: {Description: "Invalid secret", Schema: schemaOfValue(errorBody{})},
				404: {Description: "Chat not found", Schema: schemaOfValue(errorBody{})},
			},
		},
		{
			Method: http.MethodGet, Path: "/",
			Summary: "Overview of the relay",
			Responses: map[int]responseDoc{
				200: {Description: "Chat and message totals", Schema: schemaOfValue(Overview{})},
			},
		},
	}
	doc := buildOpenAPIDoc(routes)

	mux.HandleFunc("/messages/new", handlers.HandleNewMessage)
	mux.HandleFunc("/messages", handlers.HandleMessages)
	mux.HandleFunc("/qq/group/", handlers.HandleQqGroup)
	mux.HandleFunc("/openapi", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, doc)
	})

	if deps.Hub != nil {
		mux.Handle("/ws", deps.Hub)
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)

	// Registered last: the root pattern also absorbs unmatched paths.
	mux.HandleFunc("/", handlers.HandleOverview)

	// Wrap with correlation ID injector and tracing middleware.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		mux.ServeHTTP(wrapped, r.WithContext(ctx))

		telemetry.ObserveHTTP(r.Method, wrapped.statusCode, time.Since(start))
		telemetry.SetSpanHTTPStatus(span, wrapped.statusCode)
		if wrapped.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrapped.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORS(handler)
}

// statusRecorder wraps ResponseWriter to capture status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack passes websocket upgrades through to the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := r.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	// No ReadTimeout/WriteTimeout: /ws connections are long-lived and
	// manage their own deadlines.
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
