package solrtmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"solrtmp/internal/metrics"
	"solrtmp/pkg/amf"
	"solrtmp/pkg/persistence"
	"solrtmp/pkg/rtmp"
)

const shutdownTimeout = 5 * time.Second

// App wires the protocol client to its configuration, persistence store and
// metrics, and drains the connection lifecycle events.
type App struct {
	config   *Config
	client   *rtmp.Client
	store    persistence.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	server   *metrics.Server
	events   chan any
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewApp(config *Config) (*App, error) {
	store, err := newStore(config.Persistence)
	if err != nil {
		return nil, err
	}
	return newApp(config, store, tcpConnector), nil
}

// connectorFactory builds the transport for the configured connection options.
type connectorFactory func(opts rtmp.Options, handshakeTimeout time.Duration) rtmp.Connector

func tcpConnector(opts rtmp.Options, handshakeTimeout time.Duration) rtmp.Connector {
	return rtmp.NewTCPConnector(opts, handshakeTimeout)
}

func newApp(config *Config, store persistence.Store, factory connectorFactory) *App {
	events := make(chan any, 64)
	opts := config.ConnectionOptions()
	opts.Events = events
	if config.Tracing.Enabled {
		opts.Tracer = otel.Tracer("solrtmp")
	}

	client := rtmp.NewClient(factory(opts, config.RTMP.HandshakeTimeout))
	client.SetBandwidthWindows(config.RTMP.ReadWindow, config.RTMP.WriteWindow, config.RTMP.LimitType)
	client.SetPersistenceStore(store)

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewConnectionCollector(client.Connection))

	return &App{
		config:   config,
		client:   client,
		store:    store,
		registry: registry,
		metrics:  metrics.New(registry),
		events:   events,
		done:     make(chan struct{}),
	}
}

func newStore(p PersistenceConfig) (persistence.Store, error) {
	switch p.Kind {
	case "file":
		store, err := persistence.NewFileStore(p.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return store, nil
	case "s3":
		client := persistence.NewS3Client(persistence.S3Config{
			Region:    p.Region,
			Endpoint:  p.Endpoint,
			AccessKey: p.AccessKey,
			SecretKey: p.SecretKey,
		})
		return persistence.NewS3Store(client, p.Bucket, p.Prefix), nil
	default:
		return persistence.Nop{}, nil
	}
}

func (a *App) Client() *rtmp.Client {
	return a.client
}

// Start launches the event loop and, when enabled, the metrics endpoint.
func (a *App) Start() error {
	slog.Info("Start solrtmp")
	if a.config.Metrics.Enabled {
		router := metrics.NewRouter(a.registry, a.connected)
		server, err := metrics.Listen(a.config.Metrics.Listen, router)
		if err != nil {
			return err
		}
		a.server = server
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			server.Serve()
		}()
	}

	a.wg.Add(1)
	go a.eventLoop()
	return nil
}

func (a *App) connected() bool {
	conn := a.client.Connection()
	return conn != nil && conn.IsConnected()
}

// Connect opens a connection to target and waits for the connect result.
func (a *App) Connect(ctx context.Context, target *rtmp.Target) error {
	params := rtmp.DefaultConnectionParams(target.Host, target.Port, target.App)
	params["objectEncoding"] = a.config.RTMP.ObjectEncoding

	result := make(chan *rtmp.PendingCall, 1)
	if err := a.client.Connect(ctx, target.Host, target.Port, params, func(call *rtmp.PendingCall) {
		result <- call
	}); err != nil {
		return err
	}

	select {
	case call := <-result:
		if !call.Status().IsSuccess() {
			return fmt.Errorf("connect rejected: %w", callError(call))
		}
		slog.Info("Connected", "host", target.Host, "port", target.Port, "app", target.App)
		return nil
	case <-ctx.Done():
		a.client.Disconnect()
		return ctx.Err()
	}
}

// CreateStream asks the server for a stream and waits for its id.
func (a *App) CreateStream(ctx context.Context) (uint32, error) {
	call := a.client.CreateStream(nil)
	if err := await(ctx, call); err != nil {
		return 0, fmt.Errorf("createStream: %w", err)
	}
	id, ok := amf.ToFloat64(call.Result())
	if !ok || id <= 0 {
		return 0, fmt.Errorf("createStream returned %v", call.Result())
	}
	return uint32(id), nil
}

// await blocks until call completes and reports a failed call as an error.
func await(ctx context.Context, call *rtmp.PendingCall) error {
	select {
	case <-call.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if !call.Status().IsSuccess() {
		return callError(call)
	}
	return nil
}

func callError(call *rtmp.PendingCall) error {
	if err := call.Err(); err != nil {
		return err
	}
	return errors.New(call.Status().String())
}

// Stop disconnects the client and shuts the app down. It is safe to call more
// than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		slog.Info("Stopping solrtmp...")
		a.client.Disconnect()

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("Metrics server shutdown failed", "err", err)
			}
			cancel()
		}

		close(a.done)
		a.wg.Wait()
		slog.Info("solrtmp stopped")
	})
}

func (a *App) eventLoop() {
	defer a.wg.Done()
	for {
		select {
		case event := <-a.events:
			a.channelHandler(event)
		case <-a.done:
			// drain what the closing connection reported
			for {
				select {
				case event := <-a.events:
					a.channelHandler(event)
				default:
					slog.Info("solrtmp event loop stopping...")
					return
				}
			}
		}
	}
}

func (a *App) channelHandler(event any) {
	a.metrics.Observe(event)

	switch e := event.(type) {
	case rtmp.ConnectionEstablished:
		slog.Info("Connection established", "sessionId", e.SessionID, "remote", e.RemoteAddr)
	case rtmp.ConnectionTerminated:
		slog.Info("Connection terminated", "sessionId", e.SessionID,
			"droppedMessages", e.DroppedMessages, "orphanedCalls", e.OrphanedCalls)
	case rtmp.StreamCreated:
		slog.Debug("Stream created", "sessionId", e.SessionID, "streamId", e.StreamID)
	case rtmp.CallCompleted:
		slog.Debug("Call completed", "sessionId", e.SessionID, "method", e.Method,
			"status", e.Status, "duration", e.Duration)
	case rtmp.ErrorOccurred:
		slog.Warn("Connection error", "sessionId", e.SessionID, "context", e.Context, "err", e.Err)
	}
}
