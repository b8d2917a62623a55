package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"solrtmp/internal/solrtmp"
	"solrtmp/pkg/rtmp"
)

// session is a started app connected to a target.
type session struct {
	app    *solrtmp.App
	target *rtmp.Target
}

// openSession loads the config, connects to the url argument or the configured
// url, and returns a context that ends on SIGINT or SIGTERM.
func openSession(parent context.Context, configPath string, args []string) (context.Context, *session, func(), error) {
	config, err := solrtmp.LoadConfig(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	solrtmp.InitLogger(config)

	raw := config.RTMP.URL
	if len(args) > 0 {
		raw = args[0]
	}
	if raw == "" {
		return nil, nil, nil, fmt.Errorf("no url given and rtmp.url is not configured")
	}
	target, err := rtmp.ParseTarget(raw)
	if err != nil {
		return nil, nil, nil, err
	}

	app, err := solrtmp.NewApp(config)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := app.Start(); err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	cleanup := func() {
		stop()
		app.Stop()
	}

	if err := app.Connect(ctx, target); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	app.Client().SetConnectionClosedHandler(func() {
		slog.Info("Connection closed by peer")
		stop()
	})
	return ctx, &session{app: app, target: target}, cleanup, nil
}

// streamName is the stream from the url unless overridden.
func (s *session) streamName(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if s.target.Stream == "" {
		return "", fmt.Errorf("no stream name in %s", s.target.TcURL())
	}
	return s.target.Stream, nil
}

func createOutput(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}
