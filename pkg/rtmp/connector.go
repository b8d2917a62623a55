package rtmp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DEFAULT_PORT = 1935

// Connector opens a transport, performs the handshake and starts a Connection
// bound to handler.
type Connector interface {
	Connect(ctx context.Context, host string, port int, handler Handler) (*Connection, error)
}

// TCPConnector dials plain RTMP over TCP.
type TCPConnector struct {
	Dialer           net.Dialer
	HandshakeTimeout time.Duration
	Options          Options
}

func NewTCPConnector(opts Options, handshakeTimeout time.Duration) *TCPConnector {
	return &TCPConnector{
		HandshakeTimeout: handshakeTimeout,
		Options:          opts,
	}
}

func (t *TCPConnector) Connect(ctx context.Context, host string, port int, handler Handler) (*Connection, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	nc, err := t.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if t.HandshakeTimeout > 0 {
		_ = nc.SetDeadline(time.Now().Add(t.HandshakeTimeout))
	}
	if err := clientHandshake(nc); err != nil {
		closeWithLog(nc)
		return nil, fmt.Errorf("handshake with %s: %w", addr, err)
	}
	_ = nc.SetDeadline(time.Time{})

	conn := NewConnection(nc, handler, t.Options)
	conn.Start()
	return conn, nil
}

// Target is a parsed rtmp:// URL.
type Target struct {
	Host   string
	Port   int
	App    string
	Stream string
}

// ParseTarget splits rtmp://host[:port]/app[/stream] into its parts.
func ParseTarget(raw string) (*Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "rtmp" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}

	t := &Target{Host: u.Hostname(), Port: DEFAULT_PORT}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		t.Port = port
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return nil, fmt.Errorf("missing application in %q", raw)
	}
	t.App, t.Stream, _ = strings.Cut(path, "/")
	return t, nil
}

// TcURL is the connect tcUrl for the target.
func (t *Target) TcURL() string {
	return fmt.Sprintf("rtmp://%s/%s", net.JoinHostPort(t.Host, strconv.Itoa(t.Port)), t.App)
}
