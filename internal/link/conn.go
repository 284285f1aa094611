// Connection management for the camera socket
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"starcam-link/internal/metrics"
)

var (
	// ErrConnectFailed is returned when the camera endpoint cannot be reached.
	ErrConnectFailed = errors.New("connect failed")
	// ErrPeerClosed is returned when the stream ends before a read completes:
	// EOF, reset, local close or read timeout.
	ErrPeerClosed = errors.New("peer closed")
	// ErrSendFailed is returned when a command buffer could not be written.
	ErrSendFailed = errors.New("send failed")
	// ErrAlreadyConnected is returned by Connect while a connection is open.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned when an operation needs an open connection.
	ErrNotConnected = errors.New("not connected")
)

// Dialer opens the transport stream. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configure a Manager.
type Options struct {
	ConnectTimeout time.Duration
	// ReadTimeout bounds each individual read; zero blocks until data or close.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Dialer       Dialer
	Logger       *slog.Logger
}

// Manager owns the single camera connection.
type Manager struct {
	opts Options
	mu   sync.Mutex
	conn *Conn
}

// NewManager creates a Manager. A zero ConnectTimeout defaults to 5s.
func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	return &Manager{opts: opts}
}

// Connect dials address:port once, bounded by the connect timeout. It is rejected
// with ErrAlreadyConnected while another connection is open.
func (m *Manager) Connect(ctx context.Context, address string, port int) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil && !m.conn.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConnected, m.conn.Remote())
	}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	dctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()
	nc, err := m.opts.Dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, addr, err)
	}

	c := newConn(nc, m.opts.ReadTimeout, m.opts.WriteTimeout)
	m.conn = c
	m.opts.Logger.Info("connected to camera", "remote", addr, "session_id", c.ID())
	return c, nil
}

// Current returns the open connection, or nil.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.conn.Closed() {
		return nil
	}
	return m.conn
}

// Close closes the current connection, if any. Safe to call repeatedly.
func (m *Manager) Close() error {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	err := c.Close()
	m.opts.Logger.Info("disconnected from camera", "remote", c.Remote(), "session_id", c.ID())
	return err
}

// Conn is one camera stream. Reads come from the receiver goroutine while Send may
// be called from any goroutine; writers are serialized.
type Conn struct {
	nc           net.Conn
	id           string
	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewConn wraps an established stream, e.g. one side of net.Pipe in tests.
func NewConn(nc net.Conn, readTimeout time.Duration) *Conn {
	return newConn(nc, readTimeout, 0)
}

func newConn(nc net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		nc:           nc,
		id:           uuid.New().String(),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

// ID returns the session id assigned when the connection was opened.
func (c *Conn) ID() string { return c.id }

// Remote returns the peer address.
func (c *Conn) Remote() string {
	if a := c.nc.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ReceiveExact reads exactly n bytes.
func (c *Conn) ReceiveExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := c.ReceiveInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReceiveInto fills buf completely, accumulating as many partial reads as the
// transport delivers. A zero-length read is treated as the peer closing.
func (c *Conn) ReceiveInto(buf []byte) error {
	got := 0
	for got < len(buf) {
		if c.readTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		n, err := c.nc.Read(buf[got:])
		got += n
		metrics.BytesReceived.Add(float64(n))
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if isPeerClosed(err) || c.Closed() {
				return fmt.Errorf("%w after %d of %d bytes: %w", ErrPeerClosed, got, len(buf), err)
			}
			return fmt.Errorf("receive after %d of %d bytes: %w", got, len(buf), err)
		}
		if n == 0 {
			return fmt.Errorf("%w after %d of %d bytes: zero-length read", ErrPeerClosed, got, len(buf))
		}
	}
	return nil
}

// Send writes the whole buffer, retrying short writes.
func (c *Conn) Send(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.Closed() {
		return fmt.Errorf("%w: %w", ErrSendFailed, net.ErrClosed)
	}
	if c.writeTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	for len(b) > 0 {
		n, err := c.nc.Write(b)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %w", ErrSendFailed, io.ErrShortWrite)
		}
		b = b[n:]
	}
	return nil
}

// Close releases the socket and unblocks any pending read. Safe to call repeatedly.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// isPeerClosed reports whether err ends the stream: EOF, closed connection,
// reset, broken pipe or an expired read deadline.
func isPeerClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
