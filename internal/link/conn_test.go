package link

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestReceiveIntoAccumulatesFragments(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := NewConn(client, 0)
	defer c.Close()

	want := make([]byte, 5000)
	for i := range want {
		want[i] = byte(i * 7)
	}
	go func() {
		rest := want
		size := 1
		for len(rest) > 0 {
			n := size
			if n > len(rest) {
				n = len(rest)
			}
			if _, err := server.Write(rest[:n]); err != nil {
				return
			}
			rest = rest[n:]
			size = size%13 + 1
		}
	}()

	got, err := c.ReceiveExact(len(want))
	if err != nil {
		t.Fatalf("ReceiveExact: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("received bytes differ")
	}
}

func TestReceiveIntoPeerClosedMidRead(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client, 0)
	defer c.Close()

	go func() {
		server.Write(make([]byte, 10))
		server.Close()
	}()

	_, err := c.ReceiveExact(100)
	if !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("err = %v, want ErrPeerClosed", err)
	}
}

func TestReceiveIntoTimeoutIsPeerClosed(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := NewConn(client, 20*time.Millisecond)
	defer c.Close()

	start := time.Now()
	_, err := c.ReceiveExact(8)
	if !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("err = %v, want ErrPeerClosed", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("read timeout took %s", time.Since(start))
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := NewConn(client, 0)

	errc := make(chan error, 1)
	go func() {
		_, err := c.ReceiveExact(8)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrPeerClosed) {
			t.Fatalf("err = %v, want ErrPeerClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("receive did not unblock after close")
	}
}

type shortWriteConn struct {
	net.Conn
	buf    bytes.Buffer
	writes int
}

func (s *shortWriteConn) Write(b []byte) (int, error) {
	s.writes++
	if len(b) > 3 {
		b = b[:3]
	}
	return s.buf.Write(b)
}

func (s *shortWriteConn) Close() error { return nil }

func TestSendRetriesShortWrites(t *testing.T) {
	sc := &shortWriteConn{}
	c := NewConn(sc, 0)
	payload := []byte("0123456789abcdef")
	if err := c.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !bytes.Equal(sc.buf.Bytes(), payload) {
		t.Fatalf("wrote %q, want %q", sc.buf.Bytes(), payload)
	}
	if sc.writes != 6 {
		t.Fatalf("writes = %d, want 6", sc.writes)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := NewConn(client, 0)
	c.Close()
	if err := c.Send([]byte{1}); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("err = %v, want ErrSendFailed", err)
	}
}

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return ln, host, port
}

func TestManagerSingleConnection(t *testing.T) {
	ln, host, port := listen(t)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	m := NewManager(Options{ConnectTimeout: time.Second})
	ctx := context.Background()
	c, err := m.Connect(ctx, host, port)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.ID() == "" {
		t.Fatalf("expected session id")
	}
	if m.Current() != c {
		t.Fatalf("Current() did not return the open connection")
	}
	if _, err := m.Connect(ctx, host, port); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second connect err = %v, want ErrAlreadyConnected", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if m.Current() != nil {
		t.Fatalf("Current() should be nil after close")
	}

	c2, err := m.Connect(ctx, host, port)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if c2.ID() == c.ID() {
		t.Fatalf("reconnect reused session id")
	}
	m.Close()
}

func TestManagerConnectFailed(t *testing.T) {
	ln, host, port := listen(t)
	ln.Close()

	m := NewManager(Options{ConnectTimeout: time.Second})
	_, err := m.Connect(context.Background(), host, port)
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("err = %v, want ErrConnectFailed", err)
	}
	if m.Current() != nil {
		t.Fatalf("failed connect must not leave a connection")
	}
}
