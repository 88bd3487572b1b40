package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// acceptSlice bounds a single blocking accept so abort is observed promptly.
const acceptSlice = 250 * time.Millisecond

// Listener errors.
var (
	// ErrAcceptTimeout indicates no connection arrived before the deadline.
	ErrAcceptTimeout = errors.New("accept timed out")

	// ErrAcceptAborted indicates the abort channel fired while waiting.
	ErrAcceptAborted = errors.New("accept aborted")

	// ErrListenerClosed indicates Accept on a closed listener.
	ErrListenerClosed = errors.New("listener closed")
)

// Listener is the endpoint a bridge connects to. It lives for the whole run
// and hands out one connection per Accept.
type Listener struct {
	ln *net.TCPListener

	mu     sync.Mutex
	closed bool
}

// Listen binds addr with address reuse enabled so a run can rebind the port
// immediately after a previous run.
func Listen(ctx context.Context, addr string) (*Listener, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("listen %s: unexpected listener %T", addr, ln)
	}
	return &Listener{ln: tcp}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept waits up to timeout for one connection. Cancelling ctx or closing
// abort ends the wait early with ErrAcceptAborted.
func (l *Listener) Accept(ctx context.Context, timeout time.Duration, abort <-chan struct{}) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-abort:
			return nil, ErrAcceptAborted
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrAcceptAborted, ctx.Err())
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w after %s", ErrAcceptTimeout, timeout)
		}
		if err := l.ln.SetDeadline(time.Now().Add(min(remaining, acceptSlice))); err != nil {
			return nil, l.acceptErr(err)
		}

		conn, err := l.ln.Accept()
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, l.acceptErr(err)
		}
	}
}

func (l *Listener) acceptErr(err error) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrListenerClosed
	}
	return fmt.Errorf("accept: %w", err)
}

// Close releases the port. It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.ln.Close()
}
