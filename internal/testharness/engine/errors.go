package engine

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Kind classifies why a phase failed.
type Kind int

const (
	// KindNone marks a passing result.
	KindNone Kind = iota
	// ConnectionTimeout means an accept or an expected frame did not
	// complete before its deadline.
	ConnectionTimeout
	// FrameMismatch means a whole frame arrived that differs from the
	// expected bytes.
	FrameMismatch
	// SubordinateProcessFailure means the broker or the publisher failed.
	SubordinateProcessFailure
	// UnexpectedDisconnect means the peer closed or reset the connection
	// before a whole expected frame arrived.
	UnexpectedDisconnect
	// ConfigError means the scenario could not be loaded or built.
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case ConnectionTimeout:
		return "ConnectionTimeout"
	case FrameMismatch:
		return "FrameMismatch"
	case SubordinateProcessFailure:
		return "SubordinateProcessFailure"
	case UnexpectedDisconnect:
		return "UnexpectedDisconnect"
	case ConfigError:
		return "ConfigError"
	default:
		return "Unknown"
	}
}

// ClassifiedError wraps an error with its failure kind.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify wraps err with kind. A nil err stays nil.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// Timeout wraps an error as ConnectionTimeout.
func Timeout(err error) error { return Classify(ConnectionTimeout, err) }

// Mismatch wraps an error as FrameMismatch.
func Mismatch(err error) error { return Classify(FrameMismatch, err) }

// Subordinate wraps an error as SubordinateProcessFailure.
func Subordinate(err error) error { return Classify(SubordinateProcessFailure, err) }

// Disconnect wraps an error as UnexpectedDisconnect.
func Disconnect(err error) error { return Classify(UnexpectedDisconnect, err) }

// Config wraps an error as ConfigError.
func Config(err error) error { return Classify(ConfigError, err) }

// KindOf extracts the failure kind. Unclassified errors report KindNone.
func KindOf(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNone
}

// readErrorKind maps a frame read error onto the failure taxonomy.
// Anything that is neither a timeout nor a broken connection is a framing
// error and therefore a mismatch.
func readErrorKind(err error) Kind {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ConnectionTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ConnectionTimeout
	}
	if isDisconnect(err) {
		return UnexpectedDisconnect
	}
	return FrameMismatch
}

func isDisconnect(err error) bool {
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
