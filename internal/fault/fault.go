// Package fault defines the failure taxonomy shared by the search service,
// the fetch scheduler and the error aggregator.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkTimeout
	KindNetworkConnection
	KindHTTPStatus
	KindAntiBotBlocked
	KindOversizedContent
	KindSizeLimitExceeded
)

func (k Kind) String() string {
	switch k {
	case KindNetworkTimeout:
		return "NetworkTimeout"
	case KindNetworkConnection:
		return "NetworkConnection"
	case KindHTTPStatus:
		return "HttpStatus"
	case KindAntiBotBlocked:
		return "AntiBotBlocked"
	case KindOversizedContent:
		return "OversizedContent"
	case KindSizeLimitExceeded:
		return "SizeLimitExceeded"
	default:
		return "Unknown"
	}
}

// Severe kinds are reported to the user immediately instead of waiting for
// the next aggregation tick.
func (k Kind) Severe() bool {
	return k == KindNetworkTimeout || k == KindNetworkConnection
}

// Network reports whether the kind is a transport or protocol failure.
func (k Kind) Network() bool {
	return k == KindNetworkTimeout || k == KindNetworkConnection || k == KindHTTPStatus
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, only for KindHTTPStatus
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Kind == KindHTTPStatus && e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, fault.ErrAntiBotBlocked).
// A target with a non-zero Status only matches the same status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Status == 0 || t.Status == e.Status
}

// Code is the aggregation key for the failure, e.g. TIMEOUT or HTTP_404.
func (e *Error) Code() string {
	switch e.Kind {
	case KindNetworkTimeout:
		return "TIMEOUT"
	case KindNetworkConnection:
		return "CONNECTION"
	case KindHTTPStatus:
		return fmt.Sprintf("HTTP_%d", e.Status)
	case KindAntiBotBlocked:
		return "ANTI_BOT"
	case KindOversizedContent:
		return "OVERSIZE"
	case KindSizeLimitExceeded:
		return "SIZE_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Sentinels for errors.Is.
var (
	ErrNetworkTimeout    = &Error{Kind: KindNetworkTimeout}
	ErrNetworkConnection = &Error{Kind: KindNetworkConnection}
	ErrHTTPStatus        = &Error{Kind: KindHTTPStatus}
	ErrAntiBotBlocked    = &Error{Kind: KindAntiBotBlocked}
	ErrOversizedContent  = &Error{Kind: KindOversizedContent}
	ErrSizeLimitExceeded = &Error{Kind: KindSizeLimitExceeded}
)

// New builds a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HTTPStatus builds a KindHTTPStatus error.
func HTTPStatus(code int) *Error {
	return &Error{Kind: KindHTTPStatus, Status: code, Message: "unexpected status"}
}

// KindOf returns the kind of err, or KindUnknown if err is not classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Classify maps an arbitrary error to a *Error. Already classified errors are
// returned as is; transport errors become timeout or connection failures.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if IsTimeout(err) {
		return Wrap(KindNetworkTimeout, "request timed out", err)
	}
	if isConnection(err) {
		return Wrap(KindNetworkConnection, "connection failed", err)
	}
	return Wrap(KindUnknown, "unexpected failure", err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnection(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// Transport errors without a more specific cause (EOF mid-handshake,
		// closed idle connections) are treated as connection failures.
		return !errors.Is(err, context.Canceled)
	}
	return false
}
