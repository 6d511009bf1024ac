package batch

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Canonical transport error codes treated as transient.
const (
	CodeConnReset   = "ECONNRESET"
	CodeTimedOut    = "ETIMEDOUT"
	CodeNotFound    = "ENOTFOUND"
	CodeConnRefused = "ECONNREFUSED"
)

// retryableTokens are matched case-insensitively against the error text.
//
//nolint:gochecknoglobals // Fixed lookup table.
var retryableTokens = []string{
	"UNABLE_TO_LOCK_ROW",
	"SERVER_UNAVAILABLE",
	"REQUEST_RUNNING_TOO_LONG",
	"STORAGE_LIMIT_EXCEEDED",
	"TIMEOUT",
	"NETWORK_ERROR",
	"CONNECTION_RESET",
	CodeConnReset,
	CodeTimedOut,
	CodeNotFound,
	CodeConnRefused,
}

//nolint:gochecknoglobals // Fixed lookup table.
var retryableStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

//nolint:gochecknoglobals // Fixed lookup table.
var retryableTransportCodes = map[string]bool{
	CodeConnReset:   true,
	CodeTimedOut:    true,
	CodeNotFound:    true,
	CodeConnRefused: true,
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// TransportCoder is implemented by errors that carry a low-level network error code.
type TransportCoder interface {
	TransportCode() string
}

// ShouldRetry reports whether err is a transient fault worth another attempt.
// Three independent signals are combined: the error text contains a known
// transient token, the error carries a retryable HTTP status, or the error
// maps to a retryable transport code.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrGroupFault) || errors.Is(err, ErrOperationPanic) {
		return false
	}
	return hasRetryableMessage(err) || hasRetryableStatus(err) || retryableTransportCodes[TransportCode(err)]
}

func hasRetryableMessage(err error) bool {
	msg := strings.ToUpper(err.Error())
	for _, token := range retryableTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

func hasRetryableStatus(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return retryableStatusCodes[sc.StatusCode()]
	}
	return false
}

// TransportCode returns the canonical transport code for err, or "" if none applies.
// Explicit TransportCoder values win; otherwise native Go network errors are mapped.
func TransportCode(err error) string {
	var tc TransportCoder
	if errors.As(err, &tc) {
		return strings.ToUpper(tc.TransportCode())
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused
	case errors.Is(err, syscall.ETIMEDOUT):
		return CodeTimedOut
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return CodeNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimedOut
	}

	return ""
}
