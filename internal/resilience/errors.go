package resilience

import (
	"errors"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// IsTransient reports whether an error is safe to retry: network timeouts,
// connection-level failures, and FTP 4xx replies, which the protocol defines
// as temporary.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// FTP servers signal "try again later" with 4xx reply codes.
	var proto *textproto.Error
	if errors.As(err, &proto) {
		return proto.Code >= 400 && proto.Code < 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from transport layers often survive only as text.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"i/o timeout",
		"connection closed",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
