package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/hamed0406/certwatch/internal/domain"
)

var errNoCertificate = errors.New("server presented no certificate")

// handshakeError marks failures that happened after the TCP connection was
// established.
type handshakeError struct{ err error }

func (e *handshakeError) Error() string { return e.err.Error() }
func (e *handshakeError) Unwrap() error { return e.err }

// classify maps a dial or handshake error onto a ProbeError category.
func classify(err error) *domain.ProbeError {
	pe := &domain.ProbeError{Message: err.Error()}

	var de *net.DNSError
	var hs *handshakeError
	var ne net.Error
	switch {
	case errors.Is(err, errNoCertificate):
		pe.Kind = domain.ErrNoCertificate
	case errors.As(err, &de):
		pe.Kind = domain.ErrDNS
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		pe.Kind = domain.ErrTimeout
	case errors.As(err, &hs):
		pe.Kind = domain.ErrHandshake
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		pe.Kind = domain.ErrConnect
	default:
		var op *net.OpError
		if errors.As(err, &op) && op.Op == "dial" {
			pe.Kind = domain.ErrConnect
		} else {
			pe.Kind = domain.ErrIO
		}
	}
	return pe
}
