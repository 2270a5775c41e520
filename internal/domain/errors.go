package domain

// ErrorKind categorizes why a probe failed.
type ErrorKind string

const (
	ErrDNS           ErrorKind = "dns"
	ErrConnect       ErrorKind = "connect"
	ErrTimeout       ErrorKind = "timeout"
	ErrHandshake     ErrorKind = "handshake"
	ErrNoCertificate ErrorKind = "no_certificate"
	ErrIO            ErrorKind = "io"
)

// ProbeError is the structured failure attached to a CertificateResult.
type ProbeError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ProbeError) Error() string {
	return string(e.Kind) + ": " + e.Message
}
