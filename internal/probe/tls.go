package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/certwatch/internal/domain"
)

const (
	DefaultPort    = "443"
	DefaultTimeout = 10 * time.Second
)

// TLSProber dials a target, completes a TLS handshake without verifying the
// chain and reads the leaf certificate.
type TLSProber struct {
	Logger  *zap.Logger
	Port    string
	Timeout time.Duration
	Dialer  *net.Dialer
	now     func() time.Time
}

func NewTLSProber(logger *zap.Logger, timeout time.Duration) *TLSProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TLSProber{
		Logger:  logger,
		Port:    DefaultPort,
		Timeout: timeout,
		Dialer:  &net.Dialer{},
		now:     time.Now,
	}
}

func (p *TLSProber) Probe(ctx context.Context, target domain.Target) domain.CertificateResult {
	res := domain.CertificateResult{Target: target}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cert, err := p.fetchLeaf(ctx, string(target))
	res.CheckedAt = p.now().UTC()
	if err != nil {
		res.Err = classify(err)
		p.Logger.Debug("probe_failed",
			zap.String("target", string(target)),
			zap.String("kind", string(res.Err.Kind)),
			zap.String("error", res.Err.Message),
		)
		return res
	}

	exp := cert.NotAfter.UTC()
	res.Expiry = &exp
	res.Issuer = issuerName(cert)
	p.Logger.Debug("probe_ok",
		zap.String("target", string(target)),
		zap.Time("expiry", exp),
		zap.String("issuer", res.Issuer),
	)
	return res
}

func (p *TLSProber) fetchLeaf(ctx context.Context, host string) (*x509.Certificate, error) {
	port := p.Port
	if port == "" {
		port = DefaultPort
	}
	d := p.Dialer
	if d == nil {
		d = &net.Dialer{}
	}

	raw, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	defer raw.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(dl)
	}

	conn := tls.Client(raw, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, // inspecting expiry, not establishing trust
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, &handshakeError{err: err}
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, errNoCertificate
	}
	return certs[0], nil
}

// issuerName prefers the issuer organization, then its common name.
func issuerName(cert *x509.Certificate) string {
	if len(cert.Issuer.Organization) > 0 && cert.Issuer.Organization[0] != "" {
		return cert.Issuer.Organization[0]
	}
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	return "Unknown"
}
