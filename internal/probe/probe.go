package probe

import (
	"context"

	"github.com/hamed0406/certwatch/internal/domain"
)

// Prober retrieves the certificate of a single target. Implementations never
// return a Go error: failures are reported in CertificateResult.Err.
type Prober interface {
	Probe(ctx context.Context, target domain.Target) domain.CertificateResult
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, target domain.Target) domain.CertificateResult

func (f ProberFunc) Probe(ctx context.Context, target domain.Target) domain.CertificateResult {
	return f(ctx, target)
}
