package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/certwatch/internal/domain"
)

// ErrNotConfigured is returned by a sink without a webhook URL.
var ErrNotConfigured = errors.New("webhook not configured")

// Alert is one row of an expiry notification.
type Alert struct {
	Target   domain.Target
	Severity domain.Severity
	Days     int
	Expiry   time.Time
	Issuer   string
}

// AlertFromEntry builds an Alert from a snapshot entry.
func AlertFromEntry(e domain.Entry) Alert {
	a := Alert{
		Target:   e.Result.Target,
		Severity: e.Severity,
		Days:     e.Days,
		Issuer:   e.Result.Issuer,
	}
	if e.Result.Expiry != nil {
		a.Expiry = *e.Result.Expiry
	}
	return a
}

// Delivery is what the webhook answered.
type Delivery struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// DispatchError is returned when the webhook answered with a non-2xx status.
type DispatchError struct {
	Sink string
	Delivery
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Sink, e.StatusCode, e.Message)
}

// Notifier delivers expiry alerts and free-text test messages.
type Notifier interface {
	Name() string
	SendAlert(ctx context.Context, alerts []Alert) (Delivery, error)
	SendTest(ctx context.Context, text string) (Delivery, error)
}

// Multi fans out to every non-nil sink. All sinks are attempted; errors are
// combined.
type Multi []Notifier

// NewMulti drops nil sinks so a Multi built from optional webhooks can be
// checked with len.
func NewMulti(sinks ...Notifier) Multi {
	var m Multi
	for _, s := range sinks {
		if s == nil || isNilSink(s) {
			continue
		}
		m = append(m, s)
	}
	return m
}

func isNilSink(n Notifier) bool {
	switch s := n.(type) {
	case *Teams:
		return s == nil
	case *Slack:
		return s == nil
	}
	return false
}

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n.Name())
	}
	return strings.Join(names, "+")
}

func (m Multi) SendAlert(ctx context.Context, alerts []Alert) (Delivery, error) {
	return m.each(func(n Notifier) (Delivery, error) { return n.SendAlert(ctx, alerts) })
}

func (m Multi) SendTest(ctx context.Context, text string) (Delivery, error) {
	return m.each(func(n Notifier) (Delivery, error) { return n.SendTest(ctx, text) })
}

func (m Multi) each(fn func(Notifier) (Delivery, error)) (Delivery, error) {
	if len(m) == 0 {
		return Delivery{}, ErrNotConfigured
	}
	var (
		errs error
		last Delivery
		msgs []string
	)
	for _, n := range m {
		d, err := fn(n)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		last = d
		msgs = append(msgs, n.Name()+": "+d.Message)
	}
	if errs != nil {
		return Delivery{StatusCode: last.StatusCode, Message: errs.Error()}, errs
	}
	last.Message = strings.Join(msgs, "; ")
	return last, nil
}

// postJSON sends payload to url and maps the response onto a Delivery.
func postJSON(ctx context.Context, client *http.Client, sink, url string, payload any) (Delivery, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Delivery{}, fmt.Errorf("encode %s payload: %w", sink, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Delivery{}, fmt.Errorf("build %s request: %w", sink, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Delivery{}, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	d := Delivery{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
	}
	if resp.StatusCode/100 != 2 {
		return d, &DispatchError{Sink: sink, Delivery: d}
	}
	return d, nil
}
