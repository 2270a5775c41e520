package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/notify"
	"github.com/hamed0406/certwatch/internal/repo"
)

// ErrPersist wraps history storage failures. An alert whose history could
// not be saved is not considered sent.
var ErrPersist = errors.New("persist alert history")

type AlerterConfig struct {
	// Threshold is the alert trigger: days remaining <= Threshold.
	// It is independent of the fixed dashboard tiers.
	Threshold int
	Now       func() time.Time
}

// Alerter sends at most one expiry notification per target per UTC calendar
// day and keeps that record in a durable store.
type Alerter struct {
	logger   *zap.Logger
	store    repo.AlertHistory
	notifier notify.Notifier
	cfg      AlerterConfig

	// sendMu serializes select → dispatch → persist so two evaluations never
	// race on the stored history.
	sendMu sync.Mutex

	mu      sync.RWMutex
	history repo.History
}

// NewAlerter builds an Alerter. notifier may be nil, in which case nothing is
// ever sent.
func NewAlerter(logger *zap.Logger, store repo.AlertHistory, notifier notify.Notifier, cfg AlerterConfig) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if m, ok := notifier.(notify.Multi); ok && len(m) == 0 {
		notifier = nil
	}
	return &Alerter{
		logger:   logger,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		history:  make(repo.History),
	}
}

// Load replaces the in-memory history with the stored one. A missing or
// unreadable store leaves the history empty; that is logged, not returned.
func (a *Alerter) Load(ctx context.Context) {
	h, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Warn("alert_history_load_failed", zap.Error(err))
		h = make(repo.History)
	}
	a.mu.Lock()
	a.history = h
	a.mu.Unlock()
	a.logger.Info("alert_history_loaded", zap.Int("entries", len(h)))
}

// History returns a copy of the current history.
func (a *Alerter) History() repo.History {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history.Clone()
}

func (a *Alerter) Threshold() int { return a.cfg.Threshold }

// Configured reports whether a notification sink is attached.
func (a *Alerter) Configured() bool { return a.notifier != nil }

// MaybeAlert evaluates a single entry. sent is true only when a notification
// went out and the history was persisted.
func (a *Alerter) MaybeAlert(ctx context.Context, e domain.Entry) (bool, error) {
	sent, err := a.Evaluate(ctx, []domain.Entry{e})
	return len(sent) == 1, err
}

// Evaluate picks the entries that are due an alert today, sends them as one
// notification and records them. It returns the targets that were alerted.
func (a *Alerter) Evaluate(ctx context.Context, entries []domain.Entry) ([]domain.Target, error) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	today := domain.Today(a.cfg.Now())
	due := a.due(entries, today)
	if len(due) == 0 {
		return nil, nil
	}
	if a.notifier == nil {
		a.logger.Debug("alert_skipped_no_webhook", zap.Int("due", len(due)))
		return nil, nil
	}

	alerts := make([]notify.Alert, 0, len(due))
	targets := make([]domain.Target, 0, len(due))
	for _, e := range due {
		alerts = append(alerts, notify.AlertFromEntry(e))
		targets = append(targets, e.Result.Target)
	}

	d, err := a.notifier.SendAlert(ctx, alerts)
	if err != nil {
		a.logger.Warn("alert_dispatch_failed",
			zap.String("sink", a.notifier.Name()),
			zap.Int("targets", len(targets)),
			zap.Error(err),
		)
		return nil, err
	}

	a.mu.Lock()
	prev := a.history.Clone()
	for _, t := range targets {
		a.history[t] = today
	}
	next := a.history.Clone()
	a.mu.Unlock()

	if err := a.store.Save(ctx, next); err != nil {
		a.mu.Lock()
		a.history = prev
		a.mu.Unlock()
		a.logger.Error("alert_history_persist_failed",
			zap.Int("targets", len(targets)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = string(t)
	}
	a.logger.Info("alert_sent",
		zap.String("sink", a.notifier.Name()),
		zap.Strings("targets", names),
		zap.Int("status", d.StatusCode),
	)
	return targets, nil
}

// due filters entries that meet the alert condition and have not been
// alerted today.
func (a *Alerter) due(entries []domain.Entry, today string) []domain.Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []domain.Entry
	seen := make(map[domain.Target]bool, len(entries))
	for _, e := range entries {
		t := e.Result.Target
		if e.Result.Err != nil || e.Severity == domain.ErrorState || seen[t] {
			continue
		}
		if e.Days > a.cfg.Threshold {
			continue
		}
		if a.history[t] == today {
			continue
		}
		seen[t] = true
		out = append(out, e)
	}
	return out
}

// SendTestNotification posts free text to the sink. History is not touched.
func (a *Alerter) SendTestNotification(ctx context.Context, text string) (notify.Delivery, error) {
	if a.notifier == nil {
		return notify.Delivery{}, notify.ErrNotConfigured
	}
	return a.notifier.SendTest(ctx, text)
}

// SendTestAlert sends a synthetic alert with made-up targets, bypassing the
// cooldown. History is not touched.
func (a *Alerter) SendTestAlert(ctx context.Context) ([]notify.Alert, notify.Delivery, error) {
	now := a.cfg.Now().UTC()
	fake := []notify.Alert{
		{Target: "test-expired.example.com", Severity: domain.Expired, Days: -30, Expiry: now.AddDate(0, 0, -30), Issuer: "Test CA"},
		{Target: "test-critical.example.com", Severity: domain.Critical, Days: 5, Expiry: now.AddDate(0, 0, 5), Issuer: "Test CA"},
		{Target: "test-warning.example.com", Severity: domain.Warning, Days: 13, Expiry: now.AddDate(0, 0, 13), Issuer: "Test CA"},
	}
	if a.notifier == nil {
		return fake, notify.Delivery{}, notify.ErrNotConfigured
	}
	d, err := a.notifier.SendAlert(ctx, fake)
	return fake, d, err
}
