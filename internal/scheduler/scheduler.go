package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/probe"
	"github.com/hamed0406/certwatch/internal/state"
	"github.com/hamed0406/certwatch/internal/targets"
)

// Evaluator receives the alertable entries of each finished cycle.
type Evaluator interface {
	Evaluate(ctx context.Context, entries []domain.Entry) ([]domain.Target, error)
}

type Scheduler struct {
	Logger      *zap.Logger
	Source      targets.Source
	Prober      probe.Prober
	State       *state.Store
	Alerts      Evaluator
	Interval    time.Duration
	Concurrency int

	now     func() time.Time
	mu      sync.Mutex
	current []domain.Target
}

func NewScheduler(
	logger *zap.Logger,
	src targets.Source,
	prober probe.Prober,
	st *state.Store,
	alerts Evaluator,
	interval time.Duration,
	concurrency int,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		Logger:      logger,
		Source:      src,
		Prober:      prober,
		State:       st,
		Alerts:      alerts,
		Interval:    interval,
		Concurrency: concurrency,
		now:         time.Now,
	}
}

// Run does an immediate cycle, then one per tick. Stops when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Logger.Info("scheduler_started",
		zap.Duration("interval", s.Interval),
		zap.Int("workers", s.Concurrency),
	)
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			s.RunCycle(ctx)
		}
	}
}

// Targets returns the list used by the most recent cycle.
func (s *Scheduler) Targets() []domain.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Target(nil), s.current...)
}

// RunCycle probes every target, publishes the resulting snapshot and hands
// the alertable entries to the evaluator. Per-target failures end up in the
// snapshot; nothing here aborts the loop.
func (s *Scheduler) RunCycle(ctx context.Context) *domain.Snapshot {
	cycle := uuid.NewString()
	log := s.Logger.With(zap.String("cycle", cycle))
	start := time.Now()

	list := s.refreshTargets(log)
	results := s.probeAll(ctx, log, list)

	snap := domain.NewSnapshot(cycle, results, s.now().UTC())
	s.State.Publish(snap)

	counts := snap.Counts()
	fields := []zap.Field{
		zap.Int("targets", len(list)),
		zap.Duration("elapsed", time.Since(start)),
	}
	for _, sev := range domain.Severities {
		fields = append(fields, zap.Int(sev.String(), counts[sev]))
	}
	log.Info("cycle_done", fields...)

	if s.Alerts != nil {
		if due := snap.Alertable(); len(due) > 0 {
			if _, err := s.Alerts.Evaluate(ctx, due); err != nil {
				log.Warn("cycle_alert_error", zap.Error(err))
			}
		}
	}
	return snap
}

// refreshTargets re-reads the source. A failed or empty read keeps the
// previous list.
func (s *Scheduler) refreshTargets(log *zap.Logger) []domain.Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, changed, err := s.Source.Poll()
	switch {
	case errors.Is(err, targets.ErrNoTargets):
		log.Warn("targets_empty_keeping_previous", zap.Int("previous", len(s.current)))
	case err != nil:
		log.Warn("targets_read_error", zap.Error(err), zap.Int("previous", len(s.current)))
	case changed || len(s.current) == 0:
		log.Info("targets_reloaded", zap.Int("count", len(list)), zap.Int("previous", len(s.current)))
		s.current = list
	}
	return append([]domain.Target(nil), s.current...)
}

func (s *Scheduler) probeAll(ctx context.Context, log *zap.Logger, list []domain.Target) []domain.CertificateResult {
	results := make([]domain.CertificateResult, len(list))
	sem := make(chan struct{}, s.Concurrency)
	var wg sync.WaitGroup

	for i, tgt := range list {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			results[i] = s.probeOne(ctx, tgt)

			r := results[i]
			if r.Err != nil {
				log.Warn("target_error",
					zap.String("target", string(tgt)),
					zap.String("kind", string(r.Err.Kind)),
					zap.String("error", r.Err.Message),
				)
				return
			}
			log.Debug("target_checked",
				zap.String("target", string(tgt)),
				zap.Timep("expiry", r.Expiry),
				zap.String("issuer", r.Issuer),
			)
		}()
	}

	wg.Wait()
	return results
}

// probeOne turns a panicking prober into an io error result.
func (s *Scheduler) probeOne(ctx context.Context, tgt domain.Target) (res domain.CertificateResult) {
	defer func() {
		if p := recover(); p != nil {
			res = domain.CertificateResult{
				Target:    tgt,
				Err:       &domain.ProbeError{Kind: domain.ErrIO, Message: fmt.Sprint(p)},
				CheckedAt: s.now().UTC(),
			}
		}
	}()
	res = s.Prober.Probe(ctx, tgt)
	res.Target = tgt
	if res.CheckedAt.IsZero() {
		res.CheckedAt = s.now().UTC()
	}
	return res
}
