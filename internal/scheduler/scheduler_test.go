package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/probe"
	"github.com/hamed0406/certwatch/internal/repo/memory"
	"github.com/hamed0406/certwatch/internal/state"
	"github.com/hamed0406/certwatch/internal/targets"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// fakeProber answers from a days table; unknown targets fail with a DNS error.
type fakeProber struct {
	now   time.Time
	days  map[domain.Target]int
	delay time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeProber) Probe(ctx context.Context, t domain.Target) domain.CertificateResult {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	d, ok := f.days[t]
	if !ok {
		return domain.CertificateResult{
			Target:    t,
			Err:       &domain.ProbeError{Kind: domain.ErrDNS, Message: "no such host"},
			CheckedAt: f.now,
		}
	}
	exp := f.now.Add(time.Duration(d)*24*time.Hour + time.Hour)
	return domain.CertificateResult{Target: t, Expiry: &exp, Issuer: "Test CA", CheckedAt: f.now}
}

type mutableSource struct {
	mu   sync.Mutex
	list []domain.Target
	err  error
}

func (m *mutableSource) set(list []domain.Target, err error) {
	m.mu.Lock()
	m.list, m.err = list, err
	m.mu.Unlock()
}

func (m *mutableSource) Poll() ([]domain.Target, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	return m.list, true, nil
}

func newTestScheduler(src targets.Source, p probe.Prober, ev Evaluator, workers int) (*Scheduler, *state.Store) {
	st := state.New()
	s := NewScheduler(nil, src, p, st, ev, time.Hour, workers)
	s.now = func() time.Time { return day0 }
	return s, st
}

func TestRunCycle_MixedResults(t *testing.T) {
	p := &fakeProber{now: day0, days: map[domain.Target]int{
		"a.example.com": 45,
		"b.example.com": 12,
		"c.example.com": 3,
	}}
	src := targets.Static{"a.example.com", "b.example.com", "c.example.com", "nonexistent.invalid"}
	s, st := newTestScheduler(src, p, nil, 10)

	snap := s.RunCycle(context.Background())
	require.Same(t, snap, st.Current())
	assert.True(t, st.IsReady())
	assert.NotEmpty(t, snap.Cycle)

	assert.Equal(t, []domain.Target{"a.example.com", "b.example.com", "c.example.com", "nonexistent.invalid"}, snap.Order)
	assert.Equal(t, domain.Healthy, snap.Entries["a.example.com"].Severity)
	assert.Equal(t, domain.Warning, snap.Entries["b.example.com"].Severity)
	assert.Equal(t, domain.Critical, snap.Entries["c.example.com"].Severity)
	bad := snap.Entries["nonexistent.invalid"]
	assert.Equal(t, domain.ErrorState, bad.Severity)
	require.NotNil(t, bad.Result.Err)
	assert.Equal(t, domain.ErrDNS, bad.Result.Err.Kind)

	c := snap.Counts()
	assert.Equal(t, 1, c[domain.Healthy])
	assert.Equal(t, 1, c[domain.Warning])
	assert.Equal(t, 1, c[domain.Critical])
	assert.Equal(t, 1, c[domain.ErrorState])
	assert.Equal(t, 0, c[domain.Expired])
}

func TestRunCycle_BoundsConcurrency(t *testing.T) {
	days := make(map[domain.Target]int)
	var list targets.Static
	for i := 0; i < 25; i++ {
		tg := domain.Target("host" + string(rune('a'+i)) + ".example.com")
		days[tg] = 60
		list = append(list, tg)
	}
	p := &fakeProber{now: day0, days: days, delay: 20 * time.Millisecond}
	s, _ := newTestScheduler(list, p, nil, 4)

	snap := s.RunCycle(context.Background())
	assert.Len(t, snap.Entries, 25)
	assert.EqualValues(t, 25, p.calls.Load())
	assert.LessOrEqual(t, p.peak.Load(), int32(4))
	assert.GreaterOrEqual(t, p.peak.Load(), int32(1))
}

func TestRunCycle_HotReloadShrinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.csv")
	require.NoError(t, writeFile(path, "a.example.com\nb.example.com\nc.example.com\n"))

	p := &fakeProber{now: day0, days: map[domain.Target]int{
		"a.example.com": 40, "b.example.com": 40, "c.example.com": 40,
	}}
	s, st := newTestScheduler(targets.NewFile(path), p, nil, 10)

	s.RunCycle(context.Background())
	assert.Len(t, st.Current().Entries, 3)

	require.NoError(t, writeFile(path, "a.example.com\nb.example.com\n"))
	s.RunCycle(context.Background())
	snap := st.Current()
	assert.Len(t, snap.Entries, 2)
	assert.NotContains(t, snap.Entries, domain.Target("c.example.com"))
	assert.Equal(t, []domain.Target{"a.example.com", "b.example.com"}, s.Targets())
}

func TestRunCycle_SourceFailureKeepsPreviousList(t *testing.T) {
	src := &mutableSource{}
	src.set([]domain.Target{"a.example.com", "b.example.com"}, nil)
	p := &fakeProber{now: day0, days: map[domain.Target]int{"a.example.com": 40, "b.example.com": 40}}
	s, st := newTestScheduler(src, p, nil, 10)

	s.RunCycle(context.Background())
	require.Len(t, st.Current().Entries, 2)

	src.set(nil, errors.New("permission denied"))
	s.RunCycle(context.Background())
	assert.Len(t, st.Current().Entries, 2)

	src.set(nil, targets.ErrNoTargets)
	s.RunCycle(context.Background())
	assert.Len(t, st.Current().Entries, 2)
}

func TestRunCycle_NoTargetsPublishesEmptySnapshot(t *testing.T) {
	src := &mutableSource{}
	src.set(nil, targets.ErrNoTargets)
	s, st := newTestScheduler(src, &fakeProber{now: day0}, nil, 10)

	snap := s.RunCycle(context.Background())
	assert.True(t, st.IsReady())
	assert.Empty(t, snap.Entries)
	assert.Equal(t, 0, snap.Counts()[domain.Healthy])
}

func TestRunCycle_ProberPanicBecomesError(t *testing.T) {
	p := probe.ProberFunc(func(ctx context.Context, t domain.Target) domain.CertificateResult {
		if t == "boom.example.com" {
			panic("unexpected")
		}
		exp := day0.Add(90 * 24 * time.Hour)
		return domain.CertificateResult{Target: t, Expiry: &exp, Issuer: "Test CA", CheckedAt: day0}
	})
	s, _ := newTestScheduler(targets.Static{"ok.example.com", "boom.example.com"}, p, nil, 2)

	snap := s.RunCycle(context.Background())
	assert.Equal(t, domain.Healthy, snap.Entries["ok.example.com"].Severity)
	boom := snap.Entries["boom.example.com"]
	assert.Equal(t, domain.ErrorState, boom.Severity)
	require.NotNil(t, boom.Result.Err)
	assert.Equal(t, domain.ErrIO, boom.Result.Err.Kind)
}

func TestRunCycle_AlertsOncePerDay(t *testing.T) {
	ctx := context.Background()
	p := &fakeProber{now: day0, days: map[domain.Target]int{
		"a.example.com": 5,
		"b.example.com": 60,
	}}
	n := &memNotifier{}
	c := &clock{t: day0}
	al := NewAlerter(nil, memory.New(), n, AlerterConfig{Threshold: 15, Now: c.Now})
	al.Load(ctx)
	s, _ := newTestScheduler(targets.Static{"a.example.com", "b.example.com"}, p, al, 10)

	s.RunCycle(ctx)
	require.Equal(t, 1, n.calls())
	require.Len(t, n.batches[0], 1)
	assert.Equal(t, domain.Target("a.example.com"), n.batches[0][0].Target)
	assert.Equal(t, "2025-08-18", al.History()["a.example.com"])

	// next hourly cycle, same day
	c.Add(time.Hour)
	s.RunCycle(ctx)
	assert.Equal(t, 1, n.calls())
}

func TestRun_ImmediateCycleThenStops(t *testing.T) {
	p := &fakeProber{now: day0, days: map[domain.Target]int{"a.example.com": 40}}
	s, st := newTestScheduler(targets.Static{"a.example.com"}, p, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-st.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not publish")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	assert.EqualValues(t, 1, p.calls.Load())
}
