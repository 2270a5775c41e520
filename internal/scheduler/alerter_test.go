package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/notify"
	"github.com/hamed0406/certwatch/internal/repo"
	"github.com/hamed0406/certwatch/internal/repo/file"
	"github.com/hamed0406/certwatch/internal/repo/memory"
)

// ---- shared helpers ----

var day0 = time.Date(2025, 8, 18, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memNotifier struct {
	mu      sync.Mutex
	batches [][]notify.Alert
	tests   []string
	fail    error
}

func (m *memNotifier) Name() string { return "mem" }

func (m *memNotifier) SendAlert(ctx context.Context, alerts []notify.Alert) (notify.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return notify.Delivery{StatusCode: 500}, m.fail
	}
	m.batches = append(m.batches, alerts)
	return notify.Delivery{StatusCode: 200, Message: "OK"}, nil
}

func (m *memNotifier) SendTest(ctx context.Context, text string) (notify.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests = append(m.tests, text)
	return notify.Delivery{StatusCode: 200, Message: "OK"}, nil
}

func (m *memNotifier) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

type failingStore struct{ repo.AlertHistory }

func (failingStore) Save(ctx context.Context, h repo.History) error {
	return errors.New("disk full")
}

func entry(target string, days int, now time.Time) domain.Entry {
	exp := now.Add(time.Duration(days)*24*time.Hour + time.Hour)
	r := domain.CertificateResult{Target: domain.Target(target), Expiry: &exp, Issuer: "Test CA", CheckedAt: now}
	sev, d := domain.Classify(r, now)
	return domain.Entry{Result: r, Days: d, Severity: sev, ComputedAt: now}
}

func errEntry(target string, now time.Time) domain.Entry {
	r := domain.CertificateResult{
		Target:    domain.Target(target),
		Err:       &domain.ProbeError{Kind: domain.ErrDNS, Message: "no such host"},
		CheckedAt: now,
	}
	return domain.Entry{Result: r, Severity: domain.ErrorState, ComputedAt: now}
}

func newTestAlerter(t *testing.T, store repo.AlertHistory, n notify.Notifier, threshold int) (*Alerter, *clock) {
	t.Helper()
	c := &clock{t: day0}
	a := NewAlerter(nil, store, n, AlerterConfig{Threshold: threshold, Now: c.Now})
	a.Load(context.Background())
	return a, c
}

// ---- tests ----

func TestAlerter_SendsOncePerDay(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	n := &memNotifier{}
	a, c := newTestAlerter(t, store, n, 15)

	sent, err := a.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "2025-08-18", a.History()["a.example.com"])
	assert.Equal(t, 1, store.Saves())

	// later the same day
	c.Add(10 * time.Hour)
	sent, err = a.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, 1, n.calls())

	// next UTC day
	c.Add(6 * time.Hour)
	sent, err = a.MaybeAlert(ctx, entry("a.example.com", 4, c.Now()))
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "2025-08-19", a.History()["a.example.com"])
	assert.Equal(t, 2, n.calls())
}

func TestAlerter_ThresholdIsSeparateFromTiers(t *testing.T) {
	ctx := context.Background()

	a, c := newTestAlerter(t, memory.New(), &memNotifier{}, 15)
	e := entry("soon.example.com", 20, c.Now())
	require.Equal(t, domain.Soon, e.Severity)
	sent, err := a.MaybeAlert(ctx, e)
	require.NoError(t, err)
	assert.False(t, sent, "20 days is above a 15 day threshold")

	a, c = newTestAlerter(t, memory.New(), &memNotifier{}, 30)
	sent, err = a.MaybeAlert(ctx, entry("soon.example.com", 20, c.Now()))
	require.NoError(t, err)
	assert.True(t, sent)

	a, c = newTestAlerter(t, memory.New(), &memNotifier{}, 15)
	sent, err = a.MaybeAlert(ctx, entry("edge.example.com", 15, c.Now()))
	require.NoError(t, err)
	assert.True(t, sent, "threshold is inclusive")
}

func TestAlerter_ExpiredAlerts(t *testing.T) {
	a, c := newTestAlerter(t, memory.New(), &memNotifier{}, 15)
	e := entry("old.example.com", -3, c.Now())
	require.Equal(t, domain.Expired, e.Severity)
	sent, err := a.MaybeAlert(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestAlerter_ErrorsNeverAlert(t *testing.T) {
	n := &memNotifier{}
	a, c := newTestAlerter(t, memory.New(), n, 15)
	sent, err := a.MaybeAlert(context.Background(), errEntry("gone.example.com", c.Now()))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Zero(t, n.calls())
}

func TestAlerter_DispatchFailureLeavesHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	n := &memNotifier{fail: errors.New("HTTP 500")}
	a, c := newTestAlerter(t, store, n, 15)

	sent, err := a.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	require.Error(t, err)
	assert.False(t, sent)
	assert.Empty(t, a.History())
	assert.Zero(t, store.Saves())

	// sink recovers: the next attempt the same day goes out
	n.fail = nil
	sent, err = a.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestAlerter_PersistFailureIsNotSent(t *testing.T) {
	ctx := context.Background()
	n := &memNotifier{}
	a, c := newTestAlerter(t, failingStore{memory.New()}, n, 15)

	sent, err := a.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	require.ErrorIs(t, err, ErrPersist)
	assert.False(t, sent)
	assert.Empty(t, a.History())

	// not recorded, so it is retried
	_, _ = a.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	assert.Equal(t, 2, n.calls())
}

func TestAlerter_BatchSkipsAlreadyAlerted(t *testing.T) {
	ctx := context.Background()
	n := &memNotifier{}
	a, c := newTestAlerter(t, memory.New(), n, 15)

	_, err := a.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	require.NoError(t, err)

	sent, err := a.Evaluate(ctx, []domain.Entry{
		entry("a.example.com", 5, c.Now()),
		entry("b.example.com", 10, c.Now()),
		entry("c.example.com", 25, c.Now()),
		errEntry("d.example.com", c.Now()),
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.Target{"b.example.com"}, sent)
	require.Equal(t, 2, n.calls())
	require.Len(t, n.batches[1], 1)
	assert.Equal(t, domain.Target("b.example.com"), n.batches[1][0].Target)
}

func TestAlerter_OneNotificationPerBatch(t *testing.T) {
	n := &memNotifier{}
	a, c := newTestAlerter(t, memory.New(), n, 15)
	sent, err := a.Evaluate(context.Background(), []domain.Entry{
		entry("a.example.com", -1, c.Now()),
		entry("b.example.com", 3, c.Now()),
		entry("c.example.com", 12, c.Now()),
	})
	require.NoError(t, err)
	assert.Len(t, sent, 3)
	require.Equal(t, 1, n.calls())
	assert.Len(t, n.batches[0], 3)
}

func TestAlerter_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alerts_sent.json")

	st1, err := file.New(path)
	require.NoError(t, err)
	a1, c := newTestAlerter(t, st1, &memNotifier{}, 15)
	sent, err := a1.MaybeAlert(ctx, entry("a.example.com", 5, c.Now()))
	require.NoError(t, err)
	require.True(t, sent)

	// fresh process, same day
	st2, err := file.New(path)
	require.NoError(t, err)
	n2 := &memNotifier{}
	a2, c2 := newTestAlerter(t, st2, n2, 15)
	sent, err = a2.MaybeAlert(ctx, entry("a.example.com", 5, c2.Now()))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Zero(t, n2.calls())

	c2.Add(24 * time.Hour)
	sent, err = a2.MaybeAlert(ctx, entry("a.example.com", 4, c2.Now()))
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestAlerter_NoNotifier(t *testing.T) {
	store := memory.New()
	a, c := newTestAlerter(t, store, nil, 15)
	assert.False(t, a.Configured())

	sent, err := a.MaybeAlert(context.Background(), entry("a.example.com", 5, c.Now()))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, a.History())

	_, err = a.SendTestNotification(context.Background(), "hi")
	assert.ErrorIs(t, err, notify.ErrNotConfigured)
	_, _, err = a.SendTestAlert(context.Background())
	assert.ErrorIs(t, err, notify.ErrNotConfigured)
}

func TestAlerter_EmptyMultiIsNotConfigured(t *testing.T) {
	a := NewAlerter(nil, memory.New(), notify.NewMulti(), AlerterConfig{Threshold: 15})
	assert.False(t, a.Configured())
}

func TestAlerter_TestHooksLeaveHistoryAlone(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	n := &memNotifier{}
	a, _ := newTestAlerter(t, store, n, 15)

	d, err := a.SendTestNotification(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, 200, d.StatusCode)

	fake, _, err := a.SendTestAlert(ctx)
	require.NoError(t, err)
	require.Len(t, fake, 3)
	assert.Equal(t, -30, fake[0].Days)
	assert.Equal(t, domain.Expired, fake[0].Severity)

	// twice in a row: no cooldown for the test alert
	_, _, err = a.SendTestAlert(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, n.calls())
	assert.Equal(t, []string{"ping"}, n.tests)
	assert.Empty(t, a.History())
	assert.Zero(t, store.Saves())
}

func TestAlerter_LoadFailureStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts_sent.json")
	require.NoError(t, writeFile(path, "{not json"))
	st, err := file.New(path)
	require.NoError(t, err)

	a, c := newTestAlerter(t, st, &memNotifier{}, 15)
	assert.Empty(t, a.History())

	// and it recovers by overwriting on the next send
	sent, err := a.MaybeAlert(context.Background(), entry("a.example.com", 5, c.Now()))
	require.NoError(t, err)
	assert.True(t, sent)
	h, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-08-18", h["a.example.com"])
}
