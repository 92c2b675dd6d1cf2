package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/ozone-monitor/internal/engine"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/store"
	"github.com/thatsimonsguy/ozone-monitor/internal/tags"
)

type fetchFunc func(ctx context.Context) (tags.Snapshot, error)

func (f fetchFunc) FetchTags(ctx context.Context) (tags.Snapshot, error) { return f(ctx) }

// scriptFetcher replays results in order and then keeps failing.
type scriptFetcher struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	snap tags.Snapshot
	err  error
}

func (s *scriptFetcher) FetchTags(ctx context.Context) (tags.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return tags.Snapshot{}, errors.New("script exhausted")
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.snap, r.err
}

func (s *scriptFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type MockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *MockNotifier) Send(title, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, title)
	return nil
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type countingKV struct {
	*store.Memory
	mu      sync.Mutex
	sets    int
	removes int
}

func (c *countingKV) Set(key, value string) error {
	c.mu.Lock()
	if key == model.KeyCycleStart {
		c.sets++
	}
	c.mu.Unlock()
	return c.Memory.Set(key, value)
}

func (c *countingKV) SetMany(values map[string]string) error {
	c.mu.Lock()
	if _, ok := values[model.KeyCycleStart]; ok {
		c.sets++
	}
	c.mu.Unlock()
	return c.Memory.SetMany(values)
}

func (c *countingKV) Remove(key string) error {
	c.mu.Lock()
	if key == model.KeyCycleStart {
		c.removes++
	}
	c.mu.Unlock()
	return c.Memory.Remove(key)
}

func snap(values map[string]any) tags.Snapshot {
	return tags.Snapshot{TS: time.Now().UTC().Format(time.RFC3339), Values: values}
}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not exit")
	}
}

func TestFetchesNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, calls int32
	fetcher := fetchFunc(func(ctx context.Context) (tags.Snapshot, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return snap(map[string]any{}), nil
	})

	p := New(fetcher, engine.New(store.NewMemory()), WithPeriod(time.Millisecond), WithNotifier(&MockNotifier{}))
	p.Start(context.Background())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 4 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	waitDone(t, p)

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.Equal(t, StateStopped, p.State())
}

func TestFirstFetchIsImmediate(t *testing.T) {
	fetched := make(chan struct{}, 1)
	fetcher := fetchFunc(func(ctx context.Context) (tags.Snapshot, error) {
		select {
		case fetched <- struct{}{}:
		default:
		}
		return snap(map[string]any{}), nil
	})

	p := New(fetcher, engine.New(store.NewMemory()), WithPeriod(time.Hour), WithNotifier(&MockNotifier{}))
	assert.Equal(t, StateIdle, p.State())
	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("no fetch on start")
	}
	assert.Equal(t, StatePolling, p.State())
}

func TestResultAfterStopIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	fetcher := fetchFunc(func(ctx context.Context) (tags.Snapshot, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return snap(map[string]any{engine.TagLevelEffluent: 100.0}), nil
		}
		close(entered)
		<-release
		return snap(map[string]any{engine.TagLevelEffluent: 2000.0}), nil
	})

	p := New(fetcher, engine.New(store.NewMemory()), WithPeriod(time.Millisecond), WithNotifier(&MockNotifier{}))
	p.Start(context.Background())

	<-entered
	p.Stop()
	close(release)
	waitDone(t, p)

	d, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, 100.0, d.Tanks[0].Current)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFailedPollKeepsLastDashboard(t *testing.T) {
	fetcher := &scriptFetcher{results: []result{
		{snap: snap(map[string]any{engine.TagLevelTreatment: 550.0, engine.TagCycleStart: true})},
		{err: errors.New("connection refused")},
	}}

	p := New(fetcher, engine.New(store.NewMemory()), WithPeriod(time.Millisecond), WithNotifier(&MockNotifier{}))
	updates, unsubscribe := p.Subscribe()
	defer unsubscribe()

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return fetcher.Calls() >= 3 }, 2*time.Second, time.Millisecond)
	p.Stop()
	waitDone(t, p)

	status := p.Status()
	require.NotNil(t, status.Dashboard)
	assert.Error(t, status.LastError)
	assert.Equal(t, 50, status.Dashboard.Tanks[1].Percent)
	assert.True(t, status.Dashboard.Timer.Active)
	assert.False(t, status.UpdatedAt.IsZero())

	select {
	case d := <-updates:
		assert.Equal(t, 50, d.Tanks[1].Percent)
	default:
		t.Fatal("subscriber received nothing")
	}
}

func TestFailureBeforeFirstSuccessHasNoDashboard(t *testing.T) {
	fetcher := &scriptFetcher{}
	p := New(fetcher, engine.New(store.NewMemory()), WithPeriod(time.Hour), WithNotifier(&MockNotifier{}))
	p.Start(context.Background())

	assert.Eventually(t, func() bool { return p.LastError() != nil }, time.Second, time.Millisecond)
	p.Stop()
	waitDone(t, p)

	_, ok := p.Latest()
	assert.False(t, ok)
}

func TestCycleEdgesThroughPoller(t *testing.T) {
	kv := &countingKV{Memory: store.NewMemory()}
	cycle := func(started, finished bool) result {
		return result{snap: snap(map[string]any{engine.TagCycleStart: started, engine.TagCycleFinished: finished})}
	}
	fetcher := &scriptFetcher{results: []result{
		cycle(false, false),
		cycle(true, false),
		cycle(true, false),
		{err: errors.New("timeout")},
		cycle(true, false),
		cycle(false, true),
		cycle(false, true),
	}}

	p := New(fetcher, engine.New(kv), WithPeriod(time.Millisecond), WithNotifier(&MockNotifier{}))
	p.Start(context.Background())
	assert.Eventually(t, func() bool { return fetcher.Calls() > 7 }, 2*time.Second, time.Millisecond)
	p.Stop()
	waitDone(t, p)

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Equal(t, 1, kv.sets)
	assert.Equal(t, 1, kv.removes)
	_, ok, _ := kv.Get(model.KeyCycleStart)
	assert.False(t, ok)
}

func TestEmergencyRisingEdgeAlertsOnce(t *testing.T) {
	notifier := &MockNotifier{}
	emergency := func(on bool) result {
		return result{snap: snap(map[string]any{engine.TagEmergency: on})}
	}
	fetcher := &scriptFetcher{results: []result{
		emergency(false),
		emergency(true),
		emergency(true),
		emergency(false),
	}}

	p := New(fetcher, engine.New(store.NewMemory()), WithPeriod(time.Millisecond), WithNotifier(notifier))
	p.Start(context.Background())
	assert.Eventually(t, func() bool { return fetcher.Calls() > 4 }, 2*time.Second, time.Millisecond)
	p.Stop()
	waitDone(t, p)

	assert.Eventually(t, func() bool { return notifier.Count() == 1 }, time.Second, time.Millisecond)
}

func TestContextCancelStopsPoller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(&scriptFetcher{}, engine.New(store.NewMemory()), WithPeriod(time.Millisecond), WithNotifier(&MockNotifier{}))
	p.Start(ctx)

	cancel()
	waitDone(t, p)
	assert.Equal(t, StateStopped, p.State())
}

func TestRestartAfterStop(t *testing.T) {
	fetcher := &scriptFetcher{}
	p := New(fetcher, engine.New(store.NewMemory()), WithPeriod(time.Hour), WithNotifier(&MockNotifier{}))

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return fetcher.Calls() == 1 }, time.Second, time.Millisecond)
	p.Stop()
	waitDone(t, p)

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return fetcher.Calls() == 2 }, time.Second, time.Millisecond)
	p.Stop()
	waitDone(t, p)
}
