package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/internal/datadog"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/notifications"
	"github.com/thatsimonsguy/ozone-monitor/internal/tags"
)

// DefaultPeriod is the delay between the end of one fetch and the start of the next.
const DefaultPeriod = time.Second

type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Fetcher interface {
	FetchTags(ctx context.Context) (tags.Snapshot, error)
}

// Engine derives dashboards from snapshots.
type Engine interface {
	Apply(snap tags.Snapshot) model.Dashboard
	Refresh() (model.Dashboard, bool)
}

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

type realNotifier struct{}

func (r *realNotifier) Send(title, message string) error {
	return notifications.Send(title, message)
}

type Option func(*Poller)

func WithPeriod(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.period = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(p *Poller) { p.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// Status is a consistent view of the poller for presentation.
type Status struct {
	State     State
	Dashboard *model.Dashboard
	LastError error
	UpdatedAt time.Time
}

// Poller fetches snapshots on a fixed cadence and feeds them to the engine.
// Fetches never overlap; results arriving after Stop are discarded.
type Poller struct {
	fetcher  Fetcher
	engine   Engine
	notifier Notifier
	period   time.Duration
	now      func() time.Time

	mu            sync.Mutex
	state         State
	gen           uint64
	cancel        context.CancelFunc
	done          chan struct{}
	latest        *model.Dashboard
	lastErr       error
	updatedAt     time.Time
	prevEmergency bool
	subs          map[chan model.Dashboard]struct{}
}

func New(fetcher Fetcher, engine Engine, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		engine:   engine,
		notifier: &realNotifier{},
		period:   DefaultPeriod,
		now:      time.Now,
		subs:     make(map[chan model.Dashboard]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start fetches immediately and then keeps polling until Stop is called or
// ctx is done. Calling Start while polling has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePolling {
		log.Warn().Msg("Poller already running")
		return
	}

	p.gen++
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = StatePolling

	log.Info().Dur("period", p.period).Msg("Polling started")
	go p.run(loopCtx, p.gen, p.done)
}

// Stop cancels future fetches. A fetch already in flight completes but its
// result is dropped.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePolling {
		p.state = StateStopped
		return
	}
	p.gen++
	p.state = StateStopped
	p.cancel()
	log.Info().Msg("Polling stopped")
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Latest returns the last known dashboard. ok is false until the first
// successful fetch.
func (p *Poller) Latest() (model.Dashboard, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return model.Dashboard{}, false
	}
	return *p.latest, true
}

// LastError is the error of the most recent fetch, nil after a success.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{State: p.state, LastError: p.lastErr, UpdatedAt: p.updatedAt}
	if p.latest != nil {
		d := *p.latest
		s.Dashboard = &d
	}
	return s
}

// Subscribe returns a channel receiving every new dashboard and a function
// that ends the subscription. Slow subscribers only see the newest value.
func (p *Poller) Subscribe() (<-chan model.Dashboard, func()) {
	ch := make(chan model.Dashboard, 1)

	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
		})
	}
}

func (p *Poller) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.gen == gen {
				p.state = StateStopped
			}
			p.mu.Unlock()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			continue
		}

		p.tick(ctx, gen)
		timer.Reset(p.period)
	}
}

func (p *Poller) tick(ctx context.Context, gen uint64) {
	start := time.Now()
	snap, err := p.fetcher.FetchTags(context.WithoutCancel(ctx))
	datadog.Timing("poll.duration", time.Since(start))

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		log.Debug().Msg("Discarding poll result after stop")
		return
	}

	var (
		d       model.Dashboard
		publish bool
		alert   bool
	)
	if err != nil {
		p.lastErr = err
		if refreshed, ok := p.engine.Refresh(); ok {
			d, publish = refreshed, true
			p.latest = &d
		}
	} else {
		d, publish = p.engine.Apply(snap), true
		p.latest = &d
		p.lastErr = nil
		p.updatedAt = p.now()
		alert = d.Emergency && !p.prevEmergency
		p.prevEmergency = d.Emergency
	}
	subs := make([]chan model.Dashboard, 0, len(p.subs))
	for ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch tags, keeping last dashboard")
		datadog.Incr("poll.failure")
	} else {
		datadog.Incr("poll.success")
		emitDashboard(d)
	}

	if alert {
		log.Error().Str("ts", d.TS).Msg("Emergency stop signalled by controller")
		go p.sendAlert("Emergency stop", "The controller reports an active emergency stop.")
	}

	if publish {
		for _, ch := range subs {
			offer(ch, d)
		}
	}
}

func (p *Poller) sendAlert(title, message string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Send(title, message); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to send alert")
	}
}

// offer delivers d, replacing an unread older value.
func offer(ch chan model.Dashboard, d model.Dashboard) {
	select {
	case ch <- d:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- d:
	default:
	}
}

func emitDashboard(d model.Dashboard) {
	for _, t := range d.Tanks {
		datadog.Gauge("tank.percent", float64(t.Percent), "tank:"+t.ID)
		datadog.Gauge("tank.litres", t.Current, "tank:"+t.ID)
	}
	for _, m := range d.Motors {
		datadog.Gauge("motor.running", boolGauge(m.Status == model.MotorRunning), "motor:"+m.ID)
		datadog.Gauge("motor.fault", boolGauge(m.Status == model.MotorFault), "motor:"+m.ID)
	}
	datadog.Gauge("ozone.running", boolGauge(d.Ozone.Status == model.MotorRunning))
	datadog.Gauge("cycle.remaining_minutes", float64(d.Timer.RemainingMinutes))
	datadog.Gauge("cycle.active", boolGauge(d.Timer.Active))
	datadog.Gauge("emergency", boolGauge(d.Emergency))
	datadog.Gauge("impact.treated_m3", d.Impact.TreatedM3)
	datadog.Gauge("tags.unknown", float64(len(d.UnknownTags)))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
