package engine

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/internal/coerce"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/store"
	"github.com/thatsimonsguy/ozone-monitor/internal/tags"
)

// DefaultTotalMinutes is the cycle length used when the controller reports none.
const DefaultTotalMinutes = 12 * 60

const maxTotalMinutes = math.MaxInt32

type Clock func() time.Time

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.now = c }
}

// Engine turns snapshots into dashboards and owns the persisted cycle state.
// Snapshots must be applied in arrival order; Apply serialises callers.
type Engine struct {
	mu  sync.Mutex
	kv  store.KV
	now Clock

	prevStarted  bool
	prevFinished bool

	last           *model.Dashboard
	lastConfigured int
}

func New(kv store.KV, opts ...Option) *Engine {
	e := &Engine{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	// a cycle persisted before a restart is still running; its start bit is
	// not a new edge
	if state, ok := e.loadState(); ok {
		e.prevStarted = true
		log.Info().
			Time("started_at", state.StartedAt()).
			Uint32("total_minutes", state.TotalMinutes).
			Msg("Resuming persisted cycle")
	}
	return e
}

// ConfiguredTotal reads the cycle length in minutes from the timer tag,
// falling back to DefaultTotalMinutes when it is absent or not positive.
func ConfiguredTotal(v any) int {
	n := math.Floor(coerce.ToFinite(v, 0))
	if n <= 0 {
		return DefaultTotalMinutes
	}
	if n > maxTotalMinutes {
		return maxTotalMinutes
	}
	return int(n)
}

// Apply derives the dashboard for snap and advances the cycle edge detector.
func (e *Engine) Apply(snap tags.Snapshot) model.Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	configured := ConfiguredTotal(snap.Get(TagTimerMinutes))

	d := model.Dashboard{
		TS:             snap.TS,
		ComputedAt:     now,
		Tanks:          buildTanks(snap),
		Motors:         buildMotors(snap),
		Ozone:          buildOzone(snap),
		Cycle:          buildCycle(snap),
		SecondaryTimer: secondaryTimer(snap.Get(TagTimerPercent)),
		Electrical:     buildElectrical(snap),
		Impact:         GreenImpact(snap.Get(TagTreatedTotal)),
		Emergency:      coerce.ToBool(snap.Get(TagEmergency)),
		UnknownTags:    unknownTags(snap),
	}

	started := coerce.ToBool(snap.Get(TagCycleStart))
	if started && !e.prevStarted {
		e.startCycle(now, configured)
	}
	e.prevStarted = started

	finished := coerce.ToBool(snap.Get(TagCycleFinished))
	if finished && !e.prevFinished {
		e.finishCycle()
	}
	e.prevFinished = finished

	d.Timer = e.timer(now, configured)

	e.last = &d
	e.lastConfigured = configured
	return d
}

// Refresh recomputes the countdown of the last dashboard against the current
// clock. ok is false before the first Apply.
func (e *Engine) Refresh() (model.Dashboard, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last == nil {
		return model.Dashboard{}, false
	}
	d := *e.last
	d.Timer = e.timer(e.now(), e.lastConfigured)
	e.last = &d
	return d, true
}

// CycleState returns the persisted cycle, if one is active.
func (e *Engine) CycleState() (model.CycleState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadState()
}

func (e *Engine) startCycle(now time.Time, configured int) {
	start := strconv.FormatInt(now.UnixMilli(), 10)
	total := strconv.Itoa(configured)

	if err := e.persistCycle(start, total); err != nil {
		log.Error().Err(err).Msg("Failed to persist cycle start")
		return
	}

	log.Info().
		Time("started_at", now).
		Int("total_minutes", configured).
		Msg("Cycle started")
}

// persistCycle writes both cycle keys or neither.
func (e *Engine) persistCycle(start, total string) error {
	if b, ok := e.kv.(store.BatchSetter); ok {
		return b.SetMany(map[string]string{
			model.KeyCycleStart: start,
			model.KeyCycleTotal: total,
		})
	}

	if err := e.kv.Set(model.KeyCycleStart, start); err != nil {
		return err
	}
	if err := e.kv.Set(model.KeyCycleTotal, total); err != nil {
		if rerr := e.kv.Remove(model.KeyCycleStart); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to undo partial cycle start")
		}
		return err
	}
	return nil
}

func (e *Engine) finishCycle() {
	for _, key := range []string{model.KeyCycleStart, model.KeyCycleTotal} {
		if err := e.kv.Remove(key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to clear persisted cycle")
		}
	}
	log.Info().Msg("Cycle finished")
}

func (e *Engine) loadState() (model.CycleState, bool) {
	start, okStart, err := e.kv.Get(model.KeyCycleStart)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read persisted cycle start")
		return model.CycleState{}, false
	}
	total, okTotal, err := e.kv.Get(model.KeyCycleTotal)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read persisted cycle total")
		return model.CycleState{}, false
	}
	if !okStart || !okTotal || start == "" || total == "" {
		return model.CycleState{}, false
	}

	state, ok, err := model.ParseCycleState(start, total)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable persisted cycle")
		return model.CycleState{}, false
	}
	return state, ok
}

func (e *Engine) timer(now time.Time, configured int) model.Timer {
	t := model.Timer{
		TotalMinutes:     configured,
		RemainingMinutes: configured,
	}

	if state, ok := e.loadState(); ok {
		if state.TotalMinutes == 0 {
			state.TotalMinutes = uint32(configured)
		}
		started := state.StartedAt()
		t.Active = true
		t.StartedAt = &started
		t.RemainingMinutes = state.Remaining(now)
	}

	t.Text = coerce.MinutesToHHMM(t.RemainingMinutes)
	t.Progress = math.Max(0, math.Min(1, float64(t.RemainingMinutes)/float64(configured)))
	return t
}

func secondaryTimer(v any) string {
	minutes := math.Max(0, math.Floor(coerce.ToFinite(v, 0)))
	if minutes <= 0 {
		return "--:--"
	}
	return coerce.MinutesToHHMM(int(minutes))
}

func unknownTags(snap tags.Snapshot) []string {
	bad := snap.Bad()
	sort.Strings(bad)
	return bad
}
