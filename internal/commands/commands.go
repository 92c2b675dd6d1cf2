package commands

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/internal/client"
	"github.com/thatsimonsguy/ozone-monitor/internal/datadog"
	"github.com/thatsimonsguy/ozone-monitor/internal/model"
	"github.com/thatsimonsguy/ozone-monitor/internal/notifications"
)

// ErrBusy is returned when a command of the same kind is still in flight.
var ErrBusy = errors.New("command already in flight")

type Issuer interface {
	Issue(ctx context.Context, cmd client.Command, pulseMs uint32) error
}

// Recorder stores the outcome of every issued command.
type Recorder interface {
	RecordCommand(rec model.CommandRecord) error
}

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

type realNotifier struct{}

func (r *realNotifier) Send(title, message string) error {
	return notifications.Send(title, message)
}

type Option func(*Dispatcher)

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher guards each command kind with a busy flag so a kind is never
// issued twice concurrently. Different kinds may run in parallel.
type Dispatcher struct {
	issuer   Issuer
	recorder Recorder
	notifier Notifier
	now      func() time.Time

	mu   sync.Mutex
	busy map[client.Command]bool
}

func NewDispatcher(issuer Issuer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		issuer:   issuer,
		notifier: &realNotifier{},
		now:      time.Now,
		busy:     make(map[client.Command]bool, len(client.Commands)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run issues cmd unless one of the same kind is in flight. The busy flag is
// dropped as soon as the controller answers, before the outcome is recorded.
func (d *Dispatcher) Run(ctx context.Context, cmd client.Command, pulseMs uint32) error {
	if !d.acquire(cmd) {
		log.Debug().Str("command", string(cmd)).Msg("Command ignored, already in flight")
		datadog.Incr("command.busy", "command:"+string(cmd))
		return ErrBusy
	}
	var once sync.Once
	release := func() { once.Do(func() { d.release(cmd) }) }
	defer release()

	if pulseMs == 0 {
		pulseMs = client.DefaultPulseMs
	}

	start := d.now()
	err := d.issuer.Issue(ctx, cmd, pulseMs)
	elapsed := d.now().Sub(start)
	release()

	d.record(cmd, pulseMs, start, elapsed, err)
	datadog.Timing("command.duration", elapsed, "command:"+string(cmd))

	if err != nil {
		log.Error().
			Err(err).
			Str("command", string(cmd)).
			Uint32("pulse_ms", pulseMs).
			Msg("Command failed")
		datadog.Incr("command.failure", "command:"+string(cmd))
		go d.sendAlert("Command failed", string(cmd)+": "+err.Error())
		return err
	}

	log.Info().
		Str("command", string(cmd)).
		Uint32("pulse_ms", pulseMs).
		Dur("elapsed", elapsed).
		Msg("Command issued")
	datadog.Incr("command.success", "command:"+string(cmd))
	return nil
}

func (d *Dispatcher) sendAlert(title, message string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Send(title, message); err != nil {
		log.Debug().Err(err).Msg("Failed to send command failure notification")
	}
}

// Busy returns the flag of every command kind.
func (d *Dispatcher) Busy() map[client.Command]bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[client.Command]bool, len(client.Commands))
	for _, c := range client.Commands {
		out[c] = d.busy[c]
	}
	return out
}

func (d *Dispatcher) IsBusy(cmd client.Command) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy[cmd]
}

func (d *Dispatcher) acquire(cmd client.Command) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy[cmd] {
		return false
	}
	d.busy[cmd] = true
	return true
}

func (d *Dispatcher) release(cmd client.Command) {
	d.mu.Lock()
	d.busy[cmd] = false
	d.mu.Unlock()
}

func (d *Dispatcher) record(cmd client.Command, pulseMs uint32, start time.Time, elapsed time.Duration, err error) {
	if d.recorder == nil {
		return
	}
	rec := model.CommandRecord{
		Kind:     string(cmd),
		PulseMs:  pulseMs,
		OK:       err == nil,
		IssuedAt: start,
		Duration: elapsed,
	}
	if err != nil {
		rec.Error = err.Error()
		rec.Status = client.StatusOf(err)
	}
	if rerr := d.recorder.RecordCommand(rec); rerr != nil {
		log.Warn().Err(rerr).Str("command", string(cmd)).Msg("Failed to record command")
	}
}
