package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type MotorStatus string

const (
	MotorFault   MotorStatus = "fault"
	MotorRunning MotorStatus = "running"
	MotorStopped MotorStatus = "stopped"
)

type CycleStatus string

const (
	CycleFinished    CycleStatus = "finished"
	CycleInitialized CycleStatus = "initialized"
	CycleStopped     CycleStatus = "stopped"
)

type TankLevel struct {
	Current float64 `json:"current"`
	Total   float64 `json:"total"`
	Percent int     `json:"percent"`
	IsFull  bool    `json:"is_full"`
}

type Tank struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	TankLevel
	Minimum *float64 `json:"minimum,omitempty"`
}

type Motor struct {
	ID     string      `json:"id"`
	Label  string      `json:"label"`
	Status MotorStatus `json:"status"`
}

type Cycle struct {
	Status CycleStatus `json:"status"`
	// Running mirrors the raw start bit, regardless of the finished bit.
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

type Timer struct {
	TotalMinutes     int        `json:"total_minutes"`
	RemainingMinutes int        `json:"remaining_minutes"`
	Active           bool       `json:"active"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	Text             string     `json:"text"`
	Progress         float64    `json:"progress"`
}

type Reading struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Unit    string   `json:"unit"`
	Value   *float64 `json:"value"`
	Display string   `json:"display"`
}

type Electrical struct {
	LineVoltages  []Reading `json:"line_voltages"`
	PhaseVoltages []Reading `json:"phase_voltages"`
	Currents      []Reading `json:"currents"`
	KPIs          []Reading `json:"kpis"`
}

type Impact struct {
	TreatedM3     float64 `json:"treated_m3"`
	Trees         float64 `json:"trees"`
	CO2AvoidedKg  float64 `json:"co2_avoided_kg"`
	TreatedText   string  `json:"treated_text"`
	TreesText     string  `json:"trees_text"`
	CO2AvoidedTxt string  `json:"co2_avoided_text"`
}

// Dashboard is the view model derived from one snapshot.
type Dashboard struct {
	TS             string     `json:"ts"`
	ComputedAt     time.Time  `json:"computed_at"`
	Tanks          []Tank     `json:"tanks"`
	Motors         []Motor    `json:"motors"`
	Ozone          Motor      `json:"ozone"`
	Cycle          Cycle      `json:"cycle"`
	Timer          Timer      `json:"timer"`
	SecondaryTimer string     `json:"secondary_timer"`
	Electrical     Electrical `json:"electrical"`
	Impact         Impact     `json:"impact"`
	Emergency      bool       `json:"emergency"`
	UnknownTags    []string   `json:"unknown_tags,omitempty"`
}

// Persisted cycle keys. Values are stored as decimal text.
const (
	KeyCycleStart = "cycle_start_epoch_ms"
	KeyCycleTotal = "cycle_total_minutes"
)

// CycleState records when the running cycle started and its configured length.
type CycleState struct {
	StartEpochMs uint64 `json:"start_epoch_ms"`
	TotalMinutes uint32 `json:"total_minutes"`
}

// ParseCycleState decodes the persisted text values. ok is false when either
// value is not a number. A zero total is returned as 0, meaning the caller
// should substitute the configured duration; other totals are floored to at
// least one minute.
func ParseCycleState(start, total string) (CycleState, bool, error) {
	s, err := strconv.ParseFloat(strings.TrimSpace(start), 64)
	if err != nil || math.IsNaN(s) || s < 0 || s >= math.MaxInt64 {
		return CycleState{}, false, fmt.Errorf("invalid %s %q", KeyCycleStart, start)
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(total), 64)
	if err != nil || math.IsInf(t, 0) || t > math.MaxUint32 {
		return CycleState{}, false, fmt.Errorf("invalid %s %q", KeyCycleTotal, total)
	}
	switch {
	case math.IsNaN(t), t == 0:
		// zero makes readers use the configured total
		t = 0
	case t < 1:
		t = 1
	default:
		t = math.Floor(t)
	}
	return CycleState{StartEpochMs: uint64(s), TotalMinutes: uint32(t)}, true, nil
}

func (c CycleState) StartedAt() time.Time {
	return time.UnixMilli(int64(c.StartEpochMs))
}

// Remaining returns whole minutes left at now, never negative. Partial
// minutes elapsed are not counted.
func (c CycleState) Remaining(now time.Time) int {
	elapsedMs := now.UnixMilli() - int64(c.StartEpochMs)
	elapsedMin := floorDiv(elapsedMs, 60000)
	remaining := int64(c.TotalMinutes) - elapsedMin
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// CommandRecord is one entry of the command log.
type CommandRecord struct {
	ID       int64         `json:"id"`
	Kind     string        `json:"kind"`
	PulseMs  uint32        `json:"pulse_ms"`
	OK       bool          `json:"ok"`
	Status   int           `json:"status,omitempty"`
	Error    string        `json:"error,omitempty"`
	IssuedAt time.Time     `json:"issued_at"`
	Duration time.Duration `json:"duration_ns"`
}
