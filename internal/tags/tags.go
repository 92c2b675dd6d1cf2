package tags

import (
	"encoding/json"
	"strings"
)

type Quality string

const (
	QualityGood Quality = "GOOD"
	QualityBad  Quality = "BAD"
)

// CoilThreshold is the raw value from which a coil reads as true.
const CoilThreshold = 0.5

// RawTag is a single entry of the remote tag payload.
type RawTag struct {
	Name      string   `json:"name"`
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp,omitempty"`
	Quality   Quality  `json:"quality"`
	Error     string   `json:"error,omitempty"`
}

// UnmarshalJSON accepts both "timestamp" and the shorter "ts" spelling.
func (t *RawTag) UnmarshalJSON(data []byte) error {
	type plain RawTag
	var aux struct {
		plain
		TS string `json:"ts"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = RawTag(aux.plain)
	if t.Timestamp == "" {
		t.Timestamp = aux.TS
	}
	return nil
}

// Response is the body of GET /api/tags.
type Response struct {
	TS   string            `json:"ts"`
	Tags map[string]RawTag `json:"tags"`
}

// Snapshot is a normalised tag response. Values holds float64 for analog
// tags, bool for coils and nil for tags that are unknown (BAD quality or
// null payload). Every key of the response is present in both maps.
type Snapshot struct {
	TS     string
	Values map[string]any
	Meta   map[string]RawTag
}

var coilSubstrings = []string{"parada", "emergencia", "ciclo_", "run", "fault"}

var coilPrefixes = []string{"motor_", "bomba_"}

// IsCoil reports whether a tag key names a discrete signal. Matching is
// case-sensitive.
func IsCoil(key string) bool {
	for _, s := range coilSubstrings {
		if strings.Contains(key, s) {
			return true
		}
	}
	for _, p := range coilPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// Normalize classifies every tag of a response by quality and key.
func Normalize(resp Response) Snapshot {
	snap := Snapshot{
		TS:     resp.TS,
		Values: make(map[string]any, len(resp.Tags)),
		Meta:   make(map[string]RawTag, len(resp.Tags)),
	}
	for key, t := range resp.Tags {
		snap.Meta[key] = t
		snap.Values[key] = normalizeValue(key, t)
	}
	return snap
}

func normalizeValue(key string, t RawTag) any {
	if t.Quality != QualityGood || t.Value == nil {
		return nil
	}
	if IsCoil(key) {
		return *t.Value >= CoilThreshold
	}
	return *t.Value
}

// Get returns the value stored under key, nil when absent or unknown.
func (s Snapshot) Get(key string) any {
	if s.Values == nil {
		return nil
	}
	return s.Values[key]
}

// First returns the first present, non-nil value among keys.
func (s Snapshot) First(keys ...string) any {
	for _, k := range keys {
		if v := s.Get(k); v != nil {
			return v
		}
	}
	return nil
}

// Bad lists the keys whose quality is not GOOD.
func (s Snapshot) Bad() []string {
	var out []string
	for k, t := range s.Meta {
		if t.Quality != QualityGood {
			out = append(out, k)
		}
	}
	return out
}
