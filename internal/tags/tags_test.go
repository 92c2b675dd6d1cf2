package tags

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestIsCoil(t *testing.T) {
	coils := []string{
		"motor_1_run", "motor_2_fault", "bomba_recalque", "ciclo_iniciar",
		"ciclo_finalizado", "emergencia_fb", "botao_parada", "pump_run", "drive_fault",
	}
	for _, k := range coils {
		assert.True(t, IsCoil(k), k)
	}

	analog := []string{
		"nivel_tanque_1", "multimedidor_3", "Timer", "agua_tratada_total",
		"ozonio_equipamento", "cap_total_ef", "Motor_1_speed", "xmotor_speed", "ciclo",
	}
	for _, k := range analog {
		assert.False(t, IsCoil(k), k)
	}
}

func TestNormalize_BadQualityIsUnknown(t *testing.T) {
	resp := Response{Tags: map[string]RawTag{
		"nivel_tanque_1": {Name: "nivel_tanque_1", Value: f(1234), Quality: QualityBad, Error: "timeout"},
		"motor_1_run":    {Name: "motor_1_run", Value: f(1), Quality: QualityBad},
	}}

	snap := Normalize(resp)

	require.Contains(t, snap.Values, "nivel_tanque_1")
	require.Contains(t, snap.Values, "motor_1_run")
	assert.Nil(t, snap.Values["nivel_tanque_1"])
	assert.Nil(t, snap.Values["motor_1_run"])
	assert.Equal(t, "timeout", snap.Meta["nivel_tanque_1"].Error)
}

func TestNormalize_CoilThreshold(t *testing.T) {
	resp := Response{Tags: map[string]RawTag{
		"motor_1_run":      {Value: f(0.5), Quality: QualityGood},
		"motor_1_fault":    {Value: f(0.49), Quality: QualityGood},
		"ciclo_finalizado": {Value: f(1), Quality: QualityGood},
		"nivel_tanque_2":   {Value: f(0.75), Quality: QualityGood},
	}}

	snap := Normalize(resp)

	assert.Equal(t, true, snap.Values["motor_1_run"])
	assert.Equal(t, false, snap.Values["motor_1_fault"])
	assert.Equal(t, true, snap.Values["ciclo_finalizado"])
	assert.Equal(t, 0.75, snap.Values["nivel_tanque_2"])
}

func TestNormalize_NullValueIsUnknown(t *testing.T) {
	snap := Normalize(Response{Tags: map[string]RawTag{
		"Timer": {Quality: QualityGood},
	}})
	require.Contains(t, snap.Values, "Timer")
	assert.Nil(t, snap.Values["Timer"])
}

func TestNormalize_EveryKeyInBothMaps(t *testing.T) {
	resp := Response{Tags: map[string]RawTag{
		"a":           {Value: f(1), Quality: QualityGood},
		"b":           {Value: f(2), Quality: QualityBad},
		"motor_1_run": {Value: f(0), Quality: QualityGood},
	}}
	snap := Normalize(resp)

	assert.Len(t, snap.Values, 3)
	assert.Len(t, snap.Meta, 3)
	for k := range resp.Tags {
		assert.Contains(t, snap.Values, k)
		assert.Contains(t, snap.Meta, k)
	}
}

func TestRawTagAcceptsShortTimestamp(t *testing.T) {
	var resp Response
	body := `{"ts":"2025-01-01T00:00:00Z","tags":{
		"Timer":{"name":"Timer","value":600,"ts":"2025-01-01T00:00:00Z","quality":"GOOD"},
		"ciclo_iniciar":{"name":"ciclo_iniciar","value":1,"timestamp":"2025-01-01T00:00:01Z","quality":"GOOD"}}}`
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	assert.Equal(t, "2025-01-01T00:00:00Z", resp.Tags["Timer"].Timestamp)
	assert.Equal(t, "2025-01-01T00:00:01Z", resp.Tags["ciclo_iniciar"].Timestamp)
	require.NotNil(t, resp.Tags["Timer"].Value)
	assert.Equal(t, 600.0, *resp.Tags["Timer"].Value)
}

func TestSnapshotFirstAndBad(t *testing.T) {
	snap := Normalize(Response{Tags: map[string]RawTag{
		"cap_total_ef": {Value: f(1), Quality: QualityBad},
		"capTotal":     {Value: f(3000), Quality: QualityGood},
		"zz":           {Value: f(3), Quality: QualityBad},
	}})

	assert.Equal(t, 3000.0, snap.First("cap_total_ef", "capTotal"))
	assert.Nil(t, snap.First("missing"))

	bad := snap.Bad()
	sort.Strings(bad)
	assert.Equal(t, []string{"cap_total_ef", "zz"}, bad)
}
