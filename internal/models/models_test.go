package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Direction
		code  int
	}{
		{100, DirectionBullish, 1},
		{60, DirectionBullish, 1},
		{59.9, DirectionNeutral, 0},
		{50, DirectionNeutral, 0},
		{40.1, DirectionNeutral, 0},
		{40, DirectionBearish, -1},
		{0, DirectionBearish, -1},
	}

	for _, tt := range tests {
		got := DirectionForScore(tt.score)
		assert.Equal(t, tt.want, got, "score %.1f", tt.score)
		assert.Equal(t, tt.code, got.Code())
		assert.Equal(t, got, DirectionFromCode(got.Code()))
	}
}

func TestBiasResult_Counts(t *testing.T) {
	result := BiasResult{Components: []BiasComponent{
		{Name: "options_flow", Score: 75},
		{Name: "dark_pool", Score: 60},
		{Name: "momentum", Score: 50},
		{Name: "volume_pressure", Score: 40},
		{Name: "relative_strength", Score: 12},
	}}

	assert.Equal(t, 2, result.BullCount())
	assert.Equal(t, 2, result.BearCount())
	assert.Zero(t, BiasResult{}.BullCount())
}

func TestParseSensitivity(t *testing.T) {
	assert.Equal(t, SensitivityLow, ParseSensitivity("low"))
	assert.Equal(t, SensitivityHigh, ParseSensitivity(" HIGH "))
	assert.Equal(t, SensitivityMedium, ParseSensitivity("medium"))
	assert.Equal(t, SensitivityMedium, ParseSensitivity(""))
	assert.Equal(t, SensitivityMedium, ParseSensitivity("extreme"))
}

func TestAlertSettings_Allows(t *testing.T) {
	t.Run("default enables every type at medium", func(t *testing.T) {
		settings := DefaultAlertSettings()
		assert.True(t, settings.Allows(SignalConfluence, Tier1))
		assert.True(t, settings.Allows(SignalSweepCluster, Tier2))
		assert.False(t, settings.Allows(SignalKeyLevel, Tier3))
	})

	t.Run("low only passes tier 1", func(t *testing.T) {
		settings := CustomAlertSettings(SensitivityLow, nil)
		assert.True(t, settings.Allows(SignalThesisFlip, Tier1))
		assert.False(t, settings.Allows(SignalCVDDivergence, Tier2))
	})

	t.Run("allow-list is applied after the tier gate", func(t *testing.T) {
		settings := CustomAlertSettings(SensitivityHigh, []string{"Key_Level ", "thesis_flip"})
		assert.True(t, settings.Allows(SignalKeyLevel, Tier3))
		assert.True(t, settings.Allows(SignalThesisFlip, Tier1))
		assert.False(t, settings.Allows(SignalConfluence, Tier1))
	})

	t.Run("unknown types are dropped from the allow-list", func(t *testing.T) {
		settings := CustomAlertSettings(SensitivityHigh, []string{"gamma_squeeze", "confluence", ""})
		assert.Equal(t, map[SignalType]bool{SignalConfluence: true}, settings.EnabledTypes)
		assert.True(t, settings.Allows(SignalConfluence, Tier1))

		onlyUnknown := CustomAlertSettings(SensitivityHigh, []string{"gamma_squeeze"})
		assert.NotNil(t, onlyUnknown.EnabledTypes)
		assert.False(t, onlyUnknown.Allows(SignalConfluence, Tier1))
	})

	t.Run("empty allow-list disables everything", func(t *testing.T) {
		settings := CustomAlertSettings(SensitivityHigh, []string{})
		for _, st := range AllSignalTypes {
			assert.False(t, settings.Allows(st, st.Tier()), string(st))
		}
	})
}

func TestSignalType_Tier(t *testing.T) {
	want := map[SignalType]Tier{
		SignalConfluence:    Tier1,
		SignalThesisFlip:    Tier1,
		SignalSweepCluster:  Tier2,
		SignalCVDDivergence: Tier2,
		SignalDarkPoolLarge: Tier2,
		SignalKeyLevel:      Tier3,
		SignalNewsCatalyst:  Tier3,
	}
	require.Len(t, AllSignalTypes, len(want))
	for _, st := range AllSignalTypes {
		assert.True(t, st.Valid())
		assert.Equal(t, want[st], st.Tier(), string(st))
	}
	assert.False(t, SignalType("gamma_squeeze").Valid())
}

func TestDetectedSignal_TargetStop(t *testing.T) {
	target := decimal.NewFromFloat(104.5)
	stop := decimal.NewFromFloat(99.25)

	actionable := DetectedSignal{
		Type:   SignalKeyLevel,
		Detail: KeyLevelDetail{Level: "call_wall", Target: &target, Stop: &stop},
	}
	gotTarget, gotStop := actionable.TargetStop()
	require.NotNil(t, gotTarget)
	require.NotNil(t, gotStop)
	assert.True(t, target.Equal(*gotTarget))
	assert.True(t, stop.Equal(*gotStop))

	informational := DetectedSignal{Type: SignalSweepCluster, Detail: SweepClusterDetail{SweepCount: 7}}
	gotTarget, gotStop = informational.TargetStop()
	assert.Nil(t, gotTarget)
	assert.Nil(t, gotStop)

	gotTarget, gotStop = DetectedSignal{}.TargetStop()
	assert.Nil(t, gotTarget)
	assert.Nil(t, gotStop)
}

func TestDetectedSignal_DetailJSON(t *testing.T) {
	sig := DetectedSignal{
		Type:   SignalThesisFlip,
		Tier:   Tier1,
		Ticker: "NVDA",
		Bias:   BiasBullish,
		Detail: ThesisFlipDetail{From: BiasBearish, To: BiasBullish},
	}

	raw, err := json.Marshal(sig)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	detail, ok := decoded["detail"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "bearish", detail["from"])
	assert.Equal(t, "bullish", detail["to"])
	assert.NotContains(t, detail, "target")
}

func TestPreviousFromCache(t *testing.T) {
	assert.True(t, PreviousFromCache(nil).IsZero())
	assert.True(t, PreviousState{}.IsZero())

	prev := PreviousFromCache(&CachedTickerState{Derived: Derived{BiasLabel: BiasNeutral, ConfluenceCount: 2}})
	assert.False(t, prev.IsZero())
	assert.Equal(t, BiasNeutral, prev.BiasLabel)
	assert.Equal(t, 2, prev.ConfluenceCount)
}
