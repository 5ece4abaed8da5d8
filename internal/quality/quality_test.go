package quality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/types"
)

func strp(s string) *string { return &s }

func fullEntities(conf float64) types.ExtractedEntities {
	return types.ExtractedEntities{
		Person:  strp("Jane Doe"),
		Startup: strp("Acme Co"),
		Partner: strp("Capital Partners"),
		Details: strp("seed round"),
		Date:    strp("2026-01-01"),
		Confidence: types.FieldConfidence{
			Person: conf, Startup: conf, Partner: conf, Details: conf, Date: conf,
		},
	}
}

func TestRecordExtraction_TracksCountsAndRates(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	tr.RecordExtraction("gemini", fullEntities(0.9), true)
	tr.RecordExtraction("gemini", fullEntities(0.9), false)

	snap := tr.Snapshot()["gemini"]
	assert.Equal(t, int64(2), snap.Extractions)
	assert.Equal(t, int64(1), snap.ValidationsPassed)
	assert.Equal(t, int64(1), snap.ValidationsFailed)
	assert.Equal(t, float64(50), snap.ValidationRate)
	assert.InDelta(t, 0.9, snap.AvgConfidence, 1e-9)
	assert.InDelta(t, 100, snap.AvgCompleteness, 1e-9)
}

// TestRecordExtraction_ConfidenceAndCompletenessBounds asserts spec §8
// invariant 5: confidence and completeness stay within their bounds.
func TestRecordExtraction_ConfidenceAndCompletenessBounds(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	for i := 0; i < 10; i++ {
		conf := float64(i) / 10.0
		tr.RecordExtraction("claude", fullEntities(conf), true)
	}
	snap := tr.Snapshot()["claude"]
	assert.GreaterOrEqual(t, snap.AvgConfidence, 0.0)
	assert.LessOrEqual(t, snap.AvgConfidence, 1.0)
	assert.GreaterOrEqual(t, snap.AvgCompleteness, 0.0)
	assert.LessOrEqual(t, snap.AvgCompleteness, 100.0)
}

func TestSnapshot_WelfordMatchesNaiveVariance(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	samples := []float64{0.5, 0.6, 0.7, 0.4, 0.9, 0.3}
	for _, s := range samples {
		tr.RecordExtraction("openai", fullEntities(s), true)
	}
	snap := tr.Snapshot()["openai"]

	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))
	var sq float64
	for _, s := range samples {
		sq += (s - mean) * (s - mean)
	}
	naiveVar := sq / float64(len(samples)-1)

	assert.InDelta(t, mean, snap.AvgConfidence, 1e-9)
	assert.InDelta(t, naiveVar, snap.StddevConfidence*snap.StddevConfidence, 1e-9)
}

// TestTrend_StableBelowWindowSize asserts the trend window requires a
// full 50-sample history before reporting anything but stable.
func TestTrend_StableBelowWindowSize(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	for i := 0; i < trendWindow-1; i++ {
		tr.RecordExtraction("gemini", fullEntities(0.9), true)
	}
	snap := tr.Snapshot()["gemini"]
	assert.Equal(t, types.TrendStable, snap.Trend)
}

// TestTrend_ImprovingWhenRecentHalfExceedsThreshold asserts spec §8
// invariant 6: the last-25-vs-previous-25 mean diff beyond +/-0.05
// flips the trend label.
func TestTrend_ImprovingWhenRecentHalfExceedsThreshold(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	for i := 0; i < 25; i++ {
		tr.RecordExtraction("gemini", fullEntities(0.5), true)
	}
	for i := 0; i < 25; i++ {
		tr.RecordExtraction("gemini", fullEntities(0.9), true)
	}
	snap := tr.Snapshot()["gemini"]
	assert.Equal(t, types.TrendImproving, snap.Trend)
}

func TestTrend_DegradingWhenRecentHalfBelowThreshold(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	for i := 0; i < 25; i++ {
		tr.RecordExtraction("claude", fullEntities(0.9), true)
	}
	for i := 0; i < 25; i++ {
		tr.RecordExtraction("claude", fullEntities(0.5), true)
	}
	snap := tr.Snapshot()["claude"]
	assert.Equal(t, types.TrendDegrading, snap.Trend)
}

// TestQualityAndValue_ScenarioS4 exercises the literal composite score
// numbers from spec scenario S4: a high-confidence paid provider
// (claude) scores close to 0.91, a lower-confidence free provider
// (gemini) close to 0.39, and the free-provider 1.5x multiplier lifts
// gemini's value above its quality while claude's cost pulls its value
// below its quality.
func TestQualityAndValue_ScenarioS4(t *testing.T) {
	claude := types.ProviderQuality{AvgConfidence: 1.0, AvgCompleteness: 100, ValidationRate: 70}
	gemini := types.ProviderQuality{AvgConfidence: 0.3, AvgCompleteness: 40, ValidationRate: 50}

	assert.InDelta(t, 0.91, Quality(claude), 0.01)
	assert.InDelta(t, 0.39, Quality(gemini), 0.01)

	valClaude := Value(claude, 0.01)
	valGemini := Value(gemini, 0)
	assert.Greater(t, valGemini, Quality(gemini))
	assert.Less(t, valClaude, Quality(claude))
}

func TestSelectByQuality_OrdersByQualityThenCost(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	tr.RecordExtraction("claude", fullEntities(0.95), true)
	tr.RecordExtraction("gemini", fullEntities(0.95), true)
	tr.SetAvgCostPerCall("claude", 0.02)
	tr.SetAvgCostPerCall("gemini", 0.0)

	winner, ok := tr.SelectByQuality([]string{"claude", "gemini"})
	assert.True(t, ok)
	assert.Equal(t, "gemini", winner)
}

func TestSelectByQuality_SkipsProvidersWithNoExtractions(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	tr.RecordExtraction("claude", fullEntities(0.9), true)

	winner, ok := tr.SelectByQuality([]string{"claude", "openai"})
	assert.True(t, ok)
	assert.Equal(t, "claude", winner)
}

func TestSelectByQuality_ReturnsFalseWhenNoneQualify(t *testing.T) {
	tr := New(t.TempDir()+"/quality.json", zap.NewNop())
	_, ok := tr.SelectByQuality([]string{"claude"})
	assert.False(t, ok)
}

func TestLoad_RoundTripsSummaryFields(t *testing.T) {
	path := fmt.Sprintf("%s/quality.json", t.TempDir())
	tr := New(path, zap.NewNop())
	tr.RecordExtraction("claude", fullEntities(0.8), true)
	tr.RecordExtraction("claude", fullEntities(0.6), false)

	reloaded := New(path, zap.NewNop())
	reloaded.Load()
	snap := reloaded.Snapshot()["claude"]
	assert.Equal(t, int64(2), snap.Extractions)
	assert.InDelta(t, 0.7, snap.AvgConfidence, 1e-9)
}
