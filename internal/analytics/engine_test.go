// internal/analytics/engine_test.go
package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgalar/CanadianTracker/internal/models"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleAt(offset time.Duration, cents int64) models.PriceSample {
	return models.PriceSample{
		SampleTime: base.Add(offset),
		PriceCents: cents,
		InStock:    true,
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	assert.Nil(t, ComputeStats(nil))
	assert.Nil(t, ComputeStats([]models.PriceSample{}))
}

func TestComputeStatsScenario(t *testing.T) {
	samples := []models.PriceSample{
		sampleAt(0, 1000),
		sampleAt(time.Hour, 800),
		sampleAt(2*time.Hour, 1200),
	}

	stats := ComputeStats(samples)
	require.NotNil(t, stats)
	assert.Equal(t, int64(1200), stats.CurrentCents)
	assert.Equal(t, int64(800), stats.AllTimeLowCents)
	assert.Equal(t, int64(1200), stats.AllTimeHighCents)
	assert.Equal(t, 0.0, stats.DealPercent)
	assert.Equal(t, 3, stats.SampleCount)

	// A later, cheaper sample moves current and the deal score.
	samples = append(samples, sampleAt(3*time.Hour, 600))
	stats = ComputeStats(samples)
	require.NotNil(t, stats)
	assert.Equal(t, int64(600), stats.CurrentCents)
	assert.Equal(t, int64(600), stats.AllTimeLowCents)
	assert.Equal(t, int64(1200), stats.AllTimeHighCents)
	assert.InDelta(t, 0.5, stats.DealPercent, 1e-9)
}

func TestComputeStatsInvariant(t *testing.T) {
	tests := []struct {
		name  string
		cents []int64
	}{
		{name: "single", cents: []int64{999}},
		{name: "increasing", cents: []int64{100, 200, 300}},
		{name: "decreasing", cents: []int64{300, 200, 100}},
		{name: "oscillating", cents: []int64{500, 100, 900, 400}},
		{name: "constant", cents: []int64{250, 250, 250}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var samples []models.PriceSample
			for i, c := range tt.cents {
				samples = append(samples, sampleAt(time.Duration(i)*time.Hour, c))
			}

			stats := ComputeStats(samples)
			require.NotNil(t, stats)
			assert.LessOrEqual(t, stats.AllTimeLowCents, stats.CurrentCents)
			assert.LessOrEqual(t, stats.CurrentCents, stats.AllTimeHighCents)
		})
	}
}

func TestComputeStatsCurrentByMaxSampleTime(t *testing.T) {
	// Clock skew across runs can leave the newest sample time on an earlier
	// row; current must follow the maximum sample time, not row order.
	samples := []models.PriceSample{
		sampleAt(2*time.Hour, 700),
		sampleAt(0, 1000),
		sampleAt(time.Hour, 900),
	}

	stats := ComputeStats(samples)
	require.NotNil(t, stats)
	assert.Equal(t, int64(700), stats.CurrentCents)
	assert.Equal(t, base.Add(2*time.Hour), stats.LatestSampleTime)
}

func collect(seq func(yield func(models.PricePoint) bool)) []models.PricePoint {
	var points []models.PricePoint
	seq(func(p models.PricePoint) bool {
		points = append(points, p)
		return true
	})
	return points
}

func TestStepSeriesShape(t *testing.T) {
	samples := []models.PriceSample{
		sampleAt(0, 1000),
		sampleAt(time.Hour, 1000),
		sampleAt(2*time.Hour, 1500),
	}

	points := collect(StepSeries(samples, 24*time.Hour))
	require.Len(t, points, 3)

	// Flat until the change, then a vertical jump at the change time. The
	// unchanged middle sample is elided.
	assert.Equal(t, models.PricePoint{Time: base, PriceCents: 1000}, points[0])
	assert.Equal(t, models.PricePoint{Time: base.Add(2 * time.Hour), PriceCents: 1000}, points[1])
	assert.Equal(t, models.PricePoint{Time: base.Add(2 * time.Hour), PriceCents: 1500}, points[2])
}

func TestStepSeriesSingleSample(t *testing.T) {
	lookback := 24 * time.Hour
	points := collect(StepSeries([]models.PriceSample{sampleAt(0, 1000)}, lookback))
	require.Len(t, points, 2)
	assert.Equal(t, base.Add(-lookback), points[0].Time)
	assert.Equal(t, int64(1000), points[0].PriceCents)
	assert.Equal(t, base, points[1].Time)
	assert.Equal(t, int64(1000), points[1].PriceCents)
}

func TestStepSeriesEmpty(t *testing.T) {
	assert.Empty(t, collect(StepSeries(nil, time.Hour)))
}

func TestStepSeriesRestartable(t *testing.T) {
	samples := []models.PriceSample{
		sampleAt(0, 1000),
		sampleAt(time.Hour, 1200),
	}
	seq := StepSeries(samples, time.Hour)

	// Abandon the first pass after one point; a fresh pass still yields the
	// full series.
	var first []models.PricePoint
	seq(func(p models.PricePoint) bool {
		first = append(first, p)
		return false
	})
	require.Len(t, first, 1)

	assert.Len(t, collect(seq), 3)
}

type fakeSource struct {
	skus    map[string]*models.Sku
	samples map[uint][]models.PriceSample
}

func (f *fakeSource) SkuByCode(_ context.Context, code string) (*models.Sku, error) {
	return f.skus[code], nil
}

func (f *fakeSource) SamplesForSku(_ context.Context, skuID uint) ([]models.PriceSample, error) {
	return f.samples[skuID], nil
}

func TestEngineStatsUnknownSku(t *testing.T) {
	engine := NewEngine(&fakeSource{skus: map[string]*models.Sku{}}, time.Hour)
	_, err := engine.Stats(context.Background(), "1234567")
	assert.ErrorIs(t, err, ErrUnknownSku)
}

func TestEngineStatsNoSamples(t *testing.T) {
	source := &fakeSource{
		skus:    map[string]*models.Sku{"1234567": {ID: 1, Code: "1234567"}},
		samples: map[uint][]models.PriceSample{},
	}
	engine := NewEngine(source, time.Hour)

	stats, err := engine.Stats(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestRankDeals(t *testing.T) {
	source := &fakeSource{
		skus: map[string]*models.Sku{},
		samples: map[uint][]models.PriceSample{
			// 50% off, older latest sample
			1: {sampleAt(0, 1000), sampleAt(time.Hour, 500)},
			// 50% off, newer latest sample
			2: {sampleAt(0, 2000), sampleAt(2*time.Hour, 1000)},
			// 25% off
			3: {sampleAt(0, 400), sampleAt(time.Hour, 300)},
			// zero all-time high: excluded, never divides by zero
			4: {sampleAt(0, 0)},
			// no samples: excluded
			5: {},
		},
	}
	skus := []models.Sku{
		{ID: 1, Code: "AAA11"},
		{ID: 2, Code: "BBB22"},
		{ID: 3, Code: "CCC33"},
		{ID: 4, Code: "DDD44"},
		{ID: 5, Code: "EEE55"},
	}
	engine := NewEngine(source, time.Hour)

	deals, err := engine.RankDeals(context.Background(), skus, 0)
	require.NoError(t, err)
	require.Len(t, deals, 3)

	// Equal deal scores tie-break on latest sample time, newest first.
	assert.Equal(t, "BBB22", deals[0].SkuCode)
	assert.Equal(t, "AAA11", deals[1].SkuCode)
	assert.Equal(t, "CCC33", deals[2].SkuCode)

	// Deterministic: a second ranking of the same state is identical.
	again, err := engine.RankDeals(context.Background(), skus, 0)
	require.NoError(t, err)
	assert.Equal(t, deals, again)

	limited, err := engine.RankDeals(context.Background(), skus, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRankDealsTieBreakBySkuCode(t *testing.T) {
	shared := []models.PriceSample{sampleAt(0, 1000), sampleAt(time.Hour, 500)}
	source := &fakeSource{
		skus: map[string]*models.Sku{},
		samples: map[uint][]models.PriceSample{
			1: shared,
			2: shared,
		},
	}
	skus := []models.Sku{
		{ID: 2, Code: "ZZZ99"},
		{ID: 1, Code: "AAA11"},
	}
	engine := NewEngine(source, time.Hour)

	deals, err := engine.RankDeals(context.Background(), skus, 0)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, "AAA11", deals[0].SkuCode)
	assert.Equal(t, "ZZZ99", deals[1].SkuCode)
}
