// internal/query/service_test.go
package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgalar/CanadianTracker/internal/analytics"
	"github.com/jgalar/CanadianTracker/internal/models"
)

type fakeReadStore struct {
	products []models.Product
	skus     []models.Sku
}

func (f *fakeReadStore) SearchProducts(_ context.Context, text string, limit, offset int) ([]models.Product, int64, error) {
	return f.products, int64(len(f.products)), nil
}

func (f *fakeReadStore) AllSkusWithProducts(_ context.Context) ([]models.Sku, error) {
	return f.skus, nil
}

func (f *fakeReadStore) Products(_ context.Context, limit, offset int) ([]models.Product, int64, error) {
	return f.products, int64(len(f.products)), nil
}

type countingSource struct {
	skus        map[string]*models.Sku
	samples     map[uint][]models.PriceSample
	sampleCalls int
}

func (c *countingSource) SkuByCode(_ context.Context, code string) (*models.Sku, error) {
	return c.skus[code], nil
}

func (c *countingSource) SamplesForSku(_ context.Context, skuID uint) ([]models.PriceSample, error) {
	c.sampleCalls++
	return c.samples[skuID], nil
}

func sampleAt(offset time.Duration, cents int64) models.PriceSample {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return models.PriceSample{SampleTime: base.Add(offset), PriceCents: cents, InStock: true}
}

func TestStatsCachesComputedValues(t *testing.T) {
	source := &countingSource{
		skus: map[string]*models.Sku{"55510001": {ID: 1, Code: "55510001"}},
		samples: map[uint][]models.PriceSample{
			1: {sampleAt(0, 1000), sampleAt(time.Hour, 800)},
		},
	}
	service := NewService(&fakeReadStore{}, analytics.NewEngine(source, time.Hour))

	stats, err := service.Stats(context.Background(), "55510001")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(800), stats.CurrentCents)
	assert.Equal(t, 1, source.sampleCalls)

	// The second lookup is served from the cache.
	again, err := service.Stats(context.Background(), "55510001")
	require.NoError(t, err)
	assert.Equal(t, stats, again)
	assert.Equal(t, 1, source.sampleCalls)
}

func TestStatsDoesNotCacheAbsence(t *testing.T) {
	source := &countingSource{
		skus:    map[string]*models.Sku{"55510001": {ID: 1, Code: "55510001"}},
		samples: map[uint][]models.PriceSample{},
	}
	service := NewService(&fakeReadStore{}, analytics.NewEngine(source, time.Hour))

	stats, err := service.Stats(context.Background(), "55510001")
	require.NoError(t, err)
	assert.Nil(t, stats)

	// The SKU gains its first sample; the next lookup must see it.
	source.samples[1] = []models.PriceSample{sampleAt(0, 1000)}
	stats, err = service.Stats(context.Background(), "55510001")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(1000), stats.CurrentCents)
}

func TestStatsUnknownSku(t *testing.T) {
	source := &countingSource{skus: map[string]*models.Sku{}}
	service := NewService(&fakeReadStore{}, analytics.NewEngine(source, time.Hour))

	_, err := service.Stats(context.Background(), "99999999")
	assert.ErrorIs(t, err, analytics.ErrUnknownSku)
}

func TestSearchAttachesStats(t *testing.T) {
	source := &countingSource{
		skus: map[string]*models.Sku{"55510001": {ID: 1, Code: "55510001"}},
		samples: map[uint][]models.PriceSample{
			1: {sampleAt(0, 1000)},
		},
	}
	store := &fakeReadStore{
		products: []models.Product{{
			ID:   1,
			Code: "1234567P",
			Name: "Hammer",
			Skus: []models.Sku{{ID: 1, Code: "55510001", FormattedCode: "555-1000-1", ProductID: 1}},
		}},
	}
	service := NewService(store, analytics.NewEngine(source, time.Hour))

	results, total, err := service.Search(context.Background(), "hammer", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, results, 1)
	require.Len(t, results[0].Skus, 1)
	assert.Equal(t, "55510001", results[0].Skus[0].Code)
	require.NotNil(t, results[0].Skus[0].Stats)
	assert.Equal(t, int64(1000), results[0].Skus[0].Stats.CurrentCents)
	// The embedded sku list is flattened into SkuResults, not repeated.
	assert.Nil(t, results[0].Product.Skus)
}

func TestHistoryMaterializesSeries(t *testing.T) {
	source := &countingSource{
		skus: map[string]*models.Sku{"55510001": {ID: 1, Code: "55510001"}},
		samples: map[uint][]models.PriceSample{
			1: {sampleAt(0, 1000), sampleAt(time.Hour, 1500)},
		},
	}
	service := NewService(&fakeReadStore{}, analytics.NewEngine(source, time.Hour))

	points, err := service.History(context.Background(), "55510001")
	require.NoError(t, err)
	assert.Len(t, points, 3)
}
