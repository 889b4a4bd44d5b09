// internal/scraper/sampler.go
package scraper

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jgalar/CanadianTracker/internal/config"
	"github.com/jgalar/CanadianTracker/internal/models"
	"github.com/jgalar/CanadianTracker/internal/storage"
	"github.com/jgalar/CanadianTracker/internal/triangle"
)

// SampleStore is the slice of the store the sampler touches. The sampler is
// the only writer of PriceSample rows.
type SampleStore interface {
	LatestSample(ctx context.Context, skuID uint) (*models.PriceSample, error)
	AppendSample(ctx context.Context, sample *models.PriceSample) error
}

// PriceFetcher is the upstream surface the sampler consumes.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, skuCodes []string) ([]triangle.PriceInfo, error)
}

// Sampler appends price samples for known SKUs. A sample is only appended
// when the observation differs from the latest stored sample on
// (price, inPromo, inStock), so re-running after a crash never duplicates
// samples for unchanged state.
type Sampler struct {
	store   SampleStore
	fetcher PriceFetcher

	parallelism int
	batchSize   int
	now         func() time.Time
	log         *logrus.Entry
}

func NewSampler(store SampleStore, fetcher PriceFetcher, cfg config.ScraperConfig) *Sampler {
	return &Sampler{
		store:       store,
		fetcher:     fetcher,
		parallelism: cfg.Parallelism,
		batchSize:   cfg.PriceBatchSize,
		now:         time.Now,
		log:         logrus.WithField("component", "sampler"),
	}
}

// SampleAll samples every given SKU with bounded parallelism across
// batches. The upstream pacing floor is enforced inside the fetcher's
// shared limiter, not here. Cancellation takes effect between batches; all
// samples already appended are retained.
func (s *Sampler) SampleAll(ctx context.Context, skus []models.Sku) (*Report, error) {
	report := newReport("sample-prices")
	defer report.finish()

	skusByCode := make(map[string]models.Sku, len(skus))
	for _, sku := range skus {
		skusByCode[sku.Code] = sku
	}

	batches := make(chan []models.Sku)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := s.parallelism
	if workers < 1 {
		workers = 1
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				partial := s.sampleBatch(ctx, batch, skusByCode)
				mu.Lock()
				report.merge(partial)
				mu.Unlock()
			}
		}()
	}

	batchSize := s.batchSize
	if batchSize < 1 {
		batchSize = 1
	}
	var cancelled bool
	for batch := range slices.Chunk(skus, batchSize) {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		batches <- batch
	}
	close(batches)
	wg.Wait()

	if cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

func (s *Sampler) sampleBatch(ctx context.Context, batch []models.Sku, skusByCode map[string]models.Sku) *Report {
	partial := &Report{}

	codes := make([]string, 0, len(batch))
	for _, sku := range batch {
		codes = append(codes, sku.Code)
	}

	infos, err := s.fetcher.FetchPrices(ctx, codes)
	if err != nil {
		if errors.Is(err, triangle.ErrNotFound) {
			// The whole batch is gone upstream: no new samples, and the
			// SKUs' last-seen times stop advancing, which marks them stale.
			partial.Stale += len(batch)
			return partial
		}
		var unavailable *triangle.UnavailableError
		if errors.As(err, &unavailable) || errors.Is(err, context.DeadlineExceeded) {
			partial.Failed += len(batch)
			s.log.WithError(err).WithField("batch_size", len(batch)).
				Warn("Price batch unavailable, skipping")
			return partial
		}
		if ctx.Err() != nil {
			return partial
		}
		partial.Failed += len(batch)
		s.log.WithError(err).Warn("Price batch failed, skipping")
		return partial
	}

	seen := make(map[string]bool, len(infos))
	for _, info := range infos {
		seen[info.SkuCode] = true
		sku, ok := skusByCode[info.SkuCode]
		if !ok {
			// Upstream returned a SKU we never asked about; ignore it.
			continue
		}
		s.sampleOne(ctx, sku, info, partial)
	}

	// SKUs the upstream omitted from the response are possibly discontinued:
	// record nothing and leave them to go stale.
	for _, sku := range batch {
		if !seen[sku.Code] {
			partial.Stale++
			s.log.WithField("sku", sku.Code).Debug("SKU absent from price response")
		}
	}

	return partial
}

func (s *Sampler) sampleOne(ctx context.Context, sku models.Sku, info triangle.PriceInfo, partial *Report) {
	latest, err := s.store.LatestSample(ctx, sku.ID)
	if err != nil {
		partial.Failed++
		s.log.WithError(err).WithField("sku", sku.Code).Warn("Failed to read latest sample")
		return
	}

	if latest != nil &&
		latest.PriceCents == info.PriceCents &&
		latest.InPromo == info.InPromo &&
		latest.InStock == info.InStock {
		partial.Skipped++
		return
	}

	sample := &models.PriceSample{
		SkuID:      sku.ID,
		SampleTime: s.now(),
		PriceCents: info.PriceCents,
		InPromo:    info.InPromo,
		InStock:    info.InStock,
		RawPayload: info.RawPayload,
	}
	if err := s.store.AppendSample(ctx, sample); err != nil {
		if errors.Is(err, storage.ErrNonMonotonicSample) {
			// A concurrent run already appended a newer sample; this
			// observation is outdated, not an error worth failing over.
			partial.Skipped++
			s.log.WithField("sku", sku.Code).Debug("Rejected non-monotonic sample")
			return
		}
		partial.Failed++
		s.log.WithError(err).WithField("sku", sku.Code).Warn("Failed to append sample")
		return
	}
	partial.Sampled++
}
