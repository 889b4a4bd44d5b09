// internal/analytics/engine.go

// Package analytics derives price statistics, deal rankings and chartable
// step series from stored samples. Everything here is a pure function of
// the sample history; the package owns no persistent state and never
// writes.
package analytics

import (
	"context"
	"errors"
	"iter"
	"sort"
	"time"

	"github.com/jgalar/CanadianTracker/internal/models"
)

// ErrUnknownSku indicates a stats or history query for a SKU that was never
// reconciled.
var ErrUnknownSku = errors.New("unknown sku")

// SampleSource is the read-only slice of the store the engine consumes.
type SampleSource interface {
	SkuByCode(ctx context.Context, code string) (*models.Sku, error)
	SamplesForSku(ctx context.Context, skuID uint) ([]models.PriceSample, error)
}

type Engine struct {
	source   SampleSource
	lookback time.Duration
}

// NewEngine builds an engine. lookback is how far a single-sample history
// is extended backward so it charts as a flat segment instead of a point.
func NewEngine(source SampleSource, lookback time.Duration) *Engine {
	return &Engine{source: source, lookback: lookback}
}

// Stats computes the derived statistics of one SKU. Returns (nil, nil) when
// the SKU has no samples yet: absence is explicit, not a zero value.
func (e *Engine) Stats(ctx context.Context, skuCode string) (*models.PriceStats, error) {
	samples, err := e.samples(ctx, skuCode)
	if err != nil {
		return nil, err
	}
	return ComputeStats(samples), nil
}

// StepSeries returns the lazily produced, step-interpolated history series
// of one SKU.
func (e *Engine) StepSeries(ctx context.Context, skuCode string) (iter.Seq[models.PricePoint], error) {
	samples, err := e.samples(ctx, skuCode)
	if err != nil {
		return nil, err
	}
	return StepSeries(samples, e.lookback), nil
}

// RankDeals ranks the given SKUs by deal score, best first. SKUs with no
// samples have undefined stats and are excluded, as are SKUs whose
// all-time high is zero (a deal score over a zero high is meaningless, not
// an error). Ordering is deterministic: deal percent descending, then most
// recent sample time descending, then SKU code ascending.
func (e *Engine) RankDeals(ctx context.Context, skus []models.Sku, limit int) ([]models.Deal, error) {
	deals := make([]models.Deal, 0, len(skus))

	for _, sku := range skus {
		samples, err := e.source.SamplesForSku(ctx, sku.ID)
		if err != nil {
			return nil, err
		}
		stats := ComputeStats(samples)
		if stats == nil || stats.AllTimeHighCents == 0 {
			continue
		}

		deal := models.Deal{
			SkuCode:     sku.Code,
			DealPercent: stats.DealPercent,
			Stats:       *stats,
		}
		if sku.Product != nil {
			deal.ProductCode = sku.Product.Code
			deal.ProductName = sku.Product.Name
		}
		deals = append(deals, deal)
	}

	sort.Slice(deals, func(i, j int) bool {
		if deals[i].DealPercent != deals[j].DealPercent {
			return deals[i].DealPercent > deals[j].DealPercent
		}
		ti, tj := deals[i].Stats.LatestSampleTime, deals[j].Stats.LatestSampleTime
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return deals[i].SkuCode < deals[j].SkuCode
	})

	if limit > 0 && len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

func (e *Engine) samples(ctx context.Context, skuCode string) ([]models.PriceSample, error) {
	sku, err := e.source.SkuByCode(ctx, skuCode)
	if err != nil {
		return nil, err
	}
	if sku == nil {
		return nil, ErrUnknownSku
	}
	return e.source.SamplesForSku(ctx, sku.ID)
}

// ComputeStats folds a sample history, ordered by sample time, into derived
// statistics. Returns nil for an empty history. "Current" is the price at
// the maximum sample time, not the last inserted row; under clock skew
// across runs these can diverge.
func ComputeStats(samples []models.PriceSample) *models.PriceStats {
	if len(samples) == 0 {
		return nil
	}

	current := samples[0]
	stats := &models.PriceStats{
		AllTimeLowCents:  samples[0].PriceCents,
		AllTimeHighCents: samples[0].PriceCents,
		SampleCount:      len(samples),
	}
	for _, s := range samples[1:] {
		stats.AllTimeLowCents = min(stats.AllTimeLowCents, s.PriceCents)
		stats.AllTimeHighCents = max(stats.AllTimeHighCents, s.PriceCents)
		if s.SampleTime.After(current.SampleTime) {
			current = s
		}
	}

	stats.CurrentCents = current.PriceCents
	stats.LatestSampleTime = current.SampleTime
	if stats.AllTimeHighCents > 0 {
		stats.DealPercent = float64(stats.AllTimeHighCents-stats.CurrentCents) / float64(stats.AllTimeHighCents)
	}
	return stats
}

// StepSeries transforms a sample history, ordered by sample time, into a
// chartable series that holds each price until the next change: at every
// price change an extra point carrying the previous price is emitted at
// the change time, so the series renders as horizontal-then-vertical
// steps. Samples whose price equals the previous one are elided. A
// single-sample history is extended backward by lookback so it renders as
// a flat segment. The sequence is finite, deterministic and restartable.
func StepSeries(samples []models.PriceSample, lookback time.Duration) iter.Seq[models.PricePoint] {
	return func(yield func(models.PricePoint) bool) {
		if len(samples) == 0 {
			return
		}

		if len(samples) == 1 {
			s := samples[0]
			if !yield(models.PricePoint{Time: s.SampleTime.Add(-lookback), PriceCents: s.PriceCents}) {
				return
			}
			yield(models.PricePoint{Time: s.SampleTime, PriceCents: s.PriceCents})
			return
		}

		prev := samples[0].PriceCents
		if !yield(models.PricePoint{Time: samples[0].SampleTime, PriceCents: prev}) {
			return
		}
		for _, s := range samples[1:] {
			if s.PriceCents == prev {
				continue
			}
			if !yield(models.PricePoint{Time: s.SampleTime, PriceCents: prev}) {
				return
			}
			if !yield(models.PricePoint{Time: s.SampleTime, PriceCents: s.PriceCents}) {
				return
			}
			prev = s.PriceCents
		}
	}
}
