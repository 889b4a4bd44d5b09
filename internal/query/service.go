// internal/query/service.go

// Package query is the read side exposed to the HTTP layer: text search,
// deal ranking and per-SKU price history, all pure functions of current
// store state plus the analytics engine.
package query

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/jgalar/CanadianTracker/internal/analytics"
	"github.com/jgalar/CanadianTracker/internal/models"
)

const (
	statsCacheSize = 4096
	statsCacheTTL  = 5 * time.Minute
)

// SkuResult is one SKU of a search hit, with its computed stats when any
// samples exist.
type SkuResult struct {
	Code          string             `json:"code"`
	FormattedCode string             `json:"formatted_code"`
	Stats         *models.PriceStats `json:"stats,omitempty"`
}

// SearchResult is one matching product with its SKUs and their stats.
type SearchResult struct {
	Product models.Product `json:"product"`
	Skus    []SkuResult    `json:"skus"`
}

// ReadStore is the slice of the store the read side consumes.
// *storage.Repository satisfies it.
type ReadStore interface {
	SearchProducts(ctx context.Context, text string, limit, offset int) ([]models.Product, int64, error)
	AllSkusWithProducts(ctx context.Context) ([]models.Sku, error)
	Products(ctx context.Context, limit, offset int) ([]models.Product, int64, error)
}

type Service struct {
	repo   ReadStore
	engine *analytics.Engine

	// Stats are recomputed from the full sample history on every request;
	// a short-lived cache keeps repeated search/deal queries cheap.
	statsCache *expirable.LRU[string, *models.PriceStats]
	log        *logrus.Entry
}

func NewService(repo ReadStore, engine *analytics.Engine) *Service {
	return &Service{
		repo:       repo,
		engine:     engine,
		statsCache: expirable.NewLRU[string, *models.PriceStats](statsCacheSize, nil, statsCacheTTL),
		log:        logrus.WithField("component", "query"),
	}
}

// Search matches products by name substring or exact code and attaches
// computed stats to each SKU.
func (s *Service) Search(ctx context.Context, text string, limit, offset int) ([]SearchResult, int64, error) {
	products, total, err := s.repo.SearchProducts(ctx, text, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	results := make([]SearchResult, 0, len(products))
	for _, product := range products {
		result := SearchResult{Product: product}
		for _, sku := range product.Skus {
			stats, err := s.skuStats(ctx, sku.Code)
			if err != nil {
				return nil, 0, err
			}
			result.Skus = append(result.Skus, SkuResult{
				Code:          sku.Code,
				FormattedCode: sku.FormattedCode,
				Stats:         stats,
			})
		}
		result.Product.Skus = nil
		results = append(results, result)
	}
	return results, total, nil
}

// Deals ranks all known SKUs by deal score and returns the top entries.
func (s *Service) Deals(ctx context.Context, limit int) ([]models.Deal, error) {
	skus, err := s.repo.AllSkusWithProducts(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.RankDeals(ctx, skus, limit)
}

// History returns the step-interpolated price history of one SKU,
// materialized for serialization.
func (s *Service) History(ctx context.Context, skuCode string) ([]models.PricePoint, error) {
	series, err := s.engine.StepSeries(ctx, skuCode)
	if err != nil {
		return nil, err
	}

	var points []models.PricePoint
	for point := range series {
		points = append(points, point)
	}
	return points, nil
}

// Stats returns the computed stats of one SKU, nil when it has no samples.
func (s *Service) Stats(ctx context.Context, skuCode string) (*models.PriceStats, error) {
	return s.skuStats(ctx, skuCode)
}

// Products lists the catalog, paged.
func (s *Service) Products(ctx context.Context, limit, offset int) ([]models.Product, int64, error) {
	return s.repo.Products(ctx, limit, offset)
}

func (s *Service) skuStats(ctx context.Context, skuCode string) (*models.PriceStats, error) {
	if stats, ok := s.statsCache.Get(skuCode); ok {
		return stats, nil
	}

	stats, err := s.engine.Stats(ctx, skuCode)
	if err != nil {
		return nil, err
	}
	// Sample-less SKUs are not cached so their first sample shows up
	// without waiting for the TTL.
	if stats != nil {
		s.statsCache.Add(skuCode, stats)
	}
	return stats, nil
}
