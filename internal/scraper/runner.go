// internal/scraper/runner.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jgalar/CanadianTracker/internal/config"
	"github.com/jgalar/CanadianTracker/internal/models"
	"github.com/jgalar/CanadianTracker/internal/triangle"
)

// CatalogLister is the upstream listing surface the runner consumes.
type CatalogLister interface {
	ListProducts(ctx context.Context, cursor string) (*triangle.ProductPage, error)
	ListSkus(ctx context.Context, productCode string) ([]triangle.Sku, error)
}

// Store is the full storage surface the ingestion stages need.
// *storage.Repository satisfies it.
type Store interface {
	CatalogStore
	SampleStore
	AllProductCodes(ctx context.Context) ([]string, error)
	AllSkus(ctx context.Context) ([]models.Sku, error)
	StaleProducts(ctx context.Context, runStart time.Time) ([]models.Product, error)
}

// Runner drives the three independently invocable ingestion stages:
// product listing, SKU listing and price sampling. Each stage is safely
// re-runnable; re-running only refreshes last-seen times and appends
// samples where the observation actually changed.
type Runner struct {
	client     CatalogLister
	store      Store
	reconciler *Reconciler
	sampler    *Sampler
	log        *logrus.Entry
}

func NewRunner(client CatalogLister, fetcher PriceFetcher, store Store, cfg config.ScraperConfig) *Runner {
	return &Runner{
		client:     client,
		store:      store,
		reconciler: NewReconciler(store),
		sampler:    NewSampler(store, fetcher, cfg),
		log:        logrus.WithField("component", "runner"),
	}
}

// ScrapeInventory pages through the upstream product listing and
// reconciles every record. The cursor makes the listing restartable; a
// page that stays unavailable after retries is skipped, not fatal.
func (r *Runner) ScrapeInventory(ctx context.Context) (*Report, error) {
	report := newReport("scrape-inventory")
	defer report.finish()

	runStart := time.Now()
	cursor := ""
	totalPages := 0

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := r.client.ListProducts(ctx, cursor)
		if err != nil {
			var unavailable *triangle.UnavailableError
			if errors.As(err, &unavailable) {
				report.Failed++
				r.log.WithError(err).WithField("page", pageNum).
					Warn("Listing page unavailable, skipping")

				// Advance past the failed page by hand. Without a known page
				// count there is nothing to resume from, so give up then.
				if totalPages == 0 || pageNum >= totalPages {
					return report, fmt.Errorf("product listing aborted: %w", err)
				}
				cursor = strconv.Itoa(pageNum + 1)
				continue
			}
			return report, err
		}
		totalPages = page.TotalPages

		partial, err := r.reconciler.ReconcileProducts(ctx, page.Products, runStart)
		report.merge(partial)
		if err != nil {
			return report, err
		}

		if page.Done {
			break
		}
		cursor = page.NextCursor
	}

	return report, nil
}

// ScrapeSkus reconciles the SKUs of every known product. Products gone
// from the upstream are left to go stale; unavailable products are skipped.
func (r *Runner) ScrapeSkus(ctx context.Context) (*Report, error) {
	report := newReport("scrape-skus")
	defer report.finish()

	runStart := time.Now()
	codes, err := r.store.AllProductCodes(ctx)
	if err != nil {
		return report, err
	}

	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		skus, err := r.client.ListSkus(ctx, code)
		if err != nil {
			switch {
			case errors.Is(err, triangle.ErrNotFound):
				report.Stale++
				r.log.WithField("product", code).Debug("Product gone upstream")
			default:
				report.Failed++
				r.log.WithError(err).WithField("product", code).
					Warn("Failed to list skus, skipping product")
			}
			continue
		}

		partial, err := r.reconciler.ReconcileSkus(ctx, code, skus, runStart)
		report.merge(partial)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

// ScrapePrices samples the price of every known SKU.
func (r *Runner) ScrapePrices(ctx context.Context) (*Report, error) {
	skus, err := r.store.AllSkus(ctx)
	if err != nil {
		return newReport("sample-prices").finish(), err
	}
	return r.sampler.SampleAll(ctx, skus)
}

// Stale lists catalog entries not seen since runStart, for operator
// inspection.
func (r *Runner) Stale(ctx context.Context, runStart time.Time) ([]models.Product, error) {
	return r.store.StaleProducts(ctx, runStart)
}
