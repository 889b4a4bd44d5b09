// internal/scraper/reconciler.go
package scraper

import (
	"context"

	"time"

	"github.com/sirupsen/logrus"

	"github.com/jgalar/CanadianTracker/internal/models"
	"github.com/jgalar/CanadianTracker/internal/triangle"
)

// CatalogStore is the slice of the store the reconciler writes through. The
// reconciler is the only writer of Product and Sku rows.
type CatalogStore interface {
	UpsertProduct(ctx context.Context, p *models.Product) error
	UpsertSku(ctx context.Context, productCode string, sku *models.Sku) error
}

// Reconciler keeps the local catalog consistent with the remote one.
// Records absent from a pull are never deleted; their last-seen time simply
// stops advancing, which is the staleness signal.
type Reconciler struct {
	store CatalogStore
	log   *logrus.Entry
}

func NewReconciler(store CatalogStore) *Reconciler {
	return &Reconciler{
		store: store,
		log:   logrus.WithField("component", "reconciler"),
	}
}

// ReconcileProducts upserts a batch of raw product records, stamping each
// observed product with asOf. A failure on one record is logged and skipped
// so the rest of the page still reconciles. Cancellation takes effect
// between records, leaving already-reconciled rows in place.
func (r *Reconciler) ReconcileProducts(ctx context.Context, records []triangle.Product, asOf time.Time) (*Report, error) {
	report := newReport("reconcile-products")
	defer report.finish()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		product := &models.Product{
			Code:        rec.Code,
			Name:        rec.Name,
			URL:         rec.URL,
			Badges:      rec.Badges,
			InClearance: rec.InClearance,
			LastSeenAt:  asOf,
		}
		if err := r.store.UpsertProduct(ctx, product); err != nil {
			report.Failed++
			r.log.WithError(err).WithField("product", rec.Code).
				Warn("Failed to reconcile product, skipping")
			continue
		}
		report.Reconciled++
	}

	return report, nil
}

// ReconcileSkus upserts the SKU records observed under one product. SKUs
// whose code moved to a different product are re-parented rather than
// rejected.
func (r *Reconciler) ReconcileSkus(ctx context.Context, productCode string, records []triangle.Sku, asOf time.Time) (*Report, error) {
	report := newReport("reconcile-skus")
	defer report.finish()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		sku := &models.Sku{
			Code:          rec.Code,
			FormattedCode: rec.FormattedCode,
			LastSeenAt:    asOf,
		}
		if err := r.store.UpsertSku(ctx, productCode, sku); err != nil {
			report.Failed++
			r.log.WithError(err).WithFields(logrus.Fields{
				"product": productCode,
				"sku":     rec.Code,
			}).Warn("Failed to reconcile sku, skipping")
			continue
		}
		report.Reconciled++
	}

	return report, nil
}
