// internal/storage/repository.go

// Package storage is the single gateway to the relational store. Catalog
// rows are only ever written through the upsert helpers and price samples
// only through AppendSample; everything else is read-only.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jgalar/CanadianTracker/internal/models"
)

// ErrNonMonotonicSample indicates an attempt to append a sample whose
// sample time is not strictly after the latest stored sample for the SKU.
// Such samples are rejected, never reordered or overwritten.
var ErrNonMonotonicSample = errors.New("sample time not after latest stored sample")

// Product codes are seven digits followed by a literal P, under various
// capitalization patterns on the website. Normalized to upper case before
// validation.
var productCodeRe = regexp.MustCompile(`^\d{7}P$`)

func ValidateProductCode(code string) error {
	if !productCodeRe.MatchString(strings.ToUpper(code)) {
		return fmt.Errorf("wrong format for product code: %q", code)
	}
	return nil
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertProduct creates the product on first sighting or refreshes its
// mutable fields and last-seen time. The upsert is a single atomic write
// keyed by the unique code, so concurrent runs reconciling the same code
// resolve through the store's uniqueness constraint.
func (r *Repository) UpsertProduct(ctx context.Context, p *models.Product) error {
	if err := ValidateProductCode(p.Code); err != nil {
		return err
	}
	p.Code = strings.ToUpper(p.Code)

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "url", "badges", "in_clearance", "last_seen_at", "updated_at",
			}),
		}).
		Create(p).Error
}

// UpsertSku creates or refreshes a SKU under the product identified by
// productCode. A SKU code that reappears under a different product is
// re-parented; these migrations happen when a product changes names.
func (r *Repository) UpsertSku(ctx context.Context, productCode string, sku *models.Sku) error {
	product, err := r.ProductByCode(ctx, productCode)
	if err != nil {
		return err
	}
	if product == nil {
		return fmt.Errorf("cannot reconcile sku %s: no product with code %s", sku.Code, productCode)
	}
	sku.ProductID = product.ID

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"formatted_code", "product_id", "last_seen_at", "updated_at",
			}),
		}).
		Create(sku).Error
}

// AppendSample appends one immutable price sample, enforcing strictly
// increasing sample times per SKU. The check runs inside a transaction and
// is backed by the unique (sku_id, sample_time) index, so concurrent
// appenders cannot interleave out of order.
func (r *Repository) AppendSample(ctx context.Context, sample *models.PriceSample) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.PriceSample
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sku_id = ?", sample.SkuID).
			Order("sample_time DESC").
			First(&latest).Error
		switch {
		case err == nil:
			if !sample.SampleTime.After(latest.SampleTime) {
				return ErrNonMonotonicSample
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first sample for this SKU
		default:
			return err
		}
		return tx.Create(sample).Error
	})

	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrNonMonotonicSample
	}
	return err
}

func (r *Repository) ProductByCode(ctx context.Context, code string) (*models.Product, error) {
	if err := ValidateProductCode(code); err != nil {
		return nil, err
	}

	var product models.Product
	err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(code)).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) SkuByCode(ctx context.Context, code string) (*models.Sku, error) {
	var sku models.Sku
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("code = ?", code).
		First(&sku).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

// Products returns the full catalog, paged.
func (r *Repository) Products(ctx context.Context, limit, offset int) ([]models.Product, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := r.db.WithContext(ctx).
		Order("code ASC").
		Limit(limit).
		Offset(offset).
		Find(&products).Error
	return products, total, err
}

// AllProductCodes returns every known product code, ordered for
// deterministic runs.
func (r *Repository) AllProductCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Order("code ASC").
		Pluck("code", &codes).Error
	return codes, err
}

// SkusForProduct returns all SKUs reconciled under one product.
func (r *Repository) SkusForProduct(ctx context.Context, productCode string) ([]models.Sku, error) {
	product, err := r.ProductByCode(ctx, productCode)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}

	var skus []models.Sku
	err = r.db.WithContext(ctx).
		Where("product_id = ?", product.ID).
		Order("code ASC").
		Find(&skus).Error
	return skus, err
}

// AllSkus returns every known SKU, ordered by code for deterministic runs.
func (r *Repository) AllSkus(ctx context.Context) ([]models.Sku, error) {
	var skus []models.Sku
	err := r.db.WithContext(ctx).
		Order("code ASC").
		Find(&skus).Error
	return skus, err
}

// AllSkusWithProducts returns every known SKU with its owning product
// loaded, for ranking and display.
func (r *Repository) AllSkusWithProducts(ctx context.Context) ([]models.Sku, error) {
	var skus []models.Sku
	err := r.db.WithContext(ctx).
		Preload("Product").
		Order("code ASC").
		Find(&skus).Error
	return skus, err
}

// LatestSample returns the most recent sample of a SKU by sample time, or
// nil when none exists. Ordering by sample_time rather than insertion order
// keeps "current" well defined under clock skew across runs.
func (r *Repository) LatestSample(ctx context.Context, skuID uint) (*models.PriceSample, error) {
	var sample models.PriceSample
	err := r.db.WithContext(ctx).
		Where("sku_id = ?", skuID).
		Order("sample_time DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// SamplesForSku returns the full sample history of a SKU in sample-time
// order.
func (r *Repository) SamplesForSku(ctx context.Context, skuID uint) ([]models.PriceSample, error) {
	var samples []models.PriceSample
	err := r.db.WithContext(ctx).
		Where("sku_id = ?", skuID).
		Order("sample_time ASC").
		Find(&samples).Error
	return samples, err
}

// SearchProducts matches products by case-insensitive name substring or
// exact code.
func (r *Repository) SearchProducts(ctx context.Context, text string, limit, offset int) ([]models.Product, int64, error) {
	term := "%" + strings.ToLower(text) + "%"
	query := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("LOWER(name) LIKE ? OR code = ?", term, strings.ToUpper(text))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := query.
		Preload("Skus").
		Order("code ASC").
		Limit(limit).
		Offset(offset).
		Find(&products).Error
	return products, total, err
}

// StaleProducts returns products not observed since the given run start.
func (r *Repository) StaleProducts(ctx context.Context, runStart time.Time) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("last_seen_at < ?", runStart).
		Order("last_seen_at ASC").
		Find(&products).Error
	return products, err
}
