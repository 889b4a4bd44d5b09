// internal/models/catalog.go
package models

import (
	"time"

	"github.com/lib/pq"
)

// Product is a catalog entry as listed by the upstream retailer. Rows are
// created on first sighting and never deleted; LastSeenAt advances on every
// reconciliation run that observes the product.
type Product struct {
	ID          uint           `json:"-" gorm:"primaryKey"`
	Code        string         `json:"code" gorm:"size:16;uniqueIndex;not null"`
	Name        string         `json:"name" gorm:"size:512;not null"`
	URL         string         `json:"url" gorm:"size:1024"`
	Badges      pq.StringArray `json:"badges,omitempty" gorm:"type:text[]"`
	InClearance bool           `json:"in_clearance"`
	LastSeenAt  time.Time      `json:"last_seen_at" gorm:"index;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	Skus []Sku `json:"skus,omitempty" gorm:"foreignKey:ProductID"`
}

// Sku is a purchasable variant of a Product.
type Sku struct {
	ID            uint      `json:"-" gorm:"primaryKey"`
	Code          string    `json:"code" gorm:"size:16;uniqueIndex;not null"`
	FormattedCode string    `json:"formatted_code" gorm:"size:32"`
	ProductID     uint      `json:"-" gorm:"index;not null"`
	LastSeenAt    time.Time `json:"last_seen_at" gorm:"index;not null"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Product *Product      `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Samples []PriceSample `json:"samples,omitempty" gorm:"foreignKey:SkuID"`
}

// PriceSample is an immutable price/availability observation. Samples are
// append-only and strictly increasing in SampleTime per SKU.
type PriceSample struct {
	ID         uint      `json:"-" gorm:"primaryKey"`
	SkuID      uint      `json:"-" gorm:"uniqueIndex:idx_samples_sku_time,priority:1;not null"`
	SampleTime time.Time `json:"sample_time" gorm:"uniqueIndex:idx_samples_sku_time,priority:2;not null"`
	PriceCents int64     `json:"price_cents" gorm:"not null"`
	InPromo    bool      `json:"in_promo"`
	InStock    bool      `json:"in_stock"`
	RawPayload string    `json:"-" gorm:"type:text"`
}

// Price returns the sample price in dollars.
func (s PriceSample) Price() float64 {
	return float64(s.PriceCents) / 100
}

// StaleAsOf reports whether the product was absent from the most recent
// reconciliation run that started at runStart. Staleness is derived, never
// stored.
func (p *Product) StaleAsOf(runStart time.Time) bool {
	return p.LastSeenAt.Before(runStart)
}

// StaleAsOf reports whether the SKU was absent from the run started at
// runStart.
func (s *Sku) StaleAsOf(runStart time.Time) bool {
	return s.LastSeenAt.Before(runStart)
}

// PriceStats is derived from the stored samples of one SKU. It is computed
// on demand and never persisted. Absence of samples is modeled by a nil
// *PriceStats, not a zero value.
type PriceStats struct {
	CurrentCents     int64     `json:"current_cents"`
	AllTimeLowCents  int64     `json:"all_time_low_cents"`
	AllTimeHighCents int64     `json:"all_time_high_cents"`
	DealPercent      float64   `json:"deal_percent"`
	SampleCount      int       `json:"sample_count"`
	LatestSampleTime time.Time `json:"latest_sample_time"`
}

// PricePoint is one point of a step-interpolated history series.
type PricePoint struct {
	Time       time.Time `json:"datetime"`
	PriceCents int64     `json:"price_cents"`
}

// Deal pairs a SKU with its deal score for ranking.
type Deal struct {
	SkuCode     string     `json:"sku_code"`
	ProductCode string     `json:"product_code,omitempty"`
	ProductName string     `json:"product_name,omitempty"`
	DealPercent float64    `json:"deal_percent"`
	Stats       PriceStats `json:"stats"`
}
