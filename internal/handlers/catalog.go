// internal/handlers/catalog.go
package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jgalar/CanadianTracker/internal/analytics"
	"github.com/jgalar/CanadianTracker/internal/query"
	"github.com/jgalar/CanadianTracker/internal/utils"
)

type CatalogHandler struct {
	service *query.Service
}

func NewCatalogHandler(service *query.Service) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// ListProducts handles GET /api/products
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	products, total, err := h.service.Products(c.Request.Context(), params.Limit, params.Offset())
	if err != nil {
		utils.InternalErrorResponse(c, "failed to list products")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(products, total, params))
}

type searchRequest struct {
	Query string `validate:"required,min=2,max=128"`
}

// Search handles GET /api/search?q=
func (h *CatalogHandler) Search(c *gin.Context) {
	req := searchRequest{Query: c.Query("q")}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}
	params := utils.GetPaginationParams(c)

	results, total, err := h.service.Search(c.Request.Context(), req.Query, params.Limit, params.Offset())
	if err != nil {
		utils.InternalErrorResponse(c, "search failed")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(results, total, params))
}

// Deals handles GET /api/deals?limit=
func (h *CatalogHandler) Deals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	deals, err := h.service.Deals(c.Request.Context(), limit)
	if err != nil {
		utils.InternalErrorResponse(c, "failed to rank deals")
		return
	}

	utils.SuccessResponse(c, deals)
}

type skuRequest struct {
	Code string `validate:"required,sku_code"`
}

type historyPoint struct {
	Datetime string `json:"datetime"`
	Price    string `json:"price"`
}

// History handles GET /api/skus/:code/history
func (h *CatalogHandler) History(c *gin.Context) {
	req := skuRequest{Code: c.Param("code")}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	points, err := h.service.History(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownSku) {
			utils.NotFoundResponse(c, "sku")
			return
		}
		utils.InternalErrorResponse(c, "failed to compute history")
		return
	}

	out := make([]historyPoint, 0, len(points))
	for _, p := range points {
		out = append(out, historyPoint{
			Datetime: p.Time.Format("2006-01-02T15:04:05Z07:00"),
			Price:    fmt.Sprintf("%.2f", float64(p.PriceCents)/100),
		})
	}
	utils.SuccessResponse(c, out)
}

// Stats handles GET /api/skus/:code/stats
func (h *CatalogHandler) Stats(c *gin.Context) {
	req := skuRequest{Code: c.Param("code")}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownSku) {
			utils.NotFoundResponse(c, "sku")
			return
		}
		utils.InternalErrorResponse(c, "failed to compute stats")
		return
	}
	if stats == nil {
		utils.NotFoundResponse(c, "price history")
		return
	}

	utils.SuccessResponse(c, stats)
}
