package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/csvstream"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/queue"
	"catalog-import-service/internal/repository"
)

// EventDispatcher fans an event out to subscribed webhooks.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, data map[string]interface{}) error
}

type ProductsHandler struct {
	repo   *repository.ProductsRepository
	events EventDispatcher
	tasks  Enqueuer
	cfg    *config.Config
	log    *logrus.Logger
}

func NewProductsHandler(repo *repository.ProductsRepository, events EventDispatcher, tasks Enqueuer, cfg *config.Config, log *logrus.Logger) *ProductsHandler {
	return &ProductsHandler{repo: repo, events: events, tasks: tasks, cfg: cfg, log: log}
}

// GetProducts lists products with filters and pagination
// GET /api/products
func (h *ProductsHandler) GetProducts(c *gin.Context) {
	var req models.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: err.Error(),
			},
		})
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	products, total, err := h.repo.GetProducts(&req)
	if err != nil {
		h.serverError(c, "Failed to list products", err)
		return
	}

	totalPages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	c.JSON(http.StatusOK, models.ProductListResponse{
		Items:      products,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	})
}

// GetProduct retrieves one product
// GET /api/products/:id
func (h *ProductsHandler) GetProduct(c *gin.Context) {
	productID, ok := h.parseID(c)
	if !ok {
		return
	}

	product, err := h.repo.GetProductByID(productID)
	if err != nil {
		h.notFound(c, "Product not found")
		return
	}
	c.JSON(http.StatusOK, product)
}

// CreateProduct creates a new product
// POST /api/products
func (h *ProductsHandler) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	priceCents, err := csvstream.ParsePrice(req.Price)
	if err != nil || priceCents < 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: "Price must be a non-negative decimal",
				Field:   "price",
			},
		})
		return
	}

	conflict, err := h.repo.SKUConflicts(req.SKU, nil)
	if err != nil {
		h.serverError(c, "Failed to check SKU uniqueness", err)
		return
	}
	if conflict {
		h.skuConflict(c, req.SKU)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	product := &models.Product{
		SKU:         req.SKU,
		SKUNorm:     strings.ToLower(req.SKU),
		Name:        req.Name,
		Description: req.Description,
		Price:       csvstream.FormatPrice(priceCents),
		Stock:       req.Stock,
		Category:    req.Category,
		Country:     req.Country,
		Active:      active,
	}
	if err := h.repo.CreateProduct(product); err != nil {
		h.serverError(c, "Failed to create product", err)
		return
	}

	h.dispatch(c, models.EventProductCreated, map[string]interface{}{
		"id":  product.ID.String(),
		"sku": product.SKU,
	})
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct applies a partial update
// PUT /api/products/:id
func (h *ProductsHandler) UpdateProduct(c *gin.Context) {
	productID, ok := h.parseID(c)
	if !ok {
		return
	}

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "VALIDATION_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	if _, err := h.repo.GetProductByID(productID); err != nil {
		h.notFound(c, "Product not found")
		return
	}

	updates := map[string]interface{}{}
	if req.SKU != nil {
		conflict, err := h.repo.SKUConflicts(*req.SKU, &productID)
		if err != nil {
			h.serverError(c, "Failed to check SKU uniqueness", err)
			return
		}
		if conflict {
			h.skuConflict(c, *req.SKU)
			return
		}
		updates["sku"] = *req.SKU
		updates["sku_norm"] = strings.ToLower(*req.SKU)
	}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		priceCents, err := csvstream.ParsePrice(*req.Price)
		if err != nil || priceCents < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "VALIDATION_ERROR",
					Message: "Price must be a non-negative decimal",
					Field:   "price",
				},
			})
			return
		}
		updates["price"] = csvstream.FormatPrice(priceCents)
	}
	if req.Stock != nil {
		updates["stock"] = *req.Stock
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Country != nil {
		updates["country_of_origin"] = *req.Country
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := h.repo.UpdateProduct(productID, updates); err != nil {
			h.serverError(c, "Failed to update product", err)
			return
		}
	}

	product, err := h.repo.GetProductByID(productID)
	if err != nil {
		h.serverError(c, "Failed to reload product", err)
		return
	}

	h.dispatch(c, models.EventProductUpdated, map[string]interface{}{
		"id":  product.ID.String(),
		"sku": product.SKU,
	})
	c.JSON(http.StatusOK, product)
}

// DeleteProduct removes one product
// DELETE /api/products/:id
func (h *ProductsHandler) DeleteProduct(c *gin.Context) {
	productID, ok := h.parseID(c)
	if !ok {
		return
	}

	product, err := h.repo.GetProductByID(productID)
	if err != nil {
		h.notFound(c, "Product not found")
		return
	}

	if err := h.repo.DeleteProduct(productID); err != nil {
		if err == gorm.ErrRecordNotFound {
			h.notFound(c, "Product not found")
			return
		}
		h.serverError(c, "Failed to delete product", err)
		return
	}

	h.dispatch(c, models.EventProductDeleted, map[string]interface{}{
		"id":  product.ID.String(),
		"sku": product.SKU,
	})
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// DeleteAllProducts purges the catalog in the background. Guarded by a typed
// confirmation string so no UI button can trigger it by accident.
// POST /api/products/delete_all?confirmation=DELETE%20ALL
func (h *ProductsHandler) DeleteAllProducts(c *gin.Context) {
	if c.Query("confirmation") != "DELETE ALL" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "CONFIRMATION_REQUIRED",
				Message: "Confirmation string must be 'DELETE ALL'",
			},
		})
		return
	}

	count, err := h.repo.CountProducts()
	if err != nil {
		h.serverError(c, "Failed to count products", err)
		return
	}

	if err := h.tasks.Enqueue(c.Request.Context(), queue.TaskProductsDeleteAll, queue.DeleteAllTask{
		BatchSize: h.cfg.DeleteBatchSize,
	}); err != nil {
		h.serverError(c, "Failed to enqueue deletion", err)
		return
	}

	h.log.WithField("products", count).Warn("Catalog purge enqueued")
	c.JSON(http.StatusAccepted, gin.H{
		"message":       "Deletion started in background",
		"totalProducts": count,
	})
}

func (h *ProductsHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_ID",
				Message: "Product ID must be a valid UUID",
			},
		})
		return uuid.Nil, false
	}
	return productID, true
}

func (h *ProductsHandler) skuConflict(c *gin.Context, sku string) {
	c.JSON(http.StatusConflict, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "DUPLICATE_SKU",
			Message: "A product with SKU '" + sku + "' already exists",
			Field:   "sku",
		},
	})
}

func (h *ProductsHandler) dispatch(c *gin.Context, eventType string, data map[string]interface{}) {
	if h.events == nil {
		return
	}
	if err := h.events.Dispatch(c.Request.Context(), eventType, data); err != nil {
		h.log.WithError(err).WithField("event", eventType).Warn("Failed to dispatch webhook event")
	}
}

func (h *ProductsHandler) notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "NOT_FOUND",
			Message: message,
		},
	})
}

func (h *ProductsHandler) serverError(c *gin.Context, message string, err error) {
	h.log.WithError(err).Error(message)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "INTERNAL_ERROR",
			Message: message,
		},
	})
}
