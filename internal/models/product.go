package models

import (
	"time"

	"github.com/google/uuid"
)

// Product represents one catalog entry. SKU uniqueness is case-insensitive:
// SKU keeps the display casing from the most recent write, SKUNorm is the
// lower-cased uniqueness key.
type Product struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SKU         string    `json:"sku" gorm:"type:varchar(100);not null;index"`
	SKUNorm     string    `json:"skuNorm" gorm:"column:sku_norm;type:varchar(100);not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null;index"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	Price       string    `json:"price" gorm:"type:numeric(10,2);not null"`
	Stock       int       `json:"stock" gorm:"not null;default:0"`
	Category    *string   `json:"category,omitempty" gorm:"type:varchar(100);index"`
	Country     *string   `json:"countryOfOrigin,omitempty" gorm:"column:country_of_origin;type:varchar(100)"`
	Active      bool      `json:"active" gorm:"not null;default:true;index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName returns the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// CreateProductRequest represents a request to create a new product
type CreateProductRequest struct {
	SKU         string  `json:"sku" binding:"required,max=100"`
	Name        string  `json:"name" binding:"required,max=255"`
	Description *string `json:"description,omitempty"`
	Price       string  `json:"price" binding:"required"`
	Stock       int     `json:"stock" binding:"gte=0"`
	Category    *string `json:"category,omitempty" binding:"omitempty,max=100"`
	Country     *string `json:"countryOfOrigin,omitempty" binding:"omitempty,max=100"`
	Active      *bool   `json:"active,omitempty"`
}

// UpdateProductRequest represents a partial product update. Nil fields are
// left untouched; each non-nil field is applied individually.
type UpdateProductRequest struct {
	SKU         *string `json:"sku,omitempty" binding:"omitempty,max=100"`
	Name        *string `json:"name,omitempty" binding:"omitempty,max=255"`
	Description *string `json:"description,omitempty"`
	Price       *string `json:"price,omitempty"`
	Stock       *int    `json:"stock,omitempty" binding:"omitempty,gte=0"`
	Category    *string `json:"category,omitempty" binding:"omitempty,max=100"`
	Country     *string `json:"countryOfOrigin,omitempty" binding:"omitempty,max=100"`
	Active      *bool   `json:"active,omitempty"`
}

// ListProductsRequest captures the product listing query parameters
type ListProductsRequest struct {
	Search   *string `form:"search"`
	Category *string `form:"category"`
	Country  *string `form:"country"`
	Active   *bool   `form:"active"`
	Page     int     `form:"page,default=1"`
	PageSize int     `form:"pageSize,default=20"`
}

// ProductListResponse is the paginated product listing payload
type ProductListResponse struct {
	Items      []Product `json:"items"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
}

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}
