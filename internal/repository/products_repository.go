package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
)

type ProductsRepository struct {
	db *gorm.DB
}

func NewProductsRepository(db *gorm.DB) *ProductsRepository {
	return &ProductsRepository{db: db}
}

// Product CRUD Operations

// CreateProduct creates a new product
func (r *ProductsRepository) CreateProduct(product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.CreatedAt = time.Now()
	product.UpdatedAt = time.Now()
	return r.db.Create(product).Error
}

// GetProductByID retrieves a product by ID
func (r *ProductsRepository) GetProductByID(productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// SKUConflicts reports whether another product already claims the SKU,
// ignoring case. excludeID skips the product being updated.
func (r *ProductsRepository) SKUConflicts(sku string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := r.db.Model(&models.Product{}).Where("sku_norm = LOWER(?)", sku)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetProducts retrieves products with filters and pagination
func (r *ProductsRepository) GetProducts(req *models.ListProductsRequest) ([]models.Product, int64, error) {
	var products []models.Product
	var total int64

	query := r.db.Model(&models.Product{})

	if req.Search != nil && *req.Search != "" {
		pattern := "%" + *req.Search + "%"
		query = query.Where("name ILIKE ? OR sku ILIKE ?", pattern, pattern)
	}
	if req.Category != nil && *req.Category != "" {
		query = query.Where("category = ?", *req.Category)
	}
	if req.Country != nil && *req.Country != "" {
		query = query.Where("country_of_origin = ?", *req.Country)
	}
	if req.Active != nil {
		query = query.Where("active = ?", *req.Active)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.PageSize).Find(&products).Error; err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// UpdateProduct applies a partial update to a product
func (r *ProductsRepository) UpdateProduct(productID uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := r.db.Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteProduct deletes a product by ID
func (r *ProductsRepository) DeleteProduct(productID uuid.UUID) error {
	result := r.db.Where("id = ?", productID).Delete(&models.Product{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountProducts returns the total number of products
func (r *ProductsRepository) CountProducts() (int64, error) {
	var count int64
	err := r.db.Model(&models.Product{}).Count(&count).Error
	return count, err
}

// DeleteAllProducts removes every product in fixed-size batches so the
// deletion never holds a single long-running transaction over the whole
// table. Returns the total number of rows removed.
func (r *ProductsRepository) DeleteAllProducts(batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for {
		result := r.db.Exec(`
			DELETE FROM products
			WHERE id IN (SELECT id FROM products LIMIT ?)
		`, batchSize)
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if result.RowsAffected < int64(batchSize) {
			return total, nil
		}
	}
}
