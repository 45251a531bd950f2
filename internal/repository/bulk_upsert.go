package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
)

// UpsertResult reports how a batch split between fresh inserts and updates
// of existing rows.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// stagedProduct is the row shape loaded into the staging table. It carries
// no ID or timestamps; those are assigned by the merge statement.
type stagedProduct struct {
	SKU         string  `gorm:"column:sku"`
	SKUNorm     string  `gorm:"column:sku_norm"`
	Name        string  `gorm:"column:name"`
	Description *string `gorm:"column:description"`
	Price       string  `gorm:"column:price"`
	Stock       int     `gorm:"column:stock"`
	Category    *string `gorm:"column:category"`
	Country     *string `gorm:"column:country_of_origin"`
	Active      bool    `gorm:"column:active"`
}

const stagingTable = "temp_products"

// BulkUpsert merges a batch into products using staging-table ingestion and
// a single INSERT ... ON CONFLICT statement. Rows whose normalized SKU
// already exists are updated in place; xmax distinguishes fresh inserts from
// updates so both counts come back from one round trip.
//
// A batch containing two rows with the same normalized SKU makes the merge
// statement fail (ON CONFLICT cannot touch a row twice); callers retry such
// batches through FallbackUpsert.
func (r *ProductsRepository) BulkUpsert(ctx context.Context, batch []*models.Product) (UpsertResult, error) {
	var result UpsertResult
	if len(batch) == 0 {
		return result, nil
	}

	staged := make([]stagedProduct, 0, len(batch))
	for _, p := range batch {
		staged = append(staged, stagedProduct{
			SKU:         p.SKU,
			SKUNorm:     p.SKUNorm,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			Category:    p.Category,
			Country:     p.Country,
			Active:      p.Active,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`
			CREATE TEMP TABLE ` + stagingTable + ` (
				sku VARCHAR(100),
				sku_norm VARCHAR(100),
				name VARCHAR(255),
				description TEXT,
				price NUMERIC(10, 2),
				stock INTEGER,
				category VARCHAR(100),
				country_of_origin VARCHAR(100),
				active BOOLEAN
			) ON COMMIT DROP
		`).Error; err != nil {
			return err
		}

		if err := tx.Table(stagingTable).CreateInBatches(staged, 500).Error; err != nil {
			return err
		}

		var counts struct {
			InsertedCount int `gorm:"column:inserted_count"`
			UpdatedCount  int `gorm:"column:updated_count"`
		}
		if err := tx.Raw(`
			WITH upserted AS (
				INSERT INTO products (id, sku, sku_norm, name, description, price, stock,
				                      category, country_of_origin, active, created_at, updated_at)
				SELECT gen_random_uuid(), sku, sku_norm, name, description, price, stock,
				       category, country_of_origin, active, NOW(), NOW()
				FROM ` + stagingTable + `
				ON CONFLICT (sku_norm) DO UPDATE SET
					sku = EXCLUDED.sku,
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					price = EXCLUDED.price,
					stock = EXCLUDED.stock,
					category = EXCLUDED.category,
					country_of_origin = EXCLUDED.country_of_origin,
					active = EXCLUDED.active,
					updated_at = NOW()
				RETURNING (xmax = 0) AS inserted
			)
			SELECT
				COUNT(*) FILTER (WHERE inserted) AS inserted_count,
				COUNT(*) FILTER (WHERE NOT inserted) AS updated_count
			FROM upserted
		`).Scan(&counts).Error; err != nil {
			return err
		}

		result.Inserted = counts.InsertedCount
		result.Updated = counts.UpdatedCount
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

// FallbackUpsert merges a batch one row at a time inside a single
// transaction. Slower than BulkUpsert but immune to intra-batch duplicate
// SKUs: a later row simply updates what an earlier row inserted.
func (r *ProductsRepository) FallbackUpsert(ctx context.Context, batch []*models.Product) (UpsertResult, error) {
	var result UpsertResult
	if len(batch) == 0 {
		return result, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, p := range batch {
			var existing models.Product
			err := tx.Where("sku_norm = ?", p.SKUNorm).First(&existing).Error
			switch {
			case err == nil:
				if err := tx.Model(&models.Product{}).
					Where("id = ?", existing.ID).
					Updates(map[string]interface{}{
						"sku":               p.SKU,
						"name":              p.Name,
						"description":       p.Description,
						"price":             p.Price,
						"stock":             p.Stock,
						"category":          p.Category,
						"country_of_origin": p.Country,
						"active":            p.Active,
						"updated_at":        now,
					}).Error; err != nil {
					return err
				}
				result.Updated++
			case err == gorm.ErrRecordNotFound:
				row := *p
				row.ID = uuid.New()
				row.CreatedAt = now
				row.UpdatedAt = now
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				result.Inserted++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}
