package csvstream

import "catalog-import-service/internal/models"

// Batcher accumulates validated products into fixed-size batches. The final
// partial batch is obtained with Flush.
type Batcher struct {
	size  int
	items []*models.Product
}

func NewBatcher(size int) *Batcher {
	if size <= 0 {
		size = 1
	}
	return &Batcher{size: size, items: make([]*models.Product, 0, size)}
}

// Add appends a product and, when the batch is full, returns it and starts a
// new one. Returns nil while the batch is still filling.
func (b *Batcher) Add(p *models.Product) []*models.Product {
	b.items = append(b.items, p)
	if len(b.items) < b.size {
		return nil
	}
	full := b.items
	b.items = make([]*models.Product, 0, b.size)
	return full
}

// Flush returns the trailing partial batch, or nil when nothing is pending.
func (b *Batcher) Flush() []*models.Product {
	if len(b.items) == 0 {
		return nil
	}
	out := b.items
	b.items = nil
	return out
}
