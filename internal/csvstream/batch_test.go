package csvstream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-import-service/internal/models"
)

func TestBatcherFixedSizeBatches(t *testing.T) {
	b := NewBatcher(2)

	var batches [][]*models.Product
	for i := 0; i < 5; i++ {
		if full := b.Add(&models.Product{SKU: fmt.Sprintf("S-%d", i)}); full != nil {
			batches = append(batches, full)
		}
	}
	if last := b.Flush(); last != nil {
		batches = append(batches, last)
	}

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
	assert.Equal(t, "S-4", batches[2][0].SKU)
}

func TestBatcherFlushEmpty(t *testing.T) {
	b := NewBatcher(10)
	assert.Nil(t, b.Flush())
}

func TestBatcherExactMultiple(t *testing.T) {
	b := NewBatcher(2)
	assert.Nil(t, b.Add(&models.Product{SKU: "A"}))
	assert.NotNil(t, b.Add(&models.Product{SKU: "B"}))
	assert.Nil(t, b.Flush())
}
