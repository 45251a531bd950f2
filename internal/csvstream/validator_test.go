package csvstream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRow() map[string]string {
	return map[string]string{
		"SKU":   "ABC-123",
		"Name":  "Widget",
		"Price": "9.99",
		"Stock": "5",
	}
}

func TestValidateRowHappyPath(t *testing.T) {
	p, rowErr := ValidateRow(validRow(), 2)
	require.Nil(t, rowErr)
	require.NotNil(t, p)
	assert.Equal(t, "ABC-123", p.SKU)
	assert.Equal(t, "abc-123", p.SKUNorm)
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, "9.99", p.Price)
	assert.Equal(t, 5, p.Stock)
	assert.Nil(t, p.Category)
	assert.True(t, p.Active)
}

func TestValidateRowMissingFieldsAggregated(t *testing.T) {
	row := map[string]string{"SKU": "  ", "Name": "Widget"}
	p, rowErr := ValidateRow(row, 7)
	assert.Nil(t, p)
	require.NotNil(t, rowErr)
	assert.Equal(t, 7, rowErr.Row)
	assert.Equal(t,
		"Missing required field 'SKU'; Missing required field 'Price'; Missing required field 'Stock'",
		rowErr.Message)
}

func TestValidateRowBadPriceAndStockAggregated(t *testing.T) {
	row := validRow()
	row["Price"] = "abc"
	row["Stock"] = "many"
	p, rowErr := ValidateRow(row, 3)
	assert.Nil(t, p)
	require.NotNil(t, rowErr)
	assert.Equal(t, "Invalid price value: abc; Invalid stock value: many", rowErr.Message)
}

func TestValidateRowNegativeValues(t *testing.T) {
	row := validRow()
	row["Price"] = "-1.00"
	row["Stock"] = "-3"
	_, rowErr := ValidateRow(row, 4)
	require.NotNil(t, rowErr)
	assert.Equal(t, "Price cannot be negative; Stock cannot be negative", rowErr.Message)
}

func TestValidateRowCurrencyFormatting(t *testing.T) {
	row := validRow()
	row["Price"] = " $1,299.90 "
	p, rowErr := ValidateRow(row, 2)
	require.Nil(t, rowErr)
	assert.Equal(t, "1299.90", p.Price)
}

func TestValidateRowTruncation(t *testing.T) {
	row := validRow()
	row["Name"] = strings.Repeat("n", 300)
	row["Category"] = strings.Repeat("c", 150)
	row["Country of Origin"] = "  "
	p, rowErr := ValidateRow(row, 2)
	require.Nil(t, rowErr)
	assert.Len(t, p.Name, 255)
	require.NotNil(t, p.Category)
	assert.Len(t, *p.Category, 100)
	assert.Nil(t, p.Country)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		cents   int64
		wantErr bool
	}{
		{"9.99", 999, false},
		{"10", 1000, false},
		{"10.5", 1050, false},
		{"12.345", 1235, false},
		{"12.344", 1234, false},
		{"$1,299.90", 129990, false},
		{".50", 50, false},
		{"-2.25", -225, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.2.3", 0, true},
		{"$", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cents, err := ParsePrice(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cents, cents)
		})
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "9.99", FormatPrice(999))
	assert.Equal(t, "10.00", FormatPrice(1000))
	assert.Equal(t, "0.05", FormatPrice(5))
	assert.Equal(t, "-2.25", FormatPrice(-225))
}
