package csvstream

import (
	"fmt"
	"strconv"
	"strings"

	"catalog-import-service/internal/models"
)

const (
	maxNameLength     = 255
	maxOptionalLength = 100
)

// requiredColumns must all carry a non-blank value for a row to import.
var requiredColumns = []string{"SKU", "Name", "Price", "Stock"}

// ValidateRow checks one raw record and either returns the normalized
// product ready for upsert, or a single row error aggregating every problem
// found in the row. Exactly one of the two results is non-nil.
func ValidateRow(row map[string]string, line int) (*models.Product, *models.ImportRowError) {
	var problems []string

	for _, col := range requiredColumns {
		if strings.TrimSpace(row[col]) == "" {
			problems = append(problems, fmt.Sprintf("Missing required field '%s'", col))
		}
	}
	if len(problems) > 0 {
		return nil, &models.ImportRowError{Row: line, Message: strings.Join(problems, "; ")}
	}

	priceCents, err := ParsePrice(row["Price"])
	if err != nil {
		problems = append(problems, fmt.Sprintf("Invalid price value: %s", strings.TrimSpace(row["Price"])))
	} else if priceCents < 0 {
		problems = append(problems, "Price cannot be negative")
	}

	stock, err := strconv.Atoi(strings.TrimSpace(row["Stock"]))
	if err != nil {
		problems = append(problems, fmt.Sprintf("Invalid stock value: %s", strings.TrimSpace(row["Stock"])))
	} else if stock < 0 {
		problems = append(problems, "Stock cannot be negative")
	}

	if len(problems) > 0 {
		return nil, &models.ImportRowError{Row: line, Message: strings.Join(problems, "; ")}
	}

	sku := strings.TrimSpace(row["SKU"])
	product := &models.Product{
		SKU:         sku,
		SKUNorm:     strings.ToLower(sku),
		Name:        truncate(strings.TrimSpace(row["Name"]), maxNameLength),
		Description: optionalField(row["Description"], 0),
		Price:       FormatPrice(priceCents),
		Stock:       stock,
		Category:    optionalField(row["Category"], maxOptionalLength),
		Country:     optionalField(row["Country of Origin"], maxOptionalLength),
		Active:      true,
	}
	return product, nil
}

// ParsePrice converts a raw price string to integer cents. Currency symbols
// and thousands separators are stripped; a third decimal digit rounds
// half-up. Negative amounts parse successfully so the caller can reject them
// with a specific message.
func ParsePrice(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("malformed price %q", raw)
	}

	var units int64
	if intPart != "" {
		n, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed price %q", raw)
		}
		units = n
	}

	var cents int64
	if fracPart != "" {
		for _, r := range fracPart {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("malformed price %q", raw)
			}
		}
		switch {
		case len(fracPart) == 1:
			cents = int64(fracPart[0]-'0') * 10
		default:
			cents = int64(fracPart[0]-'0')*10 + int64(fracPart[1]-'0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				cents++
			}
		}
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}

// FormatPrice renders integer cents as a fixed two-decimal string for the
// numeric(10,2) column.
func FormatPrice(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// optionalField trims an optional value, truncates it when maxLen is
// positive, and maps blank to nil.
func optionalField(raw string, maxLen int) *string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if maxLen > 0 {
		v = truncate(v, maxLen)
	}
	return &v
}

// truncate shortens a string to at most n characters, counting runes so a
// multi-byte value is never cut mid-character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
