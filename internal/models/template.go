package models

// TemplateColumn describes one column of the import file format.
type TemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// ImportTemplate is the downloadable description of the expected file.
type ImportTemplate struct {
	Columns []TemplateColumn `json:"columns"`
}

// CatalogImportTemplate returns the column layout accepted by the importer.
func CatalogImportTemplate() ImportTemplate {
	return ImportTemplate{
		Columns: []TemplateColumn{
			{Name: "SKU", Description: "Unique product identifier, matched case-insensitively on re-import", Required: true, Type: "string", Example: "WIDGET-001"},
			{Name: "Name", Description: "Product display name, truncated to 255 characters", Required: true, Type: "string", Example: "Blue Widget"},
			{Name: "Price", Description: "Unit price; currency symbols and thousands separators are stripped", Required: true, Type: "decimal", Example: "19.99"},
			{Name: "Stock", Description: "Units on hand, must be a non-negative integer", Required: true, Type: "integer", Example: "150"},
			{Name: "Description", Description: "Free-form product description", Required: false, Type: "string", Example: "A very blue widget"},
			{Name: "Category", Description: "Product category, truncated to 100 characters", Required: false, Type: "string", Example: "Widgets"},
			{Name: "Country of Origin", Description: "Country of origin, truncated to 100 characters", Required: false, Type: "string", Example: "Germany"},
		},
	}
}
