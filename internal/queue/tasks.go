package queue

// Task names routed by the worker.
const (
	TaskImportProcess     = "import.process"
	TaskWebhookDeliver    = "webhook.deliver"
	TaskProductsDeleteAll = "products.delete_all"
)

// ImportTask tells the worker to process an uploaded file.
type ImportTask struct {
	JobID    string `json:"jobId"`
	FilePath string `json:"filePath"`
}

// WebhookDeliveryTask tells the worker to attempt one webhook delivery.
type WebhookDeliveryTask struct {
	DeliveryID string `json:"deliveryId"`
}

// DeleteAllTask tells the worker to purge the product catalog in batches.
type DeleteAllTask struct {
	BatchSize int `json:"batchSize"`
}
