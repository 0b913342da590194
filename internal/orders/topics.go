package orders

const (
	TopicOrderCreated       = "orders.created"
	TopicOrderStatusChanged = "orders.status-changed"
	TopicCatalogChanges     = "catalog.changes"
)

// Partition key = paymentId so every event of one order lands on one partition.
func PartitionKey(paymentID string) []byte { return []byte(paymentID) }
