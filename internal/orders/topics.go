package orders

const (
	// All lifecycle events for one order share a partition key so consumers
	// observe them in order.
	TopicOrderEvents = "checkout.order.events"
)

func PartitionKey(orderID string) []byte { return []byte(orderID) }
