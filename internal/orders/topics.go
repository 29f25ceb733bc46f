package orders

const (
	TopicOrderCreated     = "store.order.created"
	TopicOrderPaid        = "store.order.paid"
	TopicOrderFulfilled   = "store.order.fulfilled"
	TopicOrderReadyToShip = "store.order.ready_to_ship"
	TopicOrderShipped     = "store.order.shipped"
)

// Partition key = order_id so all events of one order keep their ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
