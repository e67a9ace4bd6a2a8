package domain

// Event bus topics
const (
	TopicOrderCreated       = "order:created"
	TopicOrderPaid          = "order:paid"
	TopicOrderStatusChanged = "order:status_changed"
	TopicUserRegistered     = "user:registered"
)

// OrderStatusEvent payload of TopicOrderStatusChanged
type OrderStatusEvent struct {
	OrderID int64
	From    OrderStatus
	To      OrderStatus
	Source  string
}
