package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus lifecycle state of an order
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderProcessing     OrderStatus = "processing"
	OrderShipped        OrderStatus = "shipped"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
	OrderReturned       OrderStatus = "returned"
)

// AllOrderStatuses in lifecycle order
var AllOrderStatuses = []OrderStatus{
	OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
	OrderOutForDelivery, OrderDelivered, OrderCancelled, OrderReturned,
}

// OpenOrderStatuses statuses polled by the shipment tracker
var OpenOrderStatuses = []OrderStatus{
	OrderPending, OrderConfirmed, OrderProcessing, OrderShipped, OrderOutForDelivery,
}

func (s OrderStatus) IsValid() bool {
	for _, v := range AllOrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the shipment tracker should still poll the order
func (s OrderStatus) IsOpen() bool {
	return s.IsValid() && !s.IsTerminal()
}

// IsTerminal delivered, cancelled and returned orders never change again via tracking
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderReturned
}

// Rank position along the delivery path. Cancelled and returned rank last.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderPending:
		return 0
	case OrderConfirmed:
		return 1
	case OrderProcessing:
		return 2
	case OrderShipped:
		return 3
	case OrderOutForDelivery:
		return 4
	case OrderDelivered:
		return 5
	case OrderCancelled, OrderReturned:
		return 6
	}
	return -1
}

const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"

	PaymentMethodCOD    = "cod"
	PaymentMethodOnline = "online"
)

type Order struct {
	ID               int64            `json:"id,string"`
	OrderNo          string           `gorm:"uniqueIndex;size:32" json:"order_no"`
	UserID           int64            `gorm:"index" json:"user_id,string"`
	User             *User            `json:"user,omitempty"`
	Status           OrderStatus      `gorm:"size:30;index;default:pending" json:"status"`
	PaymentStatus    string           `gorm:"size:20;index;default:pending" json:"payment_status"`
	PaymentMethod    string           `gorm:"size:20" json:"payment_method"`
	GatewayOrderID   string           `gorm:"size:64;index" json:"gateway_order_id"`
	GatewayPaymentID string           `gorm:"size:64" json:"gateway_payment_id"`
	Subtotal         decimal.Decimal  `gorm:"type:decimal(12,2)" json:"subtotal"`
	Discount         decimal.Decimal  `gorm:"type:decimal(12,2)" json:"discount"`
	ShippingFee      decimal.Decimal  `gorm:"type:decimal(12,2)" json:"shipping_fee"`
	Total            decimal.Decimal  `gorm:"type:decimal(12,2)" json:"total"`
	OfferCode        string           `gorm:"size:40" json:"offer_code"`
	OfferID          *int64           `json:"offer_id,string,omitempty"`
	ShipName         string           `gorm:"size:120" json:"ship_name"`
	ShipPhone        string           `gorm:"size:20" json:"ship_phone"`
	ShipLine1        string           `gorm:"size:255" json:"ship_line1"`
	ShipLine2        string           `gorm:"size:255" json:"ship_line2"`
	ShipCity         string           `gorm:"size:100" json:"ship_city"`
	ShipState        string           `gorm:"size:100" json:"ship_state"`
	ShipPincode      string           `gorm:"size:12" json:"ship_pincode"`
	ShipCountry      string           `gorm:"size:60" json:"ship_country"`
	Courier          string           `gorm:"size:80" json:"courier"`
	AWB              string           `gorm:"column:awb;size:64;index" json:"awb"`
	TrackingURL      string           `gorm:"size:1024" json:"tracking_url"`
	ShipmentStatus   string           `gorm:"size:80" json:"shipment_status"` // raw courier status
	LastTrackedAt    *time.Time       `json:"last_tracked_at"`
	Notes            string           `gorm:"size:500" json:"notes"`
	Items            []OrderItem      `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
	StatusLogs       []OrderStatusLog `gorm:"constraint:OnDelete:CASCADE" json:"status_logs,omitempty"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem line snapshot taken at checkout
type OrderItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id,string"`
	OrderID   int64           `gorm:"index" json:"order_id,string"`
	ProductID int64           `gorm:"index" json:"product_id,string"`
	SKU       string          `gorm:"size:64" json:"sku"`
	Name      string          `gorm:"size:200" json:"name"`
	SizeLabel string          `gorm:"size:40" json:"size_label"`
	ImageURL  string          `gorm:"size:1024" json:"image_url"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `gorm:"type:decimal(12,2)" json:"line_total"`
	CreatedAt time.Time       `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// OrderStatusLog records every status change
type OrderStatusLog struct {
	ID         int64       `gorm:"primaryKey;autoIncrement" json:"id,string"`
	OrderID    int64       `gorm:"index" json:"order_id,string"`
	FromStatus OrderStatus `gorm:"size:30" json:"from_status"`
	ToStatus   OrderStatus `gorm:"size:30" json:"to_status"`
	Source     string      `gorm:"size:20" json:"source"` // customer, admin, tracker, payment
	Note       string      `gorm:"size:500" json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (OrderStatusLog) TableName() string {
	return "order_status_logs"
}

const (
	SourceCustomer = "customer"
	SourceAdmin    = "admin"
	SourceTracker  = "tracker"
	SourcePayment  = "payment"
	SourceSystem   = "system"
)

// CartItem unique per user, product and size
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id,string"`
	UserID    int64     `gorm:"uniqueIndex:idx_cart_line" json:"user_id,string"`
	ProductID int64     `gorm:"uniqueIndex:idx_cart_line" json:"product_id,string"`
	SizeID    int64     `gorm:"uniqueIndex:idx_cart_line;default:0" json:"size_id,string"` // 0 when the product has no sizes
	Product   *Product  `json:"product,omitempty"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
