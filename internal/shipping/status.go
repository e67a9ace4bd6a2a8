package shipping

import (
	"strings"

	"github.com/goldleaf/storefront/internal/domain"
)

var courierStatuses = map[string]domain.OrderStatus{
	"PICKED UP":                  domain.OrderShipped,
	"PICKUP COMPLETE":            domain.OrderShipped,
	"SHIPPED":                    domain.OrderShipped,
	"IN TRANSIT":                 domain.OrderShipped,
	"REACHED AT DESTINATION HUB": domain.OrderShipped,
	"OUT FOR DELIVERY":           domain.OrderOutForDelivery,
	"DELIVERED":                  domain.OrderDelivered,
	"RTO INITIATED":              domain.OrderReturned,
	"RTO IN TRANSIT":             domain.OrderReturned,
	"RTO DELIVERED":              domain.OrderReturned,
	"CANCELED":                   domain.OrderCancelled,
	"CANCELLED":                  domain.OrderCancelled,
}

// NormalizeStatus upper-cases a courier status and collapses separators
func NormalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// MapStatus translates a courier status into an order status.
// ok is false for statuses that carry no order state change (e.g. "PICKUP SCHEDULED").
func MapStatus(raw string) (domain.OrderStatus, bool) {
	st, ok := courierStatuses[NormalizeStatus(raw)]
	return st, ok
}

// IsForward reports whether moving from -> to advances the order along its delivery path
func IsForward(from, to domain.OrderStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	return to.Rank() > from.Rank()
}
