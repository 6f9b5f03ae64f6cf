// internal/domain/order/entity.go
package order

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/eid-storefront/internal/domain/cart"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrEmptyOrder     = errors.New("order has no items")
	ErrInvalidPayload = errors.New("invalid order payload")
)

// Customer is the checkout contact and delivery address
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	District string `json:"district"`
	Notes    string `json:"notes,omitempty"`
}

// Order represents an order as the storefront sees it. Synced is false for
// orders that exist only locally.
type Order struct {
	ID             string          `json:"id"`
	Items          []cart.Line     `json:"items"`
	Customer       Customer        `json:"customer"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"paymentMethod"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	Synced         bool            `json:"synced"`
}

// ItemCount is the total quantity ordered
func (o *Order) ItemCount() int {
	return cart.ItemCount(o.Items)
}

// DeliveryRule computes delivery charges
type DeliveryRule struct {
	FreeThreshold decimal.Decimal
	FlatCharge    decimal.Decimal
}

// DefaultDeliveryRule is free delivery from 5000, 250 otherwise
var DefaultDeliveryRule = DeliveryRule{
	FreeThreshold: decimal.NewFromInt(5000),
	FlatCharge:    decimal.NewFromInt(250),
}

// Charge returns the delivery charge for subtotal
func (r DeliveryRule) Charge(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(r.FreeThreshold) {
		return decimal.Zero
	}
	return r.FlatCharge
}

// CreateRequest is a cart snapshot submitted at checkout
type CreateRequest struct {
	Items         []cart.Line     `json:"items"`
	Customer      Customer        `json:"customer"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	PaymentMethod string          `json:"paymentMethod"`
}

// newLocalID generates an order id whose leading digits encode the creation
// time, so local ids sort chronologically.
func newLocalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return "ORD-" + hex[:16]
}
