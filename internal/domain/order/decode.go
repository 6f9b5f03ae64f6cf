package order

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/eid-storefront/internal/apiclient"
	"github.com/your-org/eid-storefront/internal/domain/cart"
)

// Decode converts a server order payload. The payload may be the order
// itself or wrap it under "order". Field names vary between backend versions.
func Decode(raw json.RawMessage) (*Order, error) {
	obj := apiclient.ParseObject(raw)
	if obj == nil {
		return nil, ErrInvalidPayload
	}
	if nested := obj.Object("order"); nested != nil {
		obj = nested
	}

	id := obj.String("id", "_id", "orderId", "orderNumber")
	if id == "" {
		return nil, ErrInvalidPayload
	}

	o := &Order{
		ID:            id,
		Items:         cart.NormalizeLines(apiclient.Items(obj.Raw("items", "orderItems", "products"))),
		Customer:      decodeCustomer(obj),
		PaymentMethod: obj.String("paymentMethod", "payment_method"),
		Status:        Status(normalizeStatus(obj.String("status", "orderStatus"))),
		Synced:        true,
	}
	if !o.Status.Valid() {
		o.Status = StatusPending
	}

	o.Subtotal = decimalField(obj, "subtotal", "subTotal")
	o.DeliveryCharge = decimalField(obj, "deliveryCharge", "delivery_charge", "shippingCost", "shipping")
	o.Total = decimalField(obj, "total", "totalAmount", "total_amount")
	if o.Subtotal.IsZero() {
		o.Subtotal = cart.Subtotal(o.Items)
	}
	if o.Total.IsZero() {
		o.Total = o.Subtotal.Add(o.DeliveryCharge)
	}

	if ts := obj.String("createdAt", "created_at", "date"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			o.CreatedAt = t
		}
	}
	return o, nil
}

// DecodeList converts any collection shape of orders, skipping entries that
// cannot be decoded
func DecodeList(raw json.RawMessage) []Order {
	items := apiclient.Items(raw)
	orders := make([]Order, 0, len(items))
	for _, item := range items {
		if o, err := Decode(item); err == nil {
			orders = append(orders, *o)
		}
	}
	return orders
}

func decodeCustomer(obj apiclient.Object) Customer {
	src := obj.Object("customer", "customerInfo", "shippingAddress")
	if src == nil {
		src = obj
	}
	c := Customer{
		Name:     src.String("name", "customerName", "fullName"),
		Email:    src.String("email", "customerEmail"),
		Phone:    src.String("phone", "customerPhone"),
		Address:  src.String("address", "street"),
		District: src.String("district", "city"),
		Notes:    src.String("notes"),
	}
	if c.Email == "" {
		c.Email = obj.String("email", "customerEmail")
	}
	return c
}

func decimalField(obj apiclient.Object, keys ...string) decimal.Decimal {
	s := obj.String(keys...)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func normalizeStatus(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
