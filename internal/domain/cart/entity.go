// internal/domain/cart/entity.go
package cart

import (
	"github.com/shopspring/decimal"
)

// Line is one cart entry. A cart holds at most one line per (ProductID, Size).
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
	Slug      string          `json:"slug"`
}

// Key identifies a line
type Key struct {
	ProductID string
	Size      string
}

// Key returns the identity of the line
func (l Line) Key() Key {
	return Key{ProductID: l.ProductID, Size: l.Size}
}

// Total is price times quantity
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ItemCount is the sum of quantities
func ItemCount(lines []Line) int {
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}

// Subtotal is the sum of price times quantity over all lines
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

// itemRequest is the body of POST /cart and PUT /cart
type itemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}
