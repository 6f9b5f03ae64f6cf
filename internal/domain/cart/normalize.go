package cart

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/your-org/eid-storefront/internal/apiclient"
)

// NormalizeLines converts server cart items into lines. Each field is read
// from the item itself or from its nested product object. Items carrying a
// quantity of zero or less are treated as removed.
func NormalizeLines(items []json.RawMessage) []Line {
	lines := make([]Line, 0, len(items))
	for _, raw := range items {
		if line, ok := NormalizeLine(raw); ok {
			lines = append(lines, line)
		}
	}
	return dedupe(lines)
}

// NormalizeLine converts one server item. It reports false for non-objects
// and removed items.
func NormalizeLine(raw json.RawMessage) (Line, bool) {
	item := apiclient.ParseObject(raw)
	if item == nil {
		return Line{}, false
	}
	product := item.Object("product")

	line := Line{
		ProductID: item.String("productId", "product_id"),
		Name:      item.String("name", "title"),
		Size:      item.String("size", "selectedSize"),
		Image:     imageOf(item),
		Slug:      item.String("slug"),
		Quantity:  1,
	}

	if line.ProductID == "" {
		if product != nil {
			line.ProductID = product.String("_id", "id")
		} else {
			// "product" may be a bare id
			line.ProductID = item.String("product")
		}
	}
	if line.ProductID == "" {
		line.ProductID = item.String("_id", "id")
	}
	if line.Name == "" && product != nil {
		line.Name = product.String("name", "title")
	}
	if line.Slug == "" && product != nil {
		line.Slug = product.String("slug")
	}
	if line.Image == "" && product != nil {
		line.Image = imageOf(product)
	}

	price := item.String("price")
	if price == "" && product != nil {
		price = product.String("price")
	}
	line.Price = parseDecimal(price)

	if q := item.String("quantity", "qty"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			f, ferr := strconv.ParseFloat(q, 64)
			if ferr != nil {
				n = 1
			} else {
				n = int(f)
			}
		}
		if n <= 0 {
			return Line{}, false
		}
		line.Quantity = n
	}

	return line, true
}

func imageOf(obj apiclient.Object) string {
	if s := obj.String("image", "imageUrl", "thumbnail"); s != "" {
		return s
	}
	images := apiclient.Items(obj.Raw("images"))
	if len(images) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(images[0], &s); err == nil {
		return s
	}
	if first := apiclient.ParseObject(images[0]); first != nil {
		return first.String("url", "src")
	}
	return ""
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
