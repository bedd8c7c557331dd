package order

import (
	"github.com/shopspring/decimal"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
)

// distinctProductIDs returns the product ids referenced by lines, each once,
// in the order they were first requested.
func distinctProductIDs(lines []Line) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// indexProducts maps fetched products by id.
func indexProducts(products []product.Product) map[string]product.Product {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID
}

// checkExistence fails with a NotFoundError naming every requested id that
// was not fetched, in request order.
func checkExistence(ids []string, byID map[string]product.Product) error {
	if len(byID) >= len(ids) {
		return nil
	}
	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return apperr.NotFound("Product(s)", missing...)
}

// checkStock walks lines in submission order and fails on the first line whose
// product cannot cover the quantity requested so far for it. The running sum
// never exceeds the stock, so it cannot overflow.
func checkStock(lines []Line, byID map[string]product.Product) error {
	requested := make(map[string]int, len(byID))
	for _, l := range lines {
		p := byID[l.ProductID]
		if l.Quantity > p.Stock-requested[l.ProductID] {
			return insufficientStock(p)
		}
		requested[l.ProductID] += l.Quantity
	}
	return nil
}

// MaxTotal is the largest order total orders.total_price can hold.
var MaxTotal = decimal.RequireFromString("9999999999999999.99")

func checkTotal(total decimal.Decimal) error {
	if total.GreaterThan(MaxTotal) {
		return apperr.Conflict("Order total exceeds the maximum of " + MaxTotal.StringFixed(2))
	}
	return nil
}

// priceLines computes the order total and the line items with their unit
// price snapshots.
func priceLines(lines []Line, byID map[string]product.Product) (decimal.Decimal, []Item) {
	total := decimal.Zero
	items := make([]Item, len(lines))
	for i, l := range lines {
		price := byID[l.ProductID].Price
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		items[i] = Item{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
		}
	}
	return total, items
}

func insufficientStock(p product.Product) error {
	return apperr.Conflict("Insufficient stock for " + p.Name)
}
