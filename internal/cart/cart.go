package cart

import (
	"fmt"

	"github.com/rvmonterde003/kashpos/internal/domain"
	"github.com/rvmonterde003/kashpos/internal/store"
)

// Line pairs a product snapshot with the requested quantity.
type Line struct {
	Product domain.Product
	Qty     int
}

// Cart is an explicit value object holding the in-progress sale. It is
// passed into checkout rather than living in hidden session state, and it
// keeps one line per product so reservations cannot be double counted.
type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// Add reserves qty units of the product. The availability check accounts
// for units already reserved for the same product in this cart: adding 3
// then 3 more of a product with stock 5 fails on the second call.
func (c *Cart) Add(product domain.Product, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidCheckout)
	}
	if product.ID == "" {
		return fmt.Errorf("%w: product id required", store.ErrInvalidCheckout)
	}
	reserved := c.Reserved(product.ID)
	if reserved+qty > product.StockQty {
		return fmt.Errorf("%w: %s has %d left, %d requested", store.ErrInsufficientStock, product.Name, product.StockQty-reserved, qty)
	}

	for i := range c.lines {
		if c.lines[i].Product.ID == product.ID {
			c.lines[i].Qty += qty
			return nil
		}
	}
	c.lines = append(c.lines, Line{Product: product, Qty: qty})
	return nil
}

// SetQty replaces the reserved quantity for a product already in the cart.
func (c *Cart) SetQty(productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidCheckout)
	}
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			if qty > c.lines[i].Product.StockQty {
				return fmt.Errorf("%w: %s has %d left, %d requested", store.ErrInsufficientStock, c.lines[i].Product.Name, c.lines[i].Product.StockQty, qty)
			}
			c.lines[i].Qty = qty
			return nil
		}
	}
	return store.ErrNotFound
}

func (c *Cart) Remove(productID string) {
	kept := c.lines[:0]
	for _, line := range c.lines {
		if line.Product.ID != productID {
			kept = append(kept, line)
		}
	}
	c.lines = kept
}

// Reserved returns the quantity of the product already held by this cart.
func (c *Cart) Reserved(productID string) int {
	total := 0
	for _, line := range c.lines {
		if line.Product.ID == productID {
			total += line.Qty
		}
	}
	return total
}

func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) TotalCents() int64 {
	total := int64(0)
	for _, line := range c.lines {
		total += int64(line.Qty) * line.Product.PriceCents
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Clear() {
	c.lines = nil
}
