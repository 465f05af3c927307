package model

// CartLine 购物车中的一行商品
// JSON 字段名沿用页面 localStorage 中的格式
type CartLine struct {
	ProductID string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"price"` // minor currency unit
	Quantity  int32  `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity.
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Cart is an ordered sequence of lines, unique by ProductID.
type Cart []CartLine

// Index returns the position of the line for productID, or -1.
func (c Cart) Index(productID string) int {
	for i, l := range c {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// Total is the sum of all line subtotals.
func (c Cart) Total() int64 {
	var total int64
	for _, l := range c {
		total += l.Subtotal()
	}
	return total
}

// Count is the number of units in the cart, as shown on the badge.
func (c Cart) Count() int {
	n := 0
	for _, l := range c {
		n += int(l.Quantity)
	}
	return n
}

// Clone returns a copy that shares no memory with c.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}
