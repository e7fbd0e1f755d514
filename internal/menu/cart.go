package menu

// UpdateCart applies a quantity delta for item to the cart and returns the
// resulting cart. The input cart is never mutated.
//
// A positive delta inserts or increments the entry for item.ID and replaces
// the stored item with the latest value, so display fields stay current when
// the same id is added again. A negative delta decrements an existing entry
// and deletes it when the quantity drops to zero or below; decrementing an
// absent entry is a no-op. A zero delta is a no-op.
//
// The returned cart never contains an entry with quantity <= 0.
func UpdateCart(cart Cart, item MenuItem, delta int) Cart {
	next := make(Cart, len(cart)+1)
	for id, ci := range cart {
		next[id] = ci
	}

	switch {
	case delta > 0:
		qty := delta
		if existing, ok := next[item.ID]; ok {
			qty += existing.Quantity
		}
		next[item.ID] = CartItem{Item: item, Quantity: qty}

	case delta < 0:
		existing, ok := next[item.ID]
		if !ok {
			return next
		}
		qty := existing.Quantity + delta
		if qty <= 0 {
			delete(next, item.ID)
		} else {
			existing.Quantity = qty
			next[item.ID] = existing
		}
	}

	return next
}
