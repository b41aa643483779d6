package listing

// Ledger is the single authority for stock mutation. No other component writes
// Quantity or IsAvailable directly.
type Ledger struct{}

func NewLedger() Ledger { return Ledger{} }

// Decrement reduces available stock by n and derives availability. Stock never
// goes negative: n must not exceed the current quantity.
func (Ledger) Decrement(item *Item, n int) error {
	if item == nil {
		return ErrNotFound
	}
	if n <= 0 {
		return ErrInvalidQuantity
	}
	if !item.IsAvailable {
		return ErrNotAvailable
	}
	if n > item.Quantity {
		return ErrInsufficientQuantity
	}
	item.Quantity -= n
	item.IsAvailable = item.Quantity > 0
	return nil
}

// Close takes an item off the marketplace regardless of remaining stock.
func (Ledger) Close(item *Item) {
	if item == nil {
		return
	}
	item.IsAvailable = false
}
