package purchase

import "time"

// CompletedEvent is emitted after a purchase saga commits: payment cleared and
// inventory decremented. Handlers notify the buyer and the original seller.
type CompletedEvent struct {
	PurchaseID  string
	ItemID      string
	BuyerID     string
	SellerID    string
	Quantity    int
	TotalAmount string
	OccurredAt  time.Time
}

func (CompletedEvent) EventName() string { return "purchase.completed" }

func NewCompletedEvent(p *Purchase, sellerID string) CompletedEvent {
	return CompletedEvent{
		PurchaseID:  p.ID,
		ItemID:      p.ItemID,
		BuyerID:     p.BuyerID,
		SellerID:    sellerID,
		Quantity:    p.Quantity,
		TotalAmount: p.TotalAmount.String(),
		OccurredAt:  time.Now().UTC(),
	}
}
