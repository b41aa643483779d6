package pickup

import "time"

// RequestApprovedEvent is emitted after the approval payment clears.
type RequestApprovedEvent struct {
	RequestID   string
	RequesterID string
	Amount      string
	Reference   string
	OccurredAt  time.Time
}

func (RequestApprovedEvent) EventName() string { return "pickup.approved" }

func NewRequestApprovedEvent(r *Request, reference string) RequestApprovedEvent {
	return RequestApprovedEvent{
		RequestID:   r.ID,
		RequesterID: r.RequesterID,
		Amount:      r.Total().String(),
		Reference:   reference,
		OccurredAt:  time.Now().UTC(),
	}
}

// RequestPublishedEvent is emitted once the marketplace listing is live.
type RequestPublishedEvent struct {
	RequestID    string
	RequesterID  string
	ItemID       string
	MaterialType string
	OccurredAt   time.Time
}

func (RequestPublishedEvent) EventName() string { return "pickup.published" }

func NewRequestPublishedEvent(r *Request, itemID string) RequestPublishedEvent {
	return RequestPublishedEvent{
		RequestID:    r.ID,
		RequesterID:  r.RequesterID,
		ItemID:       itemID,
		MaterialType: r.MaterialType,
		OccurredAt:   time.Now().UTC(),
	}
}

// RequestRejectedEvent is emitted when an admin rejects a pending request.
type RequestRejectedEvent struct {
	RequestID   string
	RequesterID string
	Notes       string
	OccurredAt  time.Time
}

func (RequestRejectedEvent) EventName() string { return "pickup.rejected" }

func NewRequestRejectedEvent(r *Request) RequestRejectedEvent {
	return RequestRejectedEvent{
		RequestID:   r.ID,
		RequesterID: r.RequesterID,
		Notes:       r.AdminNotes,
		OccurredAt:  time.Now().UTC(),
	}
}
