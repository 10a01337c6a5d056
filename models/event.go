package models

// Event names shared by the feed server hub and the push adapters.
const (
	EventNewOrder           = "new_order"
	EventOrderStatusChanged = "order_status_changed"
	EventRefreshHint        = "refresh_hint"

	// display side, pushed to UI clients
	EventAlert         = "alert"
	EventOrdersChanged = "orders_changed"
)

type FeedEventType string

const (
	FeedNewOrder      FeedEventType = EventNewOrder
	FeedStatusChanged FeedEventType = EventOrderStatusChanged
	FeedRefreshHint   FeedEventType = EventRefreshHint
)

// StatusChange is the payload of an order_status_changed message.
type StatusChange struct {
	ID     uint   `json:"id"`
	Status Status `json:"status"`
}

// FeedEvent is a decoded push event from the order feed.
type FeedEvent struct {
	Type    FeedEventType
	Order   *Order
	OrderID uint
	Status  Status
}

func NewOrderEvent(o Order) FeedEvent {
	return FeedEvent{Type: FeedNewOrder, Order: &o, OrderID: o.ID, Status: o.Status}
}

func StatusChangedEvent(id uint, status Status) FeedEvent {
	return FeedEvent{Type: FeedStatusChanged, OrderID: id, Status: status}
}

func RefreshHintEvent() FeedEvent {
	return FeedEvent{Type: FeedRefreshHint}
}
