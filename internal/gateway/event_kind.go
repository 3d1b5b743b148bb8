package gateway

// Channel names used by the surrounding application.
const (
	ChannelInventory = "inventory"
	ChannelOrders    = "orders"
	ChannelFinance   = "finance"
	ChannelSystem    = "system"
	ChannelCache     = "cache"
)

// EventKind enumerates the internal event types the business layer emits.
// Kinds map onto channels through an exhaustive switch so adding a kind
// without routing it is caught immediately, instead of silently comparing
// raw strings.
type EventKind string

const (
	EventInventoryChanged EventKind = "inventory.changed"
	EventOrderStatus      EventKind = "order.status"
	EventFinancePosting   EventKind = "finance.posting"
	EventSystemNotice     EventKind = "system.notice"
	EventCacheInvalidate  EventKind = "cache.invalidate"
)

// IsValid reports whether the kind is part of the closed enumeration.
func (k EventKind) IsValid() bool {
	return k.Channel() != ""
}

// Channel returns the channel an event kind is delivered on, or the empty
// string for a kind outside the enumeration.
func (k EventKind) Channel() string {
	switch k {
	case EventInventoryChanged:
		return ChannelInventory
	case EventOrderStatus:
		return ChannelOrders
	case EventFinancePosting:
		return ChannelFinance
	case EventSystemNotice:
		return ChannelSystem
	case EventCacheInvalidate:
		return ChannelCache
	default:
		return ""
	}
}
