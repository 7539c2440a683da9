package domain

// Event types staged on the outbox alongside order mutations.
const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderAssigned  = "OrderAssigned"
	EventOrderPickedUp  = "OrderPickedUp"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"
)

type OrderPlaced struct {
	OrderID      string `json:"orderId"`
	CustomerID   string `json:"customerId,omitempty"`
	TotalAmount  int64  `json:"totalAmount"`
	DeliveryType string `json:"deliveryType"`
	Bazar        string `json:"bazar"`
}

type OrderAssigned struct {
	OrderID   string `json:"orderId"`
	PartnerID string `json:"partnerId"`
}

type OrderPickedUp struct {
	OrderID   string `json:"orderId"`
	PartnerID string `json:"partnerId"`
}

type OrderDelivered struct {
	OrderID   string `json:"orderId"`
	PartnerID string `json:"partnerId"`
}

type OrderCancelled struct {
	OrderID string `json:"orderId"`
	// By records who terminated the order: "customer" or "partner".
	By string `json:"by"`
}
