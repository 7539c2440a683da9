package web

import (
	"time"

	"github.com/bazarlink/bazarlink/internal/geo"
	"github.com/bazarlink/bazarlink/internal/order/domain"
)

// OrderView is the wire representation of an order. Geo points render as
// GeoJSON {"type":"Point","coordinates":[lng,lat]}.
type OrderView struct {
	ID                string          `json:"id"`
	CustomerID        string          `json:"customerId,omitempty"`
	Items             []OrderItemView `json:"items"`
	TotalAmount       int64           `json:"totalAmount"`
	DeliveryType      string          `json:"deliveryType"`
	Address           string          `json:"address,omitempty"`
	PickupLocation    geo.Point       `json:"pickupLocation"`
	DropLocation      *geo.Point      `json:"dropLocation,omitempty"`
	DeliveryFee       int64           `json:"deliveryFee"`
	Status            string          `json:"status"`
	DeliveryPartnerID string          `json:"deliveryPartnerId,omitempty"`
	OTP               string          `json:"otp,omitempty"`
	Bazar             string          `json:"bazar,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type OrderItemView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Total     int64  `json:"total"`
}

func FromOrder(o domain.Order) OrderView {
	items := make([]OrderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemView{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Total:     it.Total,
		})
	}
	return OrderView{
		ID:                o.ID,
		CustomerID:        o.CustomerID,
		Items:             items,
		TotalAmount:       o.TotalAmount,
		DeliveryType:      string(o.DeliveryType),
		Address:           o.Address,
		PickupLocation:    o.PickupLocation,
		DropLocation:      o.DropLocation,
		DeliveryFee:       o.DeliveryFee,
		Status:            string(o.Status),
		DeliveryPartnerID: o.DeliveryPartnerID,
		OTP:               o.OTP,
		Bazar:             o.Bazar,
		CreatedAt:         o.CreatedAt,
	}
}

func FromOrders(orders []domain.Order) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, FromOrder(o))
	}
	return out
}
