package domain

import "time"

// ShipmentStatus is the delivery stage of a tracked shipment.
type ShipmentStatus string

const (
	ShipmentProcessing     ShipmentStatus = "Processing"
	ShipmentShipped        ShipmentStatus = "Shipped"
	ShipmentInTransit      ShipmentStatus = "In Transit"
	ShipmentOutForDelivery ShipmentStatus = "Out for Delivery"
	ShipmentDelivered      ShipmentStatus = "Delivered"
)

// Shipment is a tracking record kept in the per-tenant shipment store.
type Shipment struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenantId"`
	Product           string         `json:"product"`
	Origin            string         `json:"origin"`
	Destination       string         `json:"destination"`
	Priority          Priority       `json:"priority"`
	RouteID           string         `json:"routeId"`
	Route             []string       `json:"route"`
	Status            ShipmentStatus `json:"status"`
	CurrentLocation   string         `json:"currentLocation"`
	Progress          int            `json:"progress"`
	EstimatedDelivery time.Time      `json:"estimatedDelivery"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// CompletedStops returns how many route stops have been passed at the current progress.
func (s *Shipment) CompletedStops() int {
	return len(s.Route) * s.Progress / 100
}
