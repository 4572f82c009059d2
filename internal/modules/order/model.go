// README: Order aggregate, product snapshots, and status definitions.
package order

import (
	"time"

	"takeout/internal/types"
)

type Status string

const (
	StatusAwaitingPreparation Status = "awaiting_preparation"
	StatusAwaitingPickup      Status = "awaiting_pickup"
	StatusDelivering          Status = "delivering"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
)

// ProductSnapshot is a frozen copy of a catalog product, captured when the
// order is created. It never changes afterwards, even if the live product is
// edited or removed.
type ProductSnapshot struct {
	ProductID   types.ID `json:"productID"`
	MerchantID  types.ID `json:"merchantID"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
}

type Order struct {
	OrderID            types.ID          `json:"orderID"`
	CustomerID         types.ID          `json:"customerID"`
	MerchantID         types.ID          `json:"merchantID"`
	RiderID            *types.ID         `json:"riderID"`
	Products           []ProductSnapshot `json:"productList"`
	DestinationAddress string            `json:"destinationAddress"`
	Status             Status            `json:"orderStatus"`
	StatusVersion      int               `json:"-"`
	OrderTime          time.Time         `json:"orderTime"`
}

// AllowedTransitions represents the order state flow as code. Delivering is
// entered only through rider assignment, which also sets RiderID.
var AllowedTransitions = map[Status][]Status{
	StatusAwaitingPreparation: {StatusAwaitingPickup, StatusCancelled},
	StatusAwaitingPickup:      {StatusDelivering, StatusCancelled},
	StatusDelivering:          {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s Status) Cancellable() bool {
	return s == StatusAwaitingPreparation || s == StatusAwaitingPickup
}
