package orders

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPaid           Status = "PAID"
	StatusProcessing     Status = "PROCESSING"
	StatusReadyToShip    Status = "READY_TO_SHIP"
	StatusAwaitingPickup Status = "AWAITING_PICKUP"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusRefunded       Status = "REFUNDED"
	StatusExpired        Status = "EXPIRED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusPaid: true, StatusCancelled: true, StatusExpired: true},
	StatusPaid:           {StatusProcessing: true, StatusRefunded: true},
	// COMPLETED handles self-collection handover, which never passes
	// through the shipping states
	StatusProcessing:     {StatusReadyToShip: true, StatusCompleted: true, StatusRefunded: true, StatusCancelled: true},
	StatusReadyToShip:    {StatusAwaitingPickup: true, StatusShipped: true},
	StatusAwaitingPickup: {StatusShipped: true},
	StatusShipped:        {StatusDelivered: true, StatusCompleted: true},
	StatusDelivered:      {StatusCompleted: true},
	StatusCompleted:      {},
	StatusCancelled:      {},
	StatusRefunded:       {},
	StatusExpired:        {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition is possible.
func Terminal(s Status) bool {
	return len(validNext[s]) == 0
}
