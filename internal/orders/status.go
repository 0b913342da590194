package orders

type Status string

const (
	StatusPending        Status = "Pending"
	StatusOrderReceived  Status = "OrderReceived"
	StatusReadyForPickup Status = "ReadyForPickup"
	StatusShipped        Status = "Shipped"
)

// Upserts never consult this table: any event may overwrite any label.
// It only tells the warehouse sweep which labels it is allowed to advance.
var sweepable = map[Status]bool{
	StatusPending:       true,
	StatusOrderReceived: true,
}

// SweepTransition returns the status an aged record moves to, or false when
// the warehouse sweep must leave it alone.
func SweepTransition(from Status) (Status, bool) {
	if sweepable[from] {
		return StatusReadyForPickup, true
	}
	return from, false
}

// SweepableStatuses lists the labels the sweep query filters on.
func SweepableStatuses() []string {
	return []string{string(StatusPending), string(StatusOrderReceived)}
}
