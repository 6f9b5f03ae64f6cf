package order

// Status is the order lifecycle state
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

var transitions = map[Status]Status{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Orders advance one step at a time; any non-terminal order can be cancelled.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return transitions[s] == next
}

// ParseStatus converts user input into a status
func ParseStatus(v string) (Status, error) {
	s := Status(normalizeStatus(v))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}
