package records

import "fmt"

// transitions lists, for every known status, the statuses it may move to next. Lead and customer
// statuses share one table; StatusActive links the two halves.
var transitions = map[Status][]Status{
	StatusNew:          {StatusContacted, StatusQualified, StatusClosedLost},
	StatusContacted:    {StatusQualified, StatusProposalSent, StatusClosedLost},
	StatusQualified:    {StatusProposalSent, StatusNegotiating, StatusClosedLost},
	StatusProposalSent: {StatusNegotiating, StatusActive, StatusClosedLost},
	StatusNegotiating:  {StatusProposalSent, StatusActive, StatusClosedLost},
	StatusClosedLost:   {StatusNew},

	StatusActive:           {StatusAtRisk, StatusInactive, StatusChurned, StatusCompetitorSwitch},
	StatusAtRisk:           {StatusActive, StatusInactive, StatusChurned, StatusCompetitorSwitch},
	StatusInactive:         {StatusActive, StatusChurned},
	StatusChurned:          {StatusActive},
	StatusCompetitorSwitch: {},
}

// IsKnownStatus reports whether s appears in the transition table.
func IsKnownStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// AllowedTransitions returns the statuses reachable from s in one step. Terminal and unknown
// statuses return an empty slice.
func AllowedTransitions(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether a record may move from one status to another. Staying on the
// same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a known status with no outgoing transitions.
func IsTerminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// State is the lifecycle-relevant part of a business record.
type State struct {
	Type   RecordType
	Status Status
}

// ValidateChange decides whether a record may move from current to next in one write.
//
// Rules:
//   - next.Status must belong to the status set of next.Type;
//   - a customer never reverts to a lead;
//   - a lead converting to a customer must land on a customer status in the same write;
//   - a status change must be allowed by the transition table. A current status the table does
//     not know (legacy rows written before validation) does not constrain the move.
func ValidateChange(current, next State) error {
	if !IsValidStatus(next.Type, next.Status) {
		return fmt.Errorf("%w: %q is not a %s status", ErrInvalidStatus, next.Status, next.Type)
	}

	if err := validateTypeChange(current, next); err != nil {
		return err
	}

	if !IsKnownStatus(current.Status) {
		return nil
	}
	if !CanTransition(current.Status, next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
	}
	return nil
}

// ValidateUnrecognizedChange checks a write whose next status is not one of next.Type's statuses
// and is being stored as given. The record type rules still apply, and a terminal status stays
// final.
func ValidateUnrecognizedChange(current, next State) error {
	if err := validateTypeChange(current, next); err != nil {
		return err
	}
	if IsTerminal(current.Status) && next.Status != current.Status {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, current.Status)
	}
	return nil
}

func validateTypeChange(current, next State) error {
	if current.Type == TypeCustomer && next.Type == TypeLead {
		return fmt.Errorf("%w: a customer cannot be converted back to a lead", ErrInvalidTransition)
	}
	if current.Type == TypeLead && next.Type == TypeCustomer && !IsValidStatus(TypeCustomer, next.Status) {
		return fmt.Errorf("%w: converting to customer requires a customer status", ErrInvalidTransition)
	}
	return nil
}
