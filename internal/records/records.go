// Package records holds the lifecycle rules of a business record: the lead/customer record type,
// the per-type status vocabularies, and the status transition table.
//
// Two families of functions exist side by side. NormalizeRecordType and NormalizeStatus keep the
// permissive behaviour existing clients rely on: unknown input is coerced or passed through.
// ParseRecordType, ParseStatus and ValidateChange reject invalid values and are what the write
// path uses to decide whether a change may be committed.
package records

import (
	"errors"
	"fmt"
	"strings"
)

// RecordType distinguishes a sales lead from a converted customer.
type RecordType string

const (
	TypeLead     RecordType = "lead"
	TypeCustomer RecordType = "customer"
)

// Status is a canonical lifecycle status.
type Status string

// Lead statuses.
const (
	StatusNew          Status = "new"
	StatusContacted    Status = "contacted"
	StatusQualified    Status = "qualified"
	StatusProposalSent Status = "proposal_sent"
	StatusNegotiating  Status = "negotiating"
	StatusClosedLost   Status = "closed_lost"
)

// Customer statuses. StatusActive is shared: a lead that reaches it has become a customer.
const (
	StatusActive           Status = "active"
	StatusAtRisk           Status = "at_risk"
	StatusInactive         Status = "inactive"
	StatusChurned          Status = "churned"
	StatusCompetitorSwitch Status = "competitor_switch"
)

var (
	// ErrInvalidRecordType is returned when a record type is neither lead nor customer.
	ErrInvalidRecordType = errors.New("invalid record type")
	// ErrInvalidStatus is returned when a status is not valid for the record type.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition is returned when a status or record type change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// leadStatusAliases maps accepted spellings (lower-cased, trimmed) to canonical lead statuses.
var leadStatusAliases = map[string]Status{
	"new":           StatusNew,
	"open":          StatusNew,
	"contacted":     StatusContacted,
	"qualified":     StatusQualified,
	"proposal":      StatusProposalSent,
	"proposal sent": StatusProposalSent,
	"proposal_sent": StatusProposalSent,
	"negotiating":   StatusNegotiating,
	"negotiation":   StatusNegotiating,
	"closed lost":   StatusClosedLost,
	"closed_lost":   StatusClosedLost,
	"lost":          StatusClosedLost,
	"closed won":    StatusActive,
	"closed_won":    StatusActive,
	"won":           StatusActive,
	"active":        StatusActive,
}

// customerStatusAliases maps accepted spellings (lower-cased, trimmed) to canonical customer statuses.
var customerStatusAliases = map[string]Status{
	"active":            StatusActive,
	"at risk":           StatusAtRisk,
	"at_risk":           StatusAtRisk,
	"inactive":          StatusInactive,
	"churned":           StatusChurned,
	"cancelled":         StatusChurned,
	"competitor switch": StatusCompetitorSwitch,
	"competitor_switch": StatusCompetitorSwitch,
}

var validStatuses = map[RecordType]map[Status]bool{
	TypeLead: {
		StatusNew:          true,
		StatusContacted:    true,
		StatusQualified:    true,
		StatusProposalSent: true,
		StatusNegotiating:  true,
		StatusClosedLost:   true,
		StatusActive:       true,
	},
	TypeCustomer: {
		StatusActive:           true,
		StatusAtRisk:           true,
		StatusInactive:         true,
		StatusChurned:          true,
		StatusCompetitorSwitch: true,
	},
}

// NormalizeRecordType returns TypeCustomer only for the literal "customer" in any letter case;
// every other input, including padded or empty strings, becomes TypeLead.
func NormalizeRecordType(raw string) RecordType {
	if strings.EqualFold(raw, string(TypeCustomer)) {
		return TypeCustomer
	}
	return TypeLead
}

// ParseRecordType accepts "lead" or "customer" in any case, surrounding whitespace ignored.
func ParseRecordType(raw string) (RecordType, error) {
	switch RecordType(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeLead:
		return TypeLead, nil
	case TypeCustomer:
		return TypeCustomer, nil
	}
	return "", fmt.Errorf("%w: %q (must be lead or customer)", ErrInvalidRecordType, raw)
}

// NormalizeStatus maps raw through the status dictionary of the given record type. A raw value
// the dictionary does not know is returned unchanged.
func NormalizeStatus(raw string, t RecordType) string {
	if s, ok := aliasesFor(t)[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return string(s)
	}
	return raw
}

// ParseStatus normalizes raw and checks it against the valid statuses of t.
func ParseStatus(raw string, t RecordType) (Status, error) {
	s := Status(NormalizeStatus(raw, t))
	if !IsValidStatus(t, s) {
		return "", fmt.Errorf("%w: %q is not a %s status", ErrInvalidStatus, raw, t)
	}
	return s, nil
}

// IsValidStatus reports whether s belongs to the status set of t.
func IsValidStatus(t RecordType, s Status) bool {
	return validStatuses[t][s]
}

// ValidStatuses lists the statuses of a record type in lifecycle order.
func ValidStatuses(t RecordType) []Status {
	if t == TypeCustomer {
		return []Status{StatusActive, StatusAtRisk, StatusInactive, StatusChurned, StatusCompetitorSwitch}
	}
	return []Status{StatusNew, StatusContacted, StatusQualified, StatusProposalSent, StatusNegotiating, StatusClosedLost, StatusActive}
}

// DefaultStatus is the status given to a new record of type t when none is supplied.
func DefaultStatus(t RecordType) Status {
	if t == TypeCustomer {
		return StatusActive
	}
	return StatusNew
}

func aliasesFor(t RecordType) map[string]Status {
	if t == TypeCustomer {
		return customerStatusAliases
	}
	return leadStatusAliases
}
