package enums

import "fmt"

// LeadStatus maps to the lead_status enum in Postgres.
type LeadStatus string

const (
	LeadStatusUnlocked  LeadStatus = "unlocked"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusConverted LeadStatus = "converted"
)

var validLeadStatuses = []LeadStatus{
	LeadStatusUnlocked,
	LeadStatusContacted,
	LeadStatusConverted,
}

func (s LeadStatus) IsValid() bool {
	for _, candidate := range validLeadStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLeadStatus converts raw input into LeadStatus.
func ParseLeadStatus(value string) (LeadStatus, error) {
	for _, candidate := range validLeadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lead status %q", value)
}
