package enums

import "fmt"

// JobPostStatus maps to the job_post_status enum in Postgres.
type JobPostStatus string

const (
	JobPostStatusOpen   JobPostStatus = "open"
	JobPostStatusClosed JobPostStatus = "closed"
)

var validJobPostStatuses = []JobPostStatus{
	JobPostStatusOpen,
	JobPostStatusClosed,
}

func (s JobPostStatus) IsValid() bool {
	for _, candidate := range validJobPostStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseJobPostStatus converts raw input into JobPostStatus.
func ParseJobPostStatus(value string) (JobPostStatus, error) {
	for _, candidate := range validJobPostStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job post status %q", value)
}
