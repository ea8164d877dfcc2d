package campaign

import (
	"fmt"
	"strings"
)

// Status describes the campaign lifecycle label.
type Status string

const (
	StatusUnspecified Status = ""
	StatusActive      Status = "active"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusArchived    Status = "archived"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusActive, StatusPaused, StatusCompleted, StatusArchived}

// ParseStatus canonicalizes a status label.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "active", "campaign_status_active":
		return StatusActive, nil
	case "paused", "campaign_status_paused":
		return StatusPaused, nil
	case "completed", "campaign_status_completed":
		return StatusCompleted, nil
	case "archived", "campaign_status_archived":
		return StatusArchived, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown campaign status %q", value)
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}

// AcceptsEvents reports whether steps may be appended in this status.
func (s Status) AcceptsEvents() bool {
	return s == StatusActive
}

// IsStatusTransitionAllowed reports whether a status transition is permitted.
// Archived is terminal.
func IsStatusTransitionAllowed(from, to Status) bool {
	if !to.Valid() || from == to {
		return false
	}
	switch from {
	case StatusActive:
		return true
	case StatusPaused:
		return to == StatusActive || to == StatusCompleted || to == StatusArchived
	case StatusCompleted:
		return to == StatusArchived
	default:
		return false
	}
}
