// Package mcpservice contains the domain types for a registered MCP
// upstream ("Service" in spec terms) and the snapshot-approval status
// values attached to it.
package mcpservice

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// namePattern matches spec.md §3: opaque identifier, [A-Za-z0-9_-]+, 1-64 chars.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const nameMaxLength = 64

// DefaultMinCheckFrequencyMinutes is the floor applied when a service's
// CheckFrequencyMinutes is nonzero and the operator hasn't overridden
// polling.min_check_frequency in configuration.
const DefaultMinCheckFrequencyMinutes = 5

// Service is a registered upstream MCP endpoint.
type Service struct {
	ID                     int64
	Name                   string
	UpstreamURL            string
	Enabled                bool
	CheckFrequencyMinutes  int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Validate checks name, URL, and frequency invariants from spec.md §3.
// minCheckFrequency is the operator-configured floor (polling.min_check_frequency).
func (s *Service) Validate(minCheckFrequency int) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(s.Name) > nameMaxLength {
		return fmt.Errorf("%w: name must be %d characters or fewer", ErrValidation, nameMaxLength)
	}
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("%w: name must match [A-Za-z0-9_-]+", ErrValidation)
	}

	if s.UpstreamURL == "" {
		return fmt.Errorf("%w: upstream_url is required", ErrValidation)
	}
	parsed, err := url.Parse(s.UpstreamURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: upstream_url must be an absolute HTTP(S) URL", ErrValidation)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: upstream_url must use http or https", ErrValidation)
	}

	if s.CheckFrequencyMinutes < 0 {
		return fmt.Errorf("%w: check_frequency_minutes must be non-negative", ErrValidation)
	}
	if s.CheckFrequencyMinutes != 0 && s.CheckFrequencyMinutes < minCheckFrequency {
		return fmt.Errorf("%w: check_frequency_minutes must be 0 or >= %d", ErrValidation, minCheckFrequency)
	}

	return nil
}

// SnapshotStatus is the approval state of a stored Snapshot.
type SnapshotStatus string

const (
	// StatusUserApproved is set only by explicit admin action.
	StatusUserApproved SnapshotStatus = "user_approved"
	// StatusSystemApproved is set by the scheduler when a new hash matches
	// the last approved hash.
	StatusSystemApproved SnapshotStatus = "system_approved"
	// StatusUnapproved is set by the scheduler on hash mismatch (drift).
	StatusUnapproved SnapshotStatus = "unapproved"
)

// IsApproved reports whether the status counts toward "last approved hash".
func (s SnapshotStatus) IsApproved() bool {
	return s == StatusUserApproved || s == StatusSystemApproved
}

// WithLatestStatus pairs a Service with the status of its most recent
// snapshot, for list_services responses (spec.md §4.E).
type WithLatestStatus struct {
	Service
	LatestSnapshotStatus *SnapshotStatus
}
