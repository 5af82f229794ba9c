package model

import "strings"

// DetailStatus tracks where a cluster sits in the detail summary
// lifecycle. Values are ordered: merging two records for the same
// cluster keeps the side whose status carries more information, see
// Supersedes.
type DetailStatus string

const (
	// StatusPartial is the default state: only the short summary
	// exists and no detail generation has been requested.
	StatusPartial DetailStatus = "partial"

	// StatusPending means a generation request is outstanding.
	StatusPending DetailStatus = "pending"

	// StatusFailed means the last generation attempt ended without
	// usable text. Terminal until the user retries.
	StatusFailed DetailStatus = "failed"

	// StatusStale means detail text exists but its validity window
	// has lapsed. Terminal, but the text is still renderable and the
	// user may regenerate.
	StatusStale DetailStatus = "stale"

	// StatusReady means fresh detail text is available.
	StatusReady DetailStatus = "ready"
)

const (
	// ReasonTimeout marks a failure synthesized locally after the poll
	// budget ran out while the upstream still reported generation in
	// progress.
	ReasonTimeout = "timeout"

	// ReasonRequestFailed marks a failure whose cause the upstream
	// never named: the start call errored outright, or a failed record
	// arrived without an explicit reason.
	ReasonRequestFailed = "request_failed"
)

// ParseDetailStatus maps raw upstream input onto one of the five known
// statuses. Input is trimmed and lower-cased first; anything
// unrecognized, including the empty string, maps to StatusPartial so a
// misbehaving upstream can never produce an unrenderable state.
func ParseDetailStatus(raw string) DetailStatus {
	switch DetailStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending
	case StatusFailed:
		return StatusFailed
	case StatusStale:
		return StatusStale
	case StatusReady:
		return StatusReady
	default:
		return StatusPartial
	}
}

// Priority returns the merge precedence of the status. Higher values
// carry more information about the cluster's detail summary.
func (s DetailStatus) Priority() int {
	switch s {
	case StatusPending:
		return 1
	case StatusFailed:
		return 2
	case StatusStale:
		return 3
	case StatusReady:
		return 4
	default:
		return 0
	}
}

// IsTerminal reports whether the status ends a generation cycle. A
// terminal status only changes through a new user action.
func (s DetailStatus) IsTerminal() bool {
	switch s {
	case StatusReady, StatusStale, StatusFailed:
		return true
	default:
		return false
	}
}

// CanRetry reports whether requesting a fresh generation from this
// status is meaningful.
func (s DetailStatus) CanRetry() bool {
	return s == StatusFailed || s == StatusStale
}

// String returns the wire representation of the status.
func (s DetailStatus) String() string {
	return string(s)
}
