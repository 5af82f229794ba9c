package failstore

import "time"

// DefaultFailureTTL is how long a recorded failure stays visible. Rows older
// than this are purged on sight and treated as absent.
const DefaultFailureTTL = 10 * time.Minute

// FailureRecord is one remembered terminal failure of a cluster's detail
// generation.
type FailureRecord struct {
	// ClusterID is the cluster the failure belongs to.
	ClusterID string `json:"clusterId"`

	// Reason is the short machine readable failure reason, e.g.
	// "timeout" or "request_failed".
	Reason string `json:"reason"`

	// RecordedAt is when the failure was observed.
	RecordedAt time.Time `json:"recordedAt"`
}

// Config holds configuration for the failure store.
type Config struct {
	// TTL is how long a recorded failure stays visible.
	TTL time.Duration
}

// DefaultConfig returns sensible defaults for the failure store.
func DefaultConfig() Config {
	return Config{
		TTL: DefaultFailureTTL,
	}
}
