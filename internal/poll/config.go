package poll

import "time"

const (
	// DefaultInterval is the fixed delay between consecutive poll
	// cycles for one cluster.
	DefaultInterval = 1500 * time.Millisecond

	// DefaultMaxAttempts is how many poll cycles one cluster gets
	// before the loop gives up and forces a timeout failure.
	DefaultMaxAttempts = 40

	// DefaultMaxElapsed is the wall clock budget for one poll loop.
	// Whichever of the two bounds trips first ends the loop.
	DefaultMaxElapsed = 90 * time.Second
)

// Config holds the tunables for the polling orchestrator.
type Config struct {
	// Interval is the fixed delay between poll cycles. The first check
	// of a loop runs immediately, the interval applies afterwards.
	Interval time.Duration

	// MaxAttempts caps the number of poll cycles per loop.
	MaxAttempts int

	// MaxElapsed caps the wall clock time per loop.
	MaxElapsed time.Duration
}

// DefaultConfig returns the polling configuration with default values.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
		MaxElapsed:  DefaultMaxElapsed,
	}
}
