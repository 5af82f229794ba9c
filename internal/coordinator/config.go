package coordinator

import "github.com/roasbeef/shousai/internal/poll"

const (
	// DefaultSubscriberBuffer is the per-subscriber channel depth for
	// record updates. Publishers never block on a full channel, they
	// drop the update for that subscriber instead.
	DefaultSubscriberBuffer = 32
)

// Config holds the coordinator's tunables.
type Config struct {
	// Poll configures the status polling loops the coordinator owns.
	Poll poll.Config

	// SubscriberBuffer is the channel depth handed to each subscriber.
	SubscriberBuffer int
}

// DefaultConfig returns a coordinator configuration with default
// values.
func DefaultConfig() Config {
	return Config{
		Poll:             poll.DefaultConfig(),
		SubscriberBuffer: DefaultSubscriberBuffer,
	}
}
