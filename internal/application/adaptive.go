package application

import "time"

// ActivityTier classifies the comment stream by how recently a poll found
// new comments.
type ActivityTier int

const (
	// TierHot indicates the last poll found comments. Polls at the minimum delay.
	TierHot ActivityTier = iota
	// TierCooling indicates recent empty polls. The delay is doubling.
	TierCooling
	// TierIdle indicates the delay has reached its maximum.
	TierIdle
)

// String returns a human-readable name for the activity tier.
func (t ActivityTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierCooling:
		return "cooling"
	case TierIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// pollDelay adapts the wait between discovery polls: it resets to min when a
// poll finds comments and doubles, up to max, while the stream is quiet.
type pollDelay struct {
	min     time.Duration
	max     time.Duration
	current time.Duration
}

func newPollDelay(minDelay, maxDelay time.Duration) *pollDelay {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &pollDelay{min: minDelay, max: maxDelay, current: minDelay}
}

// observe records the result of a poll and returns the next delay.
func (d *pollDelay) observe(found int) time.Duration {
	if found > 0 {
		d.current = d.min
		return d.current
	}
	d.current *= 2
	if d.current > d.max {
		d.current = d.max
	}
	return d.current
}

func (d *pollDelay) tier() ActivityTier {
	switch {
	case d.current <= d.min:
		return TierHot
	case d.current >= d.max:
		return TierIdle
	default:
		return TierCooling
	}
}
