package webhooks

import "time"

// RetryPolicy is the fixed redelivery ladder. Attempt numbers are 1-based;
// the delay after attempt N is Delays[N-1]. Once MaxAttempts is exhausted the
// delivery is dead-lettered.
type RetryPolicy struct {
	Delays      []time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			15 * time.Second,
			60 * time.Second,
			300 * time.Second,
		},
		MaxAttempts: 5,
	}
}

// NextDelay returns the wait before the attempt after `attempt`, and whether
// another attempt is allowed at all.
func (p RetryPolicy) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 {
		attempt = 1
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = len(p.Delays)
	}
	if attempt >= maxAttempts {
		return 0, false
	}
	if len(p.Delays) == 0 {
		return 0, false
	}
	index := attempt - 1
	if index >= len(p.Delays) {
		index = len(p.Delays) - 1
	}
	return p.Delays[index], true
}

func (p RetryPolicy) normalized() RetryPolicy {
	out := p
	if len(out.Delays) == 0 {
		out.Delays = DefaultRetryPolicy().Delays
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	return out
}
