// Package retry implements transient-error retry with exponential backoff,
// generalized from the teacher's github.com/re-cinq/assembly-line
// internal/git retry loop (index-lock / ref-lock transient git failures).
// Here it backs the Coordinator's blob-store write retry and the Daemon's
// WebSocket reconnect schedule (spec §4.1, §4.2).
package retry

import "time"

// sleepFunc is replaced in tests to avoid real delays.
var sleepFunc = time.Sleep

// Policy describes a retry schedule: a fixed sequence of delays between
// attempts. len(Delays)+1 is the maximum number of attempts.
type Policy struct {
	Delays []time.Duration
}

// Fixed returns a Policy that retries n times total, waiting delay between
// each attempt, doubling the delay after each failure (classic exponential
// backoff). Used for the blob store's "retry up to 3 times" policy (§4.1).
func Fixed(attempts int, initial time.Duration) Policy {
	delays := make([]time.Duration, 0, attempts-1)
	d := initial
	for i := 0; i < attempts-1; i++ {
		delays = append(delays, d)
		d *= 2
	}
	return Policy{Delays: delays}
}

// Schedule returns a Policy with an explicit delay sequence. Used for the
// Daemon's reconnect backoff: 1s, 2s, 5s, 10s, 30s max (§4.2).
func Schedule(delays ...time.Duration) Policy {
	return Policy{Delays: delays}
}

// Do runs fn, retrying according to p whenever fn returns an error for
// which isTransient returns true. It returns the last error if all attempts
// are exhausted, or nil on the first success. If isTransient is nil, every
// error is treated as transient.
func (p Policy) Do(isTransient func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if isTransient != nil && !isTransient(err) {
			return err
		}
		if attempt >= len(p.Delays) {
			return err
		}
		sleepFunc(p.Delays[attempt])
	}
}

// Next returns the delay to wait before the (attempt+1)th retry, clamped to
// the last entry in the schedule once exhausted (used by callers that loop
// indefinitely, like the Daemon's reconnect loop, rather than bailing out
// after a fixed attempt count).
func (p Policy) Next(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt >= len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt]
}
