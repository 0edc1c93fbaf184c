package models

import "time"

// IPProfile is the per-IP admission state. It is mutated only inside the
// per-IP critical section of an IPProfileStore.
type IPProfile struct {
	IP string `db:"ip" json:"ip"`

	// AttemptTimes is the sliding-window log of attempts admitted past the
	// rate limiter, pruned to the daily window.
	AttemptTimes []time.Time `db:"attempt_times" json:"-"`
	// FailureTimes holds recent denied attempts, pruned to the failure window.
	FailureTimes []time.Time `db:"failure_times" json:"-"`

	HourlyWindowCount   int        `db:"hourly_window_count" json:"hourly_window_count"`
	DailyWindowCount    int        `db:"daily_window_count" json:"daily_window_count"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	LastAttemptAt       time.Time  `db:"last_attempt_at" json:"last_attempt_at"`
	BlockedUntil        *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
}

// NewIPProfile returns an empty profile for ip.
func NewIPProfile(ip string) *IPProfile {
	return &IPProfile{IP: ip}
}

// IsBlocked checks if a block is still active at now
func (p *IPProfile) IsBlocked(now time.Time) bool {
	return p.BlockedUntil != nil && now.Before(*p.BlockedUntil)
}

// AttemptsSince counts logged attempts at or after since.
func (p *IPProfile) AttemptsSince(since time.Time) int {
	return countSince(p.AttemptTimes, since)
}

// FailuresSince counts logged failures at or after since.
func (p *IPProfile) FailuresSince(since time.Time) int {
	return countSince(p.FailureTimes, since)
}

// Clone returns a deep copy so a critical section can mutate freely and
// discard its changes on error.
func (p *IPProfile) Clone() *IPProfile {
	c := *p
	c.AttemptTimes = append([]time.Time(nil), p.AttemptTimes...)
	c.FailureTimes = append([]time.Time(nil), p.FailureTimes...)
	if p.BlockedUntil != nil {
		until := *p.BlockedUntil
		c.BlockedUntil = &until
	}
	return &c
}

// PruneBefore drops log entries older than cutoff. Entries are kept in
// insertion order, which is chronological under the per-IP lock.
func PruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0:0], times[i:]...)
}

func countSince(times []time.Time, since time.Time) int {
	n := 0
	for _, t := range times {
		if !t.Before(since) {
			n++
		}
	}
	return n
}
