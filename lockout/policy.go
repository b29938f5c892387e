package lockout

import (
	"errors"
	"time"
)

const (
	// DefaultThreshold is the number of consecutive failures that locks an account.
	DefaultThreshold = 5
	// DefaultDuration is how long an account stays locked.
	DefaultDuration = 30 * time.Minute
)

// State is the persisted lockout portion of a credential record.
type State struct {
	Attempts  int
	LockUntil *time.Time
}

// Policy derives lock decisions from failed-attempt counts.
//
// Policy is a value type and safe for concurrent use. Atomicity of the
// read-modify-write on State is the responsibility of the credential store.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// Default returns the 5 attempts / 30 minutes policy.
func Default() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// Validate rejects policies that can never lock or never unlock.
func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if p.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}
	return nil
}

// Locked reports whether s is locked at now.
func (p Policy) Locked(s State, now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// Next returns the state after a password check with the given outcome.
//
// A success observed while a lock is active leaves s unchanged: the lock
// may have been set by a concurrent failure after the caller's own check.
func (p Policy) Next(s State, success bool, now time.Time) State {
	if success {
		if p.Locked(s, now) {
			return s
		}
		return State{}
	}

	if s.LockUntil != nil && !s.LockUntil.After(now) {
		// The previous lock elapsed: this failure opens a new window.
		next := State{Attempts: 1}
		if next.Attempts >= p.Threshold {
			next.LockUntil = p.lockUntil(now)
		}
		return next
	}

	next := State{Attempts: s.Attempts + 1, LockUntil: s.LockUntil}
	if next.LockUntil == nil && next.Attempts >= p.Threshold {
		next.LockUntil = p.lockUntil(now)
	}
	return next
}

// LockUntilFor returns the lock expiry a failure at now would set.
func (p Policy) LockUntilFor(now time.Time) time.Time {
	return now.Add(p.Duration)
}

func (p Policy) lockUntil(now time.Time) *time.Time {
	t := p.LockUntilFor(now)
	return &t
}
