package audit

import (
	"fmt"
	"time"

	"clinicore/pkg/domain"
)

// Default lockout policy.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// Lockout is the per-user login lockout policy. State is kept on the User row.
type Lockout struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockout returns the 5 failures / 15 minutes policy.
func DefaultLockout() Lockout {
	return Lockout{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

func (p Lockout) normalized() Lockout {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	return p
}

// Locked reports whether u is locked at now.
func (p Lockout) Locked(u domain.User, now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

// Check returns an error wrapping domain.ErrAccountLocked while u is locked.
func (p Lockout) Check(u domain.User, now time.Time) error {
	if p.Locked(u, now) {
		return fmt.Errorf("%w until %s", domain.ErrAccountLocked, u.LockoutUntil.UTC().Format(time.RFC3339))
	}
	return nil
}

// RegisterFailure counts a failed attempt and reports whether it locked the
// account. An expired lock is cleared first so counting restarts at one.
func (p Lockout) RegisterFailure(u *domain.User, now time.Time) bool {
	p = p.normalized()
	if u.LockoutUntil != nil && !now.Before(*u.LockoutUntil) {
		u.LockoutUntil = nil
		u.FailedLoginAttempts = 0
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts < p.Threshold {
		return false
	}
	until := now.Add(p.Duration)
	u.LockoutUntil = &until
	return true
}

// RegisterSuccess clears the lock and the failure counter.
func (p Lockout) RegisterSuccess(u *domain.User, now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
	u.LastLoginAt = &now
}
