package chat

import (
	"fmt"
	"time"
)

// ValidationError rejects a write before anything touches storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// Policy rejection reasons.
const (
	PolicySlowMode = "slow_mode"
	PolicyDailyCap = "daily_cap"
)

// PolicyError rejects a write that violates a per-room policy.
type PolicyError struct {
	Reason     string
	RetryAfter time.Duration // nonzero for slow-mode cooldowns
}

func (e *PolicyError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("policy: %s, retry after %s", e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("policy: %s", e.Reason)
}

// AuthorizationError rejects a caller who is not an active participant. It
// carries no room state beyond the reason.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: %s", e.Reason)
}
