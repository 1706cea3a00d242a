package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a named rate-limit policy class applied per endpoint category.
type Tier int

const (
	// TierDefault covers the general API.
	TierDefault Tier = iota
	// TierAuth covers login, registration and token refresh.
	TierAuth
	// TierSensitive covers admin, moderator and password-change operations.
	TierSensitive
)

var tierNames = [...]string{"DEFAULT", "AUTH", "SENSITIVE"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier is the inverse of Tier.String, case-insensitive.
func ParseTier(s string) (Tier, error) {
	for i, n := range tierNames {
		if strings.EqualFold(n, s) {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("ratelimit: unknown tier %q", s)
}

// TierConfig is the bandwidth of one tier.
type TierConfig struct {
	Capacity        int
	RefillPerMinute float64
}

// Config holds every tier plus the lockout policy.
type Config struct {
	Default   TierConfig
	Auth      TierConfig
	Sensitive TierConfig

	// FailureThreshold failures from one IP start a lockout of BlockDuration.
	FailureThreshold int
	BlockDuration    time.Duration

	// FailureWindow bounds how long an unthrottled failure counter survives
	// without a new failure.
	FailureWindow time.Duration

	// IdleTTL evicts buckets that have not been touched for this long.
	IdleTTL time.Duration

	// MaxCost caps the escalating cost charged on the auth tier.
	MaxCost int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Default:          TierConfig{Capacity: 100, RefillPerMinute: 100},
		Auth:             TierConfig{Capacity: 20, RefillPerMinute: 10},
		Sensitive:        TierConfig{Capacity: 10, RefillPerMinute: 5},
		FailureThreshold: 5,
		BlockDuration:    30 * time.Minute,
		FailureWindow:    time.Hour,
		IdleTTL:          30 * time.Minute,
		MaxCost:          5,
	}
}

func (c Config) tier(t Tier) TierConfig {
	switch t {
	case TierAuth:
		return c.Auth
	case TierSensitive:
		return c.Sensitive
	default:
		return c.Default
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	for _, t := range []Tier{TierDefault, TierAuth, TierSensitive} {
		tc := c.tier(t)
		if tc.Capacity <= 0 {
			return fmt.Errorf("ratelimit: %s capacity must be positive", t)
		}
		if tc.RefillPerMinute <= 0 {
			return fmt.Errorf("ratelimit: %s refill rate must be positive", t)
		}
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("ratelimit: failure threshold must be positive")
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("ratelimit: block duration must be positive")
	}
	if c.MaxCost <= 0 {
		return fmt.Errorf("ratelimit: max cost must be positive")
	}
	return nil
}
