package connection

import (
	"fmt"
	"time"
)

// ReconnectPolicy controls automatic reconnection after transport failures.
// It is immutable once the Manager is constructed; changing policy means
// constructing a new Manager.
type ReconnectPolicy struct {
	// MaxAttempts limits consecutive failed attempts. 0 means unlimited.
	MaxAttempts uint `yaml:"max_attempts" json:"max_attempts"`

	// AutoReconnect enables reconnection after abnormal closes.
	AutoReconnect bool `yaml:"auto_reconnect" json:"auto_reconnect"`

	// BaseDelay is the delay unit for the exponential backoff.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DefaultReconnectPolicy returns unlimited reconnection with a 1s base
// delay capped at 30s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:   0,
		AutoReconnect: true,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
	}
}

// Validate checks the policy for nonsensical values.
func (p ReconnectPolicy) Validate() error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("connection: base_delay must be positive, got %v", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("connection: max_delay %v is below base_delay %v", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// Delay returns the backoff delay for the given attempt number (1-based):
// min(BaseDelay * 2^attempt, MaxDelay).
func (p ReconnectPolicy) Delay(attempt uint) time.Duration {
	// Beyond 2^20 the cap always wins; avoid shift overflow.
	if attempt > 20 {
		return p.MaxDelay
	}
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}
