package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/cuemby/herald/pkg/types"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "timing.peer_timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config and returns every problem found
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Address == (types.Address{}) {
		errs = append(errs, ValidationError{"address", c.Address, "is required"})
	} else if c.Address.HasWildcard() {
		errs = append(errs, ValidationError{"address", c.Address, "must name a single component, not a broadcast group"})
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, ValidationError{"listen", c.Listen, "must be host:port"})
	}

	seen := make(map[string]bool)
	for i, p := range c.Peers {
		field := fmt.Sprintf("peers[%d]", i)
		if p.Address.HasWildcard() {
			errs = append(errs, ValidationError{field + ".address", p.Address, "must name a single component"})
		}
		if p.Address == c.Address {
			errs = append(errs, ValidationError{field + ".address", p.Address, "must differ from the local address"})
		}
		if seen[p.Address.String()] {
			errs = append(errs, ValidationError{field + ".address", p.Address, "duplicate peer"})
		}
		seen[p.Address.String()] = true
		if _, _, err := net.SplitHostPort(p.Endpoint); err != nil {
			errs = append(errs, ValidationError{field + ".endpoint", p.Endpoint, "must be host:port"})
		}
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Log.Level)) {
		errs = append(errs, ValidationError{"log.level", c.Log.Level, "must be one of " + strings.Join(ValidLogLevels(), ", ")})
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, ValidationError{"metrics.addr", c.Metrics.Addr, "must be host:port"})
		}
	}

	positive := []struct {
		field string
		value time.Duration
	}{
		{"timing.request_timeout", c.Timing.RequestTimeout},
		{"timing.heartbeat_interval", c.Timing.HeartbeatInterval},
		{"timing.peer_timeout", c.Timing.PeerTimeout},
		{"timing.sweep_interval", c.Timing.SweepInterval},
		{"timing.scheduler_tick", c.Timing.SchedulerTick},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{p.field, p.value, "must be positive"})
		}
	}
	if c.Timing.PeerTimeout > 0 && c.Timing.PeerTimeout <= c.Timing.HeartbeatInterval {
		errs = append(errs, ValidationError{"timing.peer_timeout", c.Timing.PeerTimeout, "must exceed timing.heartbeat_interval"})
	}

	if c.Transport.SendRate < 0 {
		errs = append(errs, ValidationError{"transport.send_rate", c.Transport.SendRate, "must not be negative"})
	}
	if c.Transport.SendRate > 0 && c.Transport.SendBurst < 1 {
		errs = append(errs, ValidationError{"transport.send_burst", c.Transport.SendBurst, "must be at least 1 when send_rate is set"})
	}

	return errs
}
