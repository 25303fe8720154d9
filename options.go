package historypg

import (
	"strings"

	"github.com/youssefsiam38/historypg/hooks"
	"github.com/youssefsiam38/historypg/types"
)

// Option is a functional option for configuring a Client
type Option func(*internalConfig) error

// WithLogger sets the logger used by the client and its compactor.
// *slog.Logger satisfies Logger.
func WithLogger(logger Logger) Option {
	return func(c *internalConfig) error {
		if logger == nil {
			return NewHistoryError("WithLogger", ErrInvalidConfig).
				WithContext("reason", "logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithScrubFields sets the fields removed from older user messages.
// Calling it with no fields disables scrubbing.
func WithScrubFields(fields ...string) Option {
	return func(c *internalConfig) error {
		for _, f := range fields {
			if strings.TrimSpace(f) == "" {
				return NewHistoryError("WithScrubFields", ErrInvalidConfig).
					WithContext("reason", "field path must not be empty")
			}
		}
		c.scrubFields = append([]string{}, fields...)
		return nil
	}
}

// WithHeaderRole sets the role of the header message written by Compact
// (default "developer")
func WithHeaderRole(role types.Role) Option {
	return func(c *internalConfig) error {
		if role == "" || role == types.RoleUser {
			return NewHistoryError("WithHeaderRole", ErrInvalidConfig).
				WithContext("role", role).
				WithContext("reason", "header role must be set and differ from user")
		}
		c.headerRole = role
		return nil
	}
}

// WithHooks sets the hook registry. A client created without one gets an
// empty registry, available through Client.Hooks.
func WithHooks(registry *hooks.Registry) Option {
	return func(c *internalConfig) error {
		c.hooks = registry
		return nil
	}
}

// WithStaging enables or disables the recovery copy on stores that support
// staging (default enabled)
func WithStaging(enabled bool) Option {
	return func(c *internalConfig) error {
		c.staging = enabled
		return nil
	}
}
