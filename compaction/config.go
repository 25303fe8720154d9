package compaction

import (
	"fmt"
	"strings"

	"github.com/youssefsiam38/historypg/types"
)

// Default configuration values.
const (
	DefaultScrubField = "grade_details"
	DefaultHeaderRole = types.RoleDeveloper
)

// Config holds compaction configuration.
type Config struct {
	// ScrubFields are removed from the JSON content of every user message
	// except the latest. A dotted path addresses a nested key.
	// Default: ["grade_details"]
	ScrubFields []string

	// HeaderRole is the role of the fresh header message. Existing messages with
	// this role are superseded and dropped.
	// Default: "developer"
	HeaderRole types.Role

	// DisableStaging skips the recovery copy on stores that implement
	// storage.Stager, falling back to the plain sequential rewrite.
	// Default: false
	DisableStaging bool
}

// DefaultConfig returns a Config with the default scrub policy.
func DefaultConfig() *Config {
	return &Config{
		ScrubFields: []string{DefaultScrubField},
		HeaderRole:  DefaultHeaderRole,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.ScrubFields == nil {
		c.ScrubFields = []string{DefaultScrubField}
	}
	if c.HeaderRole == "" {
		c.HeaderRole = DefaultHeaderRole
	}
}

// Validate validates the configuration and returns an error if invalid.
// An explicitly empty ScrubFields slice is valid and disables scrubbing.
func (c *Config) Validate() error {
	if c.HeaderRole == "" {
		return fmt.Errorf("%w: header_role is required", ErrInvalidConfig)
	}

	if c.HeaderRole == types.RoleUser {
		return fmt.Errorf("%w: header_role cannot be %q", ErrInvalidConfig, types.RoleUser)
	}

	for i, field := range c.ScrubFields {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("%w: scrub_fields[%d] is empty", ErrInvalidConfig, i)
		}
	}

	return nil
}
