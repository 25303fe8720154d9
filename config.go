package historypg

import (
	"github.com/youssefsiam38/historypg/compaction"
	"github.com/youssefsiam38/historypg/hooks"
	"github.com/youssefsiam38/historypg/types"
)

// Logger interface for structured logging.
// Compatible with *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// internalConfig holds all client configuration
type internalConfig struct {
	logger      Logger
	scrubFields []string
	headerRole  types.Role
	hooks       *hooks.Registry
	staging     bool
}

// defaultConfig returns the default configuration
func defaultConfig() *internalConfig {
	return &internalConfig{
		logger:      noopLogger{},
		scrubFields: []string{compaction.DefaultScrubField},
		headerRole:  compaction.DefaultHeaderRole,
		staging:     true,
	}
}

// compactionConfig converts the client options into a compaction.Config
func (c *internalConfig) compactionConfig() *compaction.Config {
	return &compaction.Config{
		ScrubFields:    c.scrubFields,
		HeaderRole:     c.headerRole,
		DisableStaging: !c.staging,
	}
}
