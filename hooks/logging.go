package hooks

import (
	"context"
	"log"

	"github.com/youssefsiam38/historypg/compaction"
	"github.com/youssefsiam38/historypg/types"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with default logger
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// BeforeAppend logs messages appended to a session
func (h *LoggingHooks) BeforeAppend(ctx context.Context, sessionID string, messages []*types.Message) error {
	h.logger.Printf("[historypg] Appending %d messages to session %s", len(messages), sessionID)
	return nil
}

// BeforeCompaction logs before history compaction
func (h *LoggingHooks) BeforeCompaction(ctx context.Context, sessionID string) error {
	h.logger.Printf("[historypg] Starting history compaction for session %s", sessionID)
	return nil
}

// AfterCompaction logs after history compaction
func (h *LoggingHooks) AfterCompaction(ctx context.Context, result *compaction.Result) error {
	h.logger.Printf("[historypg] Compaction complete: %d → %d messages (%d headers dropped, %d scrubbed, mode: %s)",
		result.OriginalMessages, result.FinalMessages, result.DroppedHeaders, result.ScrubbedMessages, result.Mode)
	return nil
}

// VerboseLoggingHooks provides detailed logging for debugging
type VerboseLoggingHooks struct {
	logger *log.Logger
}

// NewVerboseLoggingHooks creates verbose logging hooks
func NewVerboseLoggingHooks(logger *log.Logger) *VerboseLoggingHooks {
	return &VerboseLoggingHooks{logger: logger}
}

// BeforeAppend logs every appended message
func (h *VerboseLoggingHooks) BeforeAppend(ctx context.Context, sessionID string, messages []*types.Message) error {
	h.logger.Printf("[historypg][VERBOSE] === Appending %d messages to %s ===", len(messages), sessionID)
	for i, msg := range messages {
		h.logger.Printf("[historypg][VERBOSE] Message %d: %s", i, msg)
	}
	return nil
}

// BeforeCompaction logs detailed compaction information
func (h *VerboseLoggingHooks) BeforeCompaction(ctx context.Context, sessionID string) error {
	h.logger.Printf("[historypg][VERBOSE] === Starting Compaction ===")
	h.logger.Printf("[historypg][VERBOSE] Session: %s", sessionID)
	return nil
}

// AfterCompaction logs detailed compaction results
func (h *VerboseLoggingHooks) AfterCompaction(ctx context.Context, result *compaction.Result) error {
	h.logger.Printf("[historypg][VERBOSE] === Compaction Complete ===")
	h.logger.Printf("[historypg][VERBOSE] Mode: %s", result.Mode)
	h.logger.Printf("[historypg][VERBOSE] Original messages: %d", result.OriginalMessages)
	h.logger.Printf("[historypg][VERBOSE] Final messages: %d", result.FinalMessages)
	h.logger.Printf("[historypg][VERBOSE] Headers dropped: %d", result.DroppedHeaders)
	h.logger.Printf("[historypg][VERBOSE] Messages scrubbed: %d", result.ScrubbedMessages)
	h.logger.Printf("[historypg][VERBOSE] Duration: %v", result.Duration)
	return nil
}

// MetricsHooks collects metrics for monitoring
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// BeforeAppend records append volume
func (h *MetricsHooks) BeforeAppend(ctx context.Context, sessionID string, messages []*types.Message) error {
	h.OnMetric("history.append.messages", float64(len(messages)), nil)
	return nil
}

// AfterCompaction records compaction metrics
func (h *MetricsHooks) AfterCompaction(ctx context.Context, result *compaction.Result) error {
	tags := map[string]string{"mode": string(result.Mode)}

	h.OnMetric("history.compaction.original_messages", float64(result.OriginalMessages), tags)
	h.OnMetric("history.compaction.final_messages", float64(result.FinalMessages), tags)
	h.OnMetric("history.compaction.dropped_headers", float64(result.DroppedHeaders), tags)
	h.OnMetric("history.compaction.scrubbed_messages", float64(result.ScrubbedMessages), tags)
	h.OnMetric("history.compaction.duration_ms", float64(result.Duration.Milliseconds()), tags)

	return nil
}
