package storage

import (
	"encoding/json"
	"fmt"

	"github.com/youssefsiam38/historypg/types"
)

// Schema holds the DDL statements used by PostgresStore and SQLStore.
// Messages are ordered by seq; id is informational.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS historypg_messages (
		seq         BIGSERIAL PRIMARY KEY,
		id          UUID NOT NULL UNIQUE,
		session_id  TEXT NOT NULL,
		role        TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL DEFAULT '',
		extra       JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS historypg_messages_session_seq_idx
		ON historypg_messages (session_id, seq)`,
	`CREATE TABLE IF NOT EXISTS historypg_compaction_events (
		id                UUID PRIMARY KEY,
		session_id        TEXT NOT NULL,
		mode              TEXT NOT NULL,
		original_messages INTEGER NOT NULL,
		final_messages    INTEGER NOT NULL,
		dropped_headers   INTEGER NOT NULL,
		scrubbed_messages INTEGER NOT NULL,
		duration_ms       BIGINT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS historypg_compaction_events_session_idx
		ON historypg_compaction_events (session_id, created_at DESC)`,
}

// encodeExtra marshals a message's extra fields, returning nil when there are none
func encodeExtra(msg *types.Message) ([]byte, error) {
	if len(msg.Extra) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(msg.Extra)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extra fields: %w", err)
	}
	return data, nil
}

// decodeExtra unmarshals stored extra fields into msg
func decodeExtra(msg *types.Message, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return fmt.Errorf("failed to unmarshal extra fields: %w", err)
	}
	if len(extra) > 0 {
		msg.Extra = extra
	}
	return nil
}
