package types

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleDeveloper represents an instruction message written by the host application
	RoleDeveloper Role = "developer"

	// RoleTool represents a tool output message
	RoleTool Role = "tool"

	// RoleSystem represents a system message
	RoleSystem Role = "system"
)

// Message represents one item of a session's history.
//
// Content is either plain text or a string holding serialized JSON. Top-level
// fields other than role and content are kept in Extra so that items written by
// other producers survive a rewrite.
type Message struct {
	ID        string                     `json:"-"`
	Role      Role                       `json:"role,omitempty"`
	Content   string                     `json:"content"`
	Extra     map[string]json.RawMessage `json:"-"`
	CreatedAt time.Time                  `json:"-"`
}

// NewMessage creates a message with the given role and content
func NewMessage(role Role, content string) *Message {
	return &Message{Role: role, Content: content}
}

// Clone returns a deep copy of the message
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// Is reports whether the message has the given role
func (m *Message) Is(role Role) bool {
	return m != nil && m.Role == role
}

// String returns a short description for logs
func (m *Message) String() string {
	content := m.Content
	if len(content) > 40 {
		content = content[:37] + "..."
	}
	return fmt.Sprintf("%s: %q", m.Role, content)
}

// MarshalJSON encodes the message as a flat object, merging Extra fields.
func (m Message) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.Extra)+2)
	maps.Copy(fields, m.Extra)

	if m.Role != "" {
		role, err := json.Marshal(m.Role)
		if err != nil {
			return nil, err
		}
		fields["role"] = role
	}

	// Non-string content lives in Extra and wins unless Content was set.
	if _, ok := fields["content"]; !ok || m.Content != "" {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		fields["content"] = content
	}

	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flat item object. Unknown fields and non-string
// content are kept in Extra.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*m = Message{ID: m.ID, CreatedAt: m.CreatedAt}

	if raw, ok := fields["role"]; ok {
		var role string
		if err := json.Unmarshal(raw, &role); err == nil {
			m.Role = Role(role)
			delete(fields, "role")
		}
	}

	if raw, ok := fields["content"]; ok {
		var content string
		if err := json.Unmarshal(raw, &content); err == nil {
			m.Content = content
			delete(fields, "content")
		}
	}

	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

// CloneMessages deep copies a slice of messages
func CloneMessages(messages []*Message) []*Message {
	if messages == nil {
		return nil
	}
	out := make([]*Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}
