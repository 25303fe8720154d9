package compaction

import (
	"github.com/youssefsiam38/historypg/types"
)

// Plan is the rewritten history of one session, grouped in write order.
type Plan struct {
	// Others holds every message whose role is neither user nor the header role,
	// in original order.
	Others []*types.Message

	// Users holds every user message in original order. All but the last have
	// had the scrub fields removed.
	Users []*types.Message

	// Header is the fresh header message appended last.
	Header *types.Message

	// DroppedHeaders is the number of superseded header-role messages.
	DroppedHeaders int

	// ScrubbedMessages is the number of user messages whose content changed.
	ScrubbedMessages int
}

// BuildPlan computes the compacted history for messages. Input messages are
// not modified; scrubbed messages are copies.
func BuildPlan(messages []*types.Message, header string, config *Config) *Plan {
	if config == nil {
		config = DefaultConfig()
	}

	plan := &Plan{
		Header: types.NewMessage(config.HeaderRole, header),
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			plan.Users = append(plan.Users, msg)
		case config.HeaderRole:
			plan.DroppedHeaders++
		default:
			plan.Others = append(plan.Others, msg)
		}
	}

	// The latest user message is the active turn and stays as-is
	for i := 0; i < len(plan.Users)-1; i++ {
		scrubbed, changed := Scrub(plan.Users[i].Content, config.ScrubFields)
		if !changed {
			continue
		}

		msg := plan.Users[i].Clone()
		msg.Content = scrubbed
		plan.Users[i] = msg
		plan.ScrubbedMessages++
	}

	return plan
}

// Messages returns Others, then Users, then Header.
func (p *Plan) Messages() []*types.Message {
	out := make([]*types.Message, 0, len(p.Others)+len(p.Users)+1)
	out = append(out, p.Others...)
	out = append(out, p.Users...)
	out = append(out, p.Header)
	return out
}

// Len returns the number of messages in the rewritten history.
func (p *Plan) Len() int {
	return len(p.Others) + len(p.Users) + 1
}
