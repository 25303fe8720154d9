// Package compaction rewrites a session's message history so that it can be
// carried forward into the next turn.
//
// A compaction reads the full history of one session and replaces it with:
//
//   - every message whose role is neither user nor the header role, in original order
//   - every user message in original order, with the configured scrub fields removed
//     from the JSON content of all but the latest one
//   - exactly one fresh header message (role developer by default)
//
// Previous header-role messages are dropped. The latest user message is never
// modified.
//
// # Content Handling
//
// User message content is parsed into a tagged result: Parsed when the content is
// a JSON object, Unparsed otherwise. Only Parsed content is scrubbed; the bytes that
// remain after removing a field are kept verbatim, so key order, spacing and
// non-ASCII text are not rewritten. Unparsed content is stored exactly as it was.
//
// # Usage
//
//	compactor := compaction.New(store, &compaction.Config{
//	    ScrubFields: []string{"grade_details"},
//	}, logger)
//
//	result, err := compactor.Compact(ctx, sessionID, "You are grading essay #4.")
//	if err != nil {
//	    return err
//	}
//	log.Printf("kept %d messages, scrubbed %d", result.FinalMessages, result.ScrubbedMessages)
//
// BuildPlan runs the same transformation without a store.
//
// # Store Integration
//
// The replacement is applied in the strongest mode the store supports:
//
//   - ModeAtomic: the store implements storage.Replacer (PostgreSQL, Redis).
//   - ModeStaged: the store implements storage.Stager. The original list is saved to
//     a staging key first; if the rewrite fails the copy stays for Recover.
//   - ModeSequential: delete followed by appends. A failure part way leaves the
//     session partially written.
//
// # Thread Safety
//
// The Compactor holds no per-session state and is safe for concurrent use across
// sessions. Concurrent compactions of the same session interleave their store calls
// and must be serialized by the caller.
package compaction
