// Package historypg keeps conversation histories in a session store and
// compacts them between turns.
//
// A session is an ordered message log identified by a session ID. Compaction
// rewrites one session so that the next model call sees a smaller, cleaner
// history:
//
//   - Every message with the header role ("developer" by default) is dropped.
//   - Every user message except the latest has its scrub fields
//     ("grade_details" by default) removed from its JSON content. Content that
//     is not a JSON object is left exactly as stored.
//   - The history is written back as all other messages, then all user
//     messages, then one fresh header message.
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	store := storage.NewPostgresStore(pool)
//	_ = store.Migrate(ctx)
//
//	client, err := historypg.New(store, historypg.WithLogger(slog.Default()))
//	session := client.Session("conversation-42")
//
//	_ = session.Append(ctx, types.NewMessage(types.RoleUser, `{"answer":"42","grade_details":{"score":3}}`))
//	result, err := session.Compact(ctx, "Grade the next answer strictly.")
//
// # Stores
//
// Any storage.Store works. How the rewrite is applied depends on what else the
// store implements:
//
//   - storage.Replacer (PostgresStore, SQLStore, RedisStore): one atomic replace.
//   - storage.Stager (MemoryStore): the original history is staged first and can
//     be restored with Client.Recover if the rewrite fails midway. The
//     maintenance package restores stale staged copies periodically.
//   - Neither: delete followed by appends, with no recovery on failure.
//
// PostgreSQL stores also record every compaction; see Client.CompactionHistory.
//
// # Concurrency
//
// A Client serializes rewrites of the same session in-process and returns
// ErrCompactionInProgress to a second caller instead of waiting. Callers
// running several processes against one store must serialize per session
// themselves.
package historypg
