// Package store persists conversations and their turn logs in SQLite.
//
// # Model
//
//   - Conversation: one room's durable record. Its title is derived lazily
//     from the first user turn saved into it.
//   - Turn: chat.Turn rows, append-only, ordered by creation time.
//
// SaveTurn creates the conversation on first use, so callers never need a
// separate create step.
//
// MockStore is an in-memory twin used by tests in other packages.
package store
