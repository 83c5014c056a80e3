// Package llm normalizes heterogeneous model backends behind one contract.
//
// # Messages
//
// Message is a closed sum type with one concrete struct per chat role. The
// unexported sealed method keeps implementations inside this package, and
// vendor adapters type-switch over every concrete type.
//
// # Registry
//
// A Registry is built once at startup from configuration and injected into
// the orchestrator. Each Selection (primary, secondary, tertiary) maps to a
// distinct Backend. Unknown or empty selections resolve to primary. A
// separate critic backend exists for internal checks and is never reachable
// through a Selection.
//
// Backends stream or not depending on their own configuration; callers always
// receive a single aggregated Response. Errors propagate unchanged and nothing
// is retried.
package llm
