// Package conversation drives a single chat turn from receipt to reply.
//
// # Orchestrator
//
// Each accepted turn walks a small state machine:
//
//	RECEIVED -> ECHOED -> COMPOSED -> DISPATCHED -> COMPLETED | FAILED
//
// The raw turn is echoed to the room before anything else, whatever its
// role. Only user turns go further: the composer builds
// [optional skills system message] + [user message], the provider registry
// is invoked once, and the reply is broadcast as an assistant turn. Any
// failure after the echo broadcasts one room-scoped error event instead;
// the echoed turn stays.
//
// Dispatches run on their own goroutines and are not ordered against each
// other. Two quick turns in one room may complete in either order, and the
// replies are broadcast in completion order. A dispatch outlives the
// request that started it; Wait blocks until all in-flight dispatches
// finish. Each dispatch is one span on the configured tracer.
//
// Prior room history is not replayed to the provider. Each dispatch sees
// only its own turn plus skills context.
//
// # Test harness
//
// TestPrompt runs an ad-hoc message list (or a single prompt and role)
// against a provider and returns the reply directly. It touches no room and
// records nothing.
package conversation
