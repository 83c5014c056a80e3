// Package toolgw connects to external MCP tool servers on demand.
//
// Every operation opens a fresh session, performs one list or call, and
// closes the session before returning, on both the success and the failure
// path. No connection is pooled or handed to the caller.
//
// # Targets
//
// A Target is either a URL (streamable HTTP transport, http or https only)
// or a command with arguments (stdio transport). Targets are validated
// before any connection is attempted.
//
// # Errors
//
// Validation problems are returned as *ValidationError. Everything else
// (connect failures, protocol errors, unknown capabilities) is logged with
// full detail and surfaced as one of two opaque errors, ErrListFailed or
// ErrInvokeFailed.
//
// # HTTP
//
// Handler exposes the gateway to browsers:
//
//	POST /tool-gateway/connect  {url} | {command, args}
//	POST /tool-gateway/call     {url | command+args, capabilityName, capabilityArgs}
package toolgw
