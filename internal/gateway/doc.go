// Package gateway is the composition root of coven-chat.
//
// New builds every component once from configuration and injects it where
// it is needed:
//
//	store (SQLite) ──────────────┐
//	providers (llm.Registry) ────┤
//	skills (skills.Registry) ────┼─> conversation.Orchestrator ─> room.Manager
//	                             │
//	toolgw.Gateway ──────────────┴─> socket.Server (/ws)
//
// # HTTP surface
//
//	GET  /health                         liveness, always open
//	GET  /health/ready                   store reachable
//	GET  /ws                             WebSocket channel
//	POST /tool-gateway/connect           list capabilities of a tool server
//	POST /tool-gateway/call              invoke one capability
//	GET  /api/conversations              recent conversations
//	GET  /api/conversations/{id}         one conversation
//	GET  /api/conversations/{id}/turns   latest turns, oldest first
//	GET  /api/skills                     skill manifests
//	GET  /api/skills/{name}              one skill with rendered HTML
//
// Everything except /health* requires a bearer token when auth.jwt_secret
// is configured.
//
// # Lifecycle
//
// Run listens on server.http_addr, or on a Tailscale node when tailscale is
// enabled, and serves until its context is canceled. Shutdown then closes
// WebSocket connections, drains HTTP, waits for in-flight dispatches so
// their replies reach the store, and closes the store.
package gateway
