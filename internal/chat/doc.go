// Package chat defines the conversation data model shared by every layer.
//
// A Turn is one role-tagged message in a room. Turns are immutable once
// created: the orchestrator appends new turns and never edits or removes
// existing ones.
//
// Roles form a closed set:
//
//   - user, system, assistant
//   - tool-result (output of an out-of-band tool invocation)
//   - function-result (carries an optional Name)
//   - generic-chat (carries an optional SubRole)
//
// ParseRole maps anything outside that set to RoleUser.
package chat
