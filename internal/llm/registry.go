// ABOUTME: Provider registry mapping selection tags to concrete backends
// ABOUTME: Constructed once at startup and passed to the orchestrator

package llm

import (
	"context"
	"errors"
	"strings"
)

// Selection is the per-request provider tag.
type Selection string

const (
	Primary   Selection = "primary"
	Secondary Selection = "secondary"
	Tertiary  Selection = "tertiary"
)

// ErrNoPrimary is returned when a registry is built without a primary backend.
var ErrNoPrimary = errors.New("primary backend is required")

// ParseSelection normalizes a wire tag. Unknown or empty values become Primary.
func ParseSelection(s string) Selection {
	switch sel := Selection(strings.ToLower(strings.TrimSpace(s))); sel {
	case Primary, Secondary, Tertiary:
		return sel
	}
	return Primary
}

// Backend is one concrete model endpoint.
type Backend interface {
	Complete(ctx context.Context, messages []Message) (*Response, error)
}

// Registry resolves selections to backends.
type Registry struct {
	backends map[Selection]Backend
	critic   Backend
}

// NewRegistry builds a registry. backends must contain Primary; missing
// secondary or tertiary entries resolve to primary. A nil critic reuses
// the primary backend.
func NewRegistry(backends map[Selection]Backend, critic Backend) (*Registry, error) {
	if backends[Primary] == nil {
		return nil, ErrNoPrimary
	}
	r := &Registry{
		backends: make(map[Selection]Backend, len(backends)),
		critic:   critic,
	}
	for sel, b := range backends {
		if b != nil {
			r.backends[ParseSelection(string(sel))] = b
		}
	}
	if r.critic == nil {
		r.critic = r.backends[Primary]
	}
	return r, nil
}

// Resolve returns the backend for sel, falling back to primary.
func (r *Registry) Resolve(sel Selection) Backend {
	if b, ok := r.backends[ParseSelection(string(sel))]; ok {
		return b
	}
	return r.backends[Primary]
}

// Invoke runs messages against exactly one backend chosen by sel.
// Backend errors are returned unchanged.
func (r *Registry) Invoke(ctx context.Context, sel Selection, messages []Message) (*Response, error) {
	return r.Resolve(sel).Complete(ctx, messages)
}

// Critic returns the low-temperature, non-streaming backend used for
// internal checks. It is never selected for room dispatch, and nothing in
// this module calls it yet.
func (r *Registry) Critic() Backend {
	return r.critic
}
