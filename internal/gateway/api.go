// ABOUTME: HTTP API handlers for conversation history and the skill library
// ABOUTME: Read-only JSON endpoints under /api

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/skills"
	"github.com/2389/coven-chat/internal/store"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 500
	defaultTurnLimit         = 100
	maxTurnLimit             = 1000
)

// TurnsResponse is the body of GET /api/conversations/{id}/turns.
type TurnsResponse struct {
	Conversation *store.Conversation `json:"conversation"`
	Turns        []chat.Turn         `json:"turns"`
}

// SkillResponse is the body of GET /api/skills/{name}.
type SkillResponse struct {
	skills.Manifest
	Body string `json:"body"`
	HTML string `json:"html"`
}

func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conversations", g.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", g.handleGetConversation)
	mux.HandleFunc("GET /api/conversations/{id}/turns", g.handleListTurns)
	mux.HandleFunc("GET /api/skills", g.handleListSkills)
	mux.HandleFunc("GET /api/skills/{name}", g.handleGetSkill)
}

// handleListConversations returns recent conversations, newest activity
// first, optionally limited by ?limit=N.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, ok := g.parseLimit(w, r, defaultConversationLimit, maxConversationLimit)
	if !ok {
		return
	}

	conversations, err := g.store.ListConversations(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if conversations == nil {
		conversations = []*store.Conversation{}
	}
	g.writeJSON(w, conversations)
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, conv)
}

// handleListTurns returns the latest turns of a conversation in
// chronological order.
func (g *Gateway) handleListTurns(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	limit, ok := g.parseLimit(w, r, defaultTurnLimit, maxTurnLimit)
	if !ok {
		return
	}

	turns, err := g.store.ListTurns(r.Context(), conv.ID, limit)
	if err != nil {
		g.logger.Error("failed to list turns", "conversation_id", conv.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if turns == nil {
		turns = []chat.Turn{}
	}
	g.writeJSON(w, TurnsResponse{Conversation: conv, Turns: turns})
}

func (g *Gateway) handleListSkills(w http.ResponseWriter, r *http.Request) {
	list := g.skills.List()
	manifests := make([]skills.Manifest, 0, len(list))
	for _, s := range list {
		manifests = append(manifests, s.Manifest)
	}
	g.writeJSON(w, manifests)
}

// handleGetSkill returns the latest version of a skill with its markdown
// body and rendered HTML.
func (g *Gateway) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	skill, ok := g.skills.Latest(r.PathValue("name"))
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "skill not found")
		return
	}
	html, err := skill.HTML()
	if err != nil {
		g.logger.Error("failed to render skill", "skill", skill.Name, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, SkillResponse{Manifest: skill.Manifest, Body: skill.Body, HTML: html})
}

func (g *Gateway) lookupConversation(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	id := r.PathValue("id")
	conv, err := g.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		g.logger.Error("failed to get conversation", "conversation_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return conv, true
}

// parseLimit reads ?limit=N, applying def when absent and capping at ceiling.
func (g *Gateway) parseLimit(w http.ResponseWriter, r *http.Request, def, ceiling int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, ceiling), true
}

func (g *Gateway) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
