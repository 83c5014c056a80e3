// ABOUTME: HTTP handlers for /tool-gateway/connect and /tool-gateway/call
// ABOUTME: Validation errors map to 400, tool server failures to 500

package toolgw

import (
	"encoding/json"
	"errors"
	"net/http"
)

const maxRequestBody = 1 << 20

// ConnectRequest is the body of POST /tool-gateway/connect.
type ConnectRequest struct {
	URL     string   `json:"url,omitempty"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// Target converts the request into a Target.
func (r ConnectRequest) Target() Target {
	return Target{URL: r.URL, Command: r.Command, Args: r.Args}
}

// CallRequest is the body of POST /tool-gateway/call.
type CallRequest struct {
	ConnectRequest
	CapabilityName string         `json:"capabilityName"`
	CapabilityArgs map[string]any `json:"capabilityArgs,omitempty"`
}

// Handler serves the tool gateway over HTTP.
type Handler struct {
	gw *Gateway
}

// NewHandler wraps gw.
func NewHandler(gw *Gateway) *Handler {
	return &Handler{gw: gw}
}

// RegisterRoutes mounts the tool gateway endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /tool-gateway/connect", h.handleConnect)
	mux.HandleFunc("POST /tool-gateway/call", h.handleCall)
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	listing, err := h.gw.ListCapabilities(r.Context(), req.Target())
	if err != nil {
		sendGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.gw.InvokeCapability(r.Context(), req.Target(), req.CapabilityName, req.CapabilityArgs)
	if err != nil {
		sendGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func sendGatewayError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		sendJSONError(w, http.StatusBadRequest, verr.Message)
		return
	}
	sendJSONError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
