// ABOUTME: Tool server target description and validation
// ABOUTME: A target is an http(s) URL or a local command with arguments

package toolgw

import (
	"net/url"
	"strings"
)

// Transport kinds.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// ValidationError reports a malformed request. Nothing was connected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Target identifies a tool server. URL takes precedence over Command.
type Target struct {
	URL     string   `json:"url,omitempty"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// Transport returns TransportHTTP for URL targets and TransportStdio otherwise.
func (t Target) Transport() string {
	if strings.TrimSpace(t.URL) != "" {
		return TransportHTTP
	}
	return TransportStdio
}

// Validate checks the target without connecting to it.
func (t Target) Validate() error {
	if t.Transport() == TransportHTTP {
		u, err := url.Parse(strings.TrimSpace(t.URL))
		if err != nil {
			return &ValidationError{Message: "invalid URL"}
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return &ValidationError{Message: "URL must use http or https"}
		}
		if u.Host == "" {
			return &ValidationError{Message: "URL must include a host"}
		}
		return nil
	}
	if strings.TrimSpace(t.Command) == "" {
		return &ValidationError{Message: "command is required"}
	}
	return nil
}

// String is used in log lines.
func (t Target) String() string {
	if t.Transport() == TransportHTTP {
		return strings.TrimSpace(t.URL)
	}
	return strings.TrimSpace(strings.Join(append([]string{t.Command}, t.Args...), " "))
}
