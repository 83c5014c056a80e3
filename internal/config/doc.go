// Package config handles configuration loading for coven-chat.
//
// # Configuration File
//
// Location, first match wins:
//
//  1. Path from the COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.yaml
//  3. ~/.config/coven/chat.yaml
//
// Files ending in .toml are read as TOML. Everything else is YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}. Unset
// variables expand to the empty string.
//
//	providers:
//	  primary:
//	    api_key: "${OPENAI_API_KEY}"
//
// # Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"    # required unless tailscale is enabled
//	  shutdown_timeout: "15s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "coven-chat"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
//	database:
//	  path: "/var/lib/coven/chat.db"
//
//	auth:
//	  jwt_secret: "${COVEN_CHAT_JWT_SECRET}"   # optional, at least 32 bytes
//
//	providers:
//	  primary:   {kind: openai, model: gpt-4o-mini, temperature: 0.7, streaming: true}
//	  secondary: {kind: anthropic, model: claude-sonnet, max_tokens: 4096}
//	  tertiary:  {kind: gemini, model: gemini-2.5-flash}
//	  critic:    {kind: openai, model: gpt-4o}   # optional override
//
//	skills:
//	  dir: "/etc/coven/skills"
//
//	realtime:
//	  write_timeout: "10s"
//	  ping_interval: "30s"
//	  send_buffer: 64
//	  dedupe_window: "2m"   # how long clientMessageId values are remembered
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use time.ParseDuration syntax and must be positive.
package config
