// Package config handles configuration loading for agentchat.
//
// # Configuration File
//
// The client reads $XDG_CONFIG_HOME/agentchat/config.yaml when it exists, or
// the file named by -config. Files ending in .toml are parsed as TOML; every
// other extension is parsed as YAML. Keys left out keep the values from
// Default.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${AGENTCHAT_TOKEN}"
//
// Unset variables expand to the empty string. The binaries load a .env file
// from the working directory before the config is read.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  dial_timeout: "5s"
//
// # Example
//
//	server:
//	  base_url: "http://localhost:8080"
//	  mode: "stream"          # or "execute" for the non-streaming endpoint
//	  dial_timeout: "10s"
//	auth:
//	  scheme: "api_key"       # X-API-Key header; "bearer" sends a JWT instead
//	  token_file: "~/.config/agentchat/token"
//	logging:
//	  level: "info"
//	  format: "text"
//	display:
//	  markdown: true
package config
