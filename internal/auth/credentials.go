// ABOUTME: Credential lookup for the terminal client; the value is an API key or a bearer token.
// ABOUTME: Explicit value first, then AGENTCHAT_TOKEN, then the per-user token file.

package auth

import (
	"os"
	"path/filepath"
	"strings"
)

// TokenEnvVar is consulted when no token is configured explicitly.
const TokenEnvVar = "AGENTCHAT_TOKEN"

// DefaultTokenFile returns $XDG_CONFIG_HOME/agentchat/token (or ~/.config/...).
// Returns "" when no home directory can be determined.
func DefaultTokenFile() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "agentchat", "token")
}

// LoadToken resolves the credential. tokenFile defaults to DefaultTokenFile.
// Returns "" when no token is available; the endpoint may not require one.
func LoadToken(explicit, tokenFile string) string {
	if token := strings.TrimSpace(explicit); token != "" {
		return token
	}

	if token := strings.TrimSpace(os.Getenv(TokenEnvVar)); token != "" {
		return token
	}

	if tokenFile == "" {
		tokenFile = DefaultTokenFile()
	}
	if tokenFile == "" {
		return ""
	}

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
