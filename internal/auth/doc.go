// Package auth handles credentials for the agent endpoint.
//
// # Schemes
//
// The agent service authenticates with an API key sent in the X-API-Key
// header. Keys start with "sk-"; a primary and a rotation key may both be
// valid. SchemeAPIKey is the default. SchemeBearer sends an HS256 JWT in the
// Authorization header instead, for deployments fronted by a token gateway.
// Only /api/agent/health is reachable without a credential.
//
// # Client Side
//
// The terminal client resolves its credential with LoadToken:
//
//  1. the value from configuration (auth.token)
//  2. the AGENTCHAT_TOKEN environment variable
//  3. the token file (auth.token_file, default ~/.config/agentchat/token)
//
// In bearer mode Inspect decodes the claims without the signing secret so the
// client can warn about an expired token before the server rejects it. In API
// key mode CheckAPIKeyFormat flags keys missing the "sk-" prefix.
//
// # Server Side
//
// APIKeys checks keys and JWTVerifier mints and verifies tokens. The
// simulated agent uses them to reject unauthenticated requests and to record
// the Caller behind each accepted task.
package auth
