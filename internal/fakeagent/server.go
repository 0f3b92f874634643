// ABOUTME: Scripted stand-in for the agent execution service, used by tests and cmd/fake-agent.
// ABOUTME: Serves the SSE stream endpoint and the legacy JSON execute endpoint over chi.

package fakeagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/2389/agentchat/internal/auth"
	"github.com/2389/agentchat/internal/frame"
)

// maxRequestBodySize bounds task request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Script decides which frames answer a task. It must not include the end
// frame; the server appends it with the conversation ID.
type Script func(req frame.TaskRequest) []frame.Frame

// Options tune how the server streams.
type Options struct {
	// Script defaults to EchoScript
	Script Script
	// Delay is slept before each frame
	Delay time.Duration
	// HoldOpen keeps the stream open after the scripted frames until the
	// client disconnects, without sending an end frame.
	HoldOpen bool
	// OmitEnd closes the stream after the scripted frames without an end frame.
	OmitEnd bool
	// APIKeys, when set, admits requests whose X-API-Key header it accepts.
	APIKeys *auth.APIKeys
	// Verifier, when set, admits requests with a valid bearer token.
	Verifier auth.TokenVerifier
}

// Exchange is one accepted task request and the caller that sent it. Caller
// is zero when authentication is off.
type Exchange struct {
	Request frame.TaskRequest
	Caller  auth.Caller
}

// Server is an http.Handler implementing the agent endpoints.
type Server struct {
	opts     Options
	router   chi.Router
	validate *validator.Validate
	logger   *slog.Logger

	mu        sync.Mutex
	exchanges []Exchange
}

type callerKey struct{}

// New creates a Server. Pass nil logger for default.
func New(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Script == nil {
		opts.Script = EchoScript
	}

	s := &Server{
		opts:     opts,
		validate: validator.New(),
		logger:   logger.With("component", "fake-agent"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/agent", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/stream", s.handleStream)
			r.Post("/execute", s.handleExecute)
		})
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Requests returns every accepted task request in arrival order.
func (s *Server) Requests() []frame.TaskRequest {
	exchanges := s.Exchanges()
	out := make([]frame.TaskRequest, len(exchanges))
	for i, ex := range exchanges {
		out[i] = ex.Request
	}
	return out
}

// Exchanges returns every accepted task request with its caller, in arrival order.
func (s *Server) Exchanges() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Agent is running!"))
}

// authenticate admits requests carrying an accepted API key or bearer token
// when either check is configured, and tags them with their caller. The
// health endpoint stays open.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKeys == nil && s.opts.Verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		caller, err := s.identify(r)
		if err != nil {
			s.logger.Warn("rejected request", "path", r.URL.Path, "error", err)
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				sendAuthError(w, "token expired", "TOKEN_EXPIRED")
			case s.opts.APIKeys == nil:
				sendAuthError(w, "Missing or invalid bearer token", "INVALID_TOKEN")
			default:
				sendAuthError(w, "Missing or invalid API key", "INVALID_API_KEY")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// identify checks the API key header first, then the bearer token.
func (s *Server) identify(r *http.Request) (auth.Caller, error) {
	if key := r.Header.Get(auth.APIKeyHeader); key != "" && s.opts.APIKeys != nil {
		return s.opts.APIKeys.Check(key)
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if ok && token != "" && s.opts.Verifier != nil {
		claims, err := s.opts.Verifier.Verify(token)
		if err != nil {
			return auth.Caller{}, err
		}
		return claims.Caller(), nil
	}

	if s.opts.APIKeys != nil {
		return auth.Caller{}, auth.ErrMissingAPIKey
	}
	return auth.Caller{}, auth.ErrInvalidToken
}

// decodeTask parses and validates the request body, recording it on success.
func (s *Server) decodeTask(w http.ResponseWriter, r *http.Request) (frame.TaskRequest, bool) {
	var req frame.TaskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s failed %s validation", verrs[0].Field(), verrs[0].Tag()))
			return req, false
		}
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return req, false
	}

	caller, _ := r.Context().Value(callerKey{}).(auth.Caller)
	s.mu.Lock()
	s.exchanges = append(s.exchanges, Exchange{Request: req, Caller: caller})
	s.mu.Unlock()

	return req, true
}

// conversationID echoes the client's ID or assigns a new one on the first turn.
func conversationID(req frame.TaskRequest) string {
	if req.ConversationID != "" {
		return req.ConversationID
	}
	return uuid.New().String()
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTask(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	convID := conversationID(req)
	s.logger.Debug("stream started", "conversation_id", convID, "task", req.Task)

	ctx := r.Context()
	for _, f := range s.opts.Script(req) {
		if !s.sleep(r) {
			return
		}
		if err := frame.Write(w, f); err != nil {
			s.logger.Debug("client went away", "error", err)
			return
		}
		flusher.Flush()
	}

	switch {
	case s.opts.HoldOpen:
		<-ctx.Done()
	case s.opts.OmitEnd:
	default:
		if !s.sleep(r) {
			return
		}
		frame.Write(w, frame.End(convID))
		flusher.Flush()
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTask(w, r)
	if !ok {
		return
	}
	if !s.sleep(r) {
		return
	}

	result := BuildResult(s.opts.Script(req), req.Task)
	result.ConversationID = conversationID(req)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// sleep waits the configured delay, returning false if the client left.
func (s *Server) sleep(r *http.Request) bool {
	if s.opts.Delay <= 0 {
		return true
	}
	select {
	case <-r.Context().Done():
		return false
	case <-time.After(s.opts.Delay):
		return true
	}
}

// sendAuthError writes a 401 with the agent service's error shape.
func sendAuthError(w http.ResponseWriter, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "errorCode": code})
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
