package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nerrad567/thinglink-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// tokenRequest is the request body for POST /auth/token.
type tokenRequest struct {
	APIKey string `json:"api_key"`
	Client string `json:"client"`
}

// tokenResponse is the response body for POST /auth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleToken exchanges the configured API key for a bearer token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "token issue is disabled")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	token, err := s.issuer.Exchange(req.APIKey, req.Client)
	switch {
	case errors.Is(err, auth.ErrNoAPIKey):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "api key exchange is not configured")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
		return
	case err != nil:
		s.logger.Error("failed to issue token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.issuer.TTL().Seconds()),
	})
}

// handleWSTicket issues a single-use WebSocket ticket so the JWT never
// appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := generateTicket()
	s.tickets.put(ticket, claimsFrom(r.Context()))

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket tickets until they are used or
// expire.
type ticketStore struct {
	mu      sync.Mutex
	tickets *cache.Cache
}

func newTicketStore(ttl time.Duration) *ticketStore {
	return &ticketStore{tickets: cache.New(ttl, 2*ttl)}
}

func (t *ticketStore) put(ticket string, claims *auth.Claims) {
	t.tickets.Set(ticket, claims, cache.DefaultExpiration)
}

// take consumes a ticket. The second use of a ticket fails.
func (t *ticketStore) take(ticket string) (*auth.Claims, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.tickets.Get(ticket)
	if !ok {
		return nil, false
	}
	t.tickets.Delete(ticket)
	claims, _ := v.(*auth.Claims) //nolint:errcheck // nil claims when auth is disabled
	return claims, true
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
