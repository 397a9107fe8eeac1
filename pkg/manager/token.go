package manager

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TokenManager holds the security key of every session. The key is handed
// to the client in the first response and must open every later payload.
type TokenManager struct {
	tokens map[string]*SecurityToken
	mu     sync.RWMutex
}

// SecurityToken is the key issued to one session
type SecurityToken struct {
	Token     string
	SessionID string
	CreatedAt time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[string]*SecurityToken),
	}
}

// GenerateToken issues a fresh key for sessionID, replacing any earlier one
func (tm *TokenManager) GenerateToken(sessionID string) *SecurityToken {
	st := &SecurityToken{
		Token:     uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}

	tm.mu.Lock()
	tm.tokens[sessionID] = st
	tm.mu.Unlock()

	return st
}

// Token returns the key of sessionID
func (tm *TokenManager) Token(sessionID string) (string, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	st, ok := tm.tokens[sessionID]
	if !ok {
		return "", false
	}
	return st.Token, true
}

// ValidateToken checks a key presented for sessionID
func (tm *TokenManager) ValidateToken(sessionID, token string) error {
	expected, ok := tm.Token(sessionID)
	if !ok {
		return fmt.Errorf("%w: no key issued for session", ErrSecurityKeyMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
		return ErrSecurityKeyMismatch
	}
	return nil
}

// RevokeToken forgets the key of sessionID
func (tm *TokenManager) RevokeToken(sessionID string) {
	tm.mu.Lock()
	delete(tm.tokens, sessionID)
	tm.mu.Unlock()
}

// Len returns the number of issued keys
func (tm *TokenManager) Len() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.tokens)
}
