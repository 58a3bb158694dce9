// Package nonce issues and verifies short-lived request tokens bound to an
// action and a session. Tokens are stateless: the server only keeps a secret.
package nonce

import (
	"crypto/subtle"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Actions protected by a nonce
const (
	ActionBulk     = "w3a11y_alttext_bulk"
	ActionGenerate = "w3a11y_artisan_generate"
)

const tokenLength = 10

// Manager creates and verifies tokens
type Manager struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewManager(secret string, lifetime time.Duration) *Manager {
	return &Manager{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// tick counts half-lifetimes since the epoch, rounded up
func (m *Manager) tick(t time.Time) int64 {
	half := int64(m.lifetime / 2)
	n := t.UnixNano()
	return (n + half - 1) / half
}

func (m *Manager) token(tick int64, action, session string) string {
	// the key is at most 64 bytes; longer secrets are hashed first
	key := m.secret
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		panic(err)
	}
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(tick >> (56 - 8*i))
	}
	h.Write(buf[:])
	h.Write([]byte{'|'})
	h.Write([]byte(action))
	h.Write([]byte{'|'})
	h.Write([]byte(session))
	return hex.EncodeToString(h.Sum(nil))[:tokenLength]
}

// Create returns the token for action and session valid from now
func (m *Manager) Create(action, session string) string {
	return m.token(m.tick(m.now()), action, session)
}

// Verify returns 1 when token was issued in the current half-lifetime, 2 when
// issued in the previous one and 0 when it is invalid or expired.
func (m *Manager) Verify(token, action, session string) int {
	if len(token) != tokenLength {
		return 0
	}
	tick := m.tick(m.now())
	if subtle.ConstantTimeCompare([]byte(token), []byte(m.token(tick, action, session))) == 1 {
		return 1
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(m.token(tick-1, action, session))) == 1 {
		return 2
	}
	return 0
}

// Valid reports whether Verify accepts token
func (m *Manager) Valid(token, action, session string) bool {
	return m.Verify(token, action, session) > 0
}
