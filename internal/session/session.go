// Package session stores server-side login state in Redis, keyed by the
// opaque ID carried in the session cookie.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "chat:session:"

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Session is the login state a chat client resumes between requests.
type Session struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager persists sessions with a fixed TTL. Redis expiry is the
// primary eviction mechanism; the ExpiresAt field is a belt check for
// clock skew between replicas.
type Manager struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewManager(rdb *redis.Client, ttl time.Duration) *Manager {
	return &Manager{rdb: rdb, ttl: ttl}
}

// Create stamps the session's lifetime, stores it, and returns the
// opaque ID to hand to the client.
func (m *Manager) Create(ctx context.Context, sess Session) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	now := time.Now()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(m.ttl)

	payload, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := m.rdb.Set(ctx, keyPrefix+id, payload, m.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

// Get loads a session by ID. Expired sessions are deleted on read.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	payload, err := m.rdb.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = m.Delete(ctx, id)
		return nil, ErrExpired
	}
	return &sess, nil
}

// Delete drops a session, ending the login.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.rdb.Del(ctx, keyPrefix+id).Err()
}

// Refresh restarts the session's lifetime so an active client stays
// logged in. The stored ExpiresAt moves along with the Redis TTL.
func (m *Manager) Refresh(ctx context.Context, id string) error {
	payload, err := m.rdb.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	sess.ExpiresAt = time.Now().Add(m.ttl)

	updated, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return m.rdb.Set(ctx, keyPrefix+id, updated, m.ttl).Err()
}

func newSessionID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
