// Package auth authenticates chat API callers. Three credential kinds
// are accepted: JWT bearer tokens for interactive logins, API keys for
// programmatic access, and Redis-backed session cookies for browsers.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/seanankenbruck/analytics-chat/internal/session"
)

// User is an account that may run chat queries.
type User struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	Roles        []string          `json:"roles"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Active       bool              `json:"active"`
}

// APIKey is a programmatic credential scoped to chat permissions.
// The plaintext Key is returned once at creation; only its hash is kept.
type APIKey struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key,omitempty"` // Plaintext (only shown once)
	HashedKey   string    `json:"-"`
	UserID      string    `json:"user_id"`
	Permissions []string  `json:"permissions"`
	RateLimit   int       `json:"rate_limit"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	Active      bool      `json:"active"`
}

// Claims is the JWT payload for interactive logins.
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	SessionExpiry  time.Duration
	RateLimit      int
	AllowAnonymous bool
}

// AuthManager keeps users and API keys in memory and delegates session
// state to Redis so logins survive pod restarts.
type AuthManager struct {
	config         AuthConfig
	users          map[string]*User   // userID -> User
	apiKeys        map[string]*APIKey // hashedKey -> APIKey
	userByUsername map[string]*User
	sessionManager *session.Manager
	mu             sync.RWMutex
}

// NewAuthManager builds a manager with a seeded admin account. A blank
// JWT secret gets a random one, which invalidates tokens on restart;
// production deployments configure JWT_SECRET explicitly.
func NewAuthManager(config AuthConfig, sessionManager *session.Manager) *AuthManager {
	if config.JWTExpiry == 0 {
		config.JWTExpiry = 24 * time.Hour
	}
	if config.SessionExpiry == 0 {
		config.SessionExpiry = 7 * 24 * time.Hour
	}
	if config.RateLimit == 0 {
		config.RateLimit = 100
	}
	if config.JWTSecret == "" {
		config.JWTSecret = generateRandomString(32)
	}

	am := &AuthManager{
		config:         config,
		users:          make(map[string]*User),
		apiKeys:        make(map[string]*APIKey),
		userByUsername: make(map[string]*User),
		sessionManager: sessionManager,
	}
	am.seedAdminUser()
	return am
}

// CreateUser registers an account without a password, for admin-created
// users that will authenticate by API key.
func (am *AuthManager) CreateUser(username, email string, roles []string) (*User, error) {
	return am.CreateUserWithPassword(username, email, "", roles)
}

// CreateUserWithPassword registers an account. The password is bcrypt
// hashed; an empty password leaves the account key-only.
func (am *AuthManager) CreateUserWithPassword(username, email, password string, roles []string) (*User, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.userByUsername[username]; exists {
		return nil, fmt.Errorf("user already exists: %s", username)
	}

	var passwordHash string
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		passwordHash = string(hashed)
	}

	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		Metadata:     make(map[string]string),
		Active:       true,
	}
	am.users[user.ID] = user
	am.userByUsername[username] = user
	return user, nil
}

// ValidatePassword checks a login attempt against the stored hash.
// Accounts without a password hash accept any password; the seeded
// admin relies on this until a password is set.
func (am *AuthManager) ValidatePassword(user *User, password string) bool {
	if user.PasswordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// GetUser retrieves a user by ID.
func (am *AuthManager) GetUser(userID string) (*User, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	user, exists := am.users[userID]
	if !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (am *AuthManager) GetUserByUsername(username string) (*User, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	user, exists := am.userByUsername[username]
	if !exists {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	return user, nil
}

// CreateAPIKey mints a key for a user. An empty permission list gets
// DefaultKeyPermissions, which covers asking and reading history.
func (am *AuthManager) CreateAPIKey(userID, name string, permissions []string, rateLimit int, expiresIn time.Duration) (*APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.users[userID]; !exists {
		return nil, fmt.Errorf("user not found: %s", userID)
	}

	if len(permissions) == 0 {
		permissions = DefaultKeyPermissions
	}

	key := generateAPIKey()
	hashedKey := hashAPIKey(key)

	apiKey := &APIKey{
		ID:          uuid.New().String(),
		Name:        name,
		Key:         key,
		HashedKey:   hashedKey,
		UserID:      userID,
		Permissions: permissions,
		RateLimit:   rateLimit,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(expiresIn),
		Active:      true,
	}
	am.apiKeys[hashedKey] = apiKey
	return apiKey, nil
}

// ValidateAPIKey resolves a plaintext key to its user, rejecting
// revoked and expired keys, and stamps the key's last use.
func (am *AuthManager) ValidateAPIKey(key string) (*User, *APIKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	apiKey, exists := am.apiKeys[hashAPIKey(key)]
	if !exists {
		return nil, nil, fmt.Errorf("invalid API key")
	}
	if !apiKey.Active {
		return nil, nil, fmt.Errorf("API key is inactive")
	}
	if time.Now().After(apiKey.ExpiresAt) {
		return nil, nil, fmt.Errorf("API key has expired")
	}

	user, exists := am.users[apiKey.UserID]
	if !exists {
		return nil, nil, fmt.Errorf("user not found for API key")
	}
	if !user.Active {
		return nil, nil, fmt.Errorf("user is inactive")
	}

	apiKey.LastUsedAt = time.Now()
	return user, apiKey, nil
}

// CreateJWTToken signs a token carrying the user's identity and roles.
func (am *AuthManager) CreateJWTToken(user *User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(am.config.JWTExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "analytics-chat",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(am.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateJWTToken parses and verifies a token, then confirms the user
// behind it still exists and is active.
func (am *AuthManager) ValidateJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.config.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	am.mu.RLock()
	user, exists := am.users[claims.UserID]
	am.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("user not found")
	}
	if !user.Active {
		return nil, fmt.Errorf("user is inactive")
	}
	return claims, nil
}

// CreateSession starts a Redis-backed login for a user and returns the
// cookie value.
func (am *AuthManager) CreateSession(userID string) (string, error) {
	am.mu.RLock()
	user, exists := am.users[userID]
	am.mu.RUnlock()

	if !exists {
		return "", fmt.Errorf("user not found: %s", userID)
	}

	token, err := am.CreateJWTToken(user)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	sessionID, err := am.sessionManager.Create(context.Background(), session.Session{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.Roles,
		Token:    token,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sessionID, nil
}

// ValidateSession resolves a session cookie to its user and slides the
// session's expiry forward. A failed refresh does not fail the request.
func (am *AuthManager) ValidateSession(sessionID string) (*User, error) {
	sess, err := am.sessionManager.Get(context.Background(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	am.mu.RLock()
	user, exists := am.users[sess.UserID]
	am.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("user not found for session")
	}
	if !user.Active {
		return nil, fmt.Errorf("user is inactive")
	}

	_ = am.sessionManager.Refresh(context.Background(), sessionID)

	return user, nil
}

// RevokeAPIKey deactivates a key by its ID.
func (am *AuthManager) RevokeAPIKey(keyID string) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	for _, apiKey := range am.apiKeys {
		if apiKey.ID == keyID {
			apiKey.Active = false
			return nil
		}
	}
	return fmt.Errorf("API key not found: %s", keyID)
}

// RevokeSession ends a login. Sessions already gone are not an error.
func (am *AuthManager) RevokeSession(sessionID string) error {
	return am.sessionManager.Delete(context.Background(), sessionID)
}

// CleanupExpired drops expired API keys. Sessions expire on their own
// through the Redis TTL.
func (am *AuthManager) CleanupExpired() {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := time.Now()
	for hash, apiKey := range am.apiKeys {
		if now.After(apiKey.ExpiresAt) {
			delete(am.apiKeys, hash)
		}
	}
}

// ListAPIKeys returns a user's keys with the plaintext stripped.
func (am *AuthManager) ListAPIKeys(userID string) ([]*APIKey, error) {
	am.mu.RLock()
	defer am.mu.RUnlock()

	var keys []*APIKey
	for _, apiKey := range am.apiKeys {
		if apiKey.UserID == userID {
			keyCopy := *apiKey
			keyCopy.Key = ""
			keys = append(keys, &keyCopy)
		}
	}
	return keys, nil
}

// ListUsers returns all users (admin only).
func (am *AuthManager) ListUsers() []*User {
	am.mu.RLock()
	defer am.mu.RUnlock()

	users := make([]*User, 0, len(am.users))
	for _, user := range am.users {
		users = append(users, user)
	}
	return users
}

// seedAdminUser installs the default admin account. The ID is fixed so
// every replica agrees on it.
func (am *AuthManager) seedAdminUser() {
	am.mu.Lock()
	defer am.mu.Unlock()

	if _, exists := am.userByUsername["admin"]; exists {
		return
	}

	user := &User{
		ID:       "00000000-0000-0000-0000-000000000001",
		Username: "admin",
		Email:    "admin@example.com",
		Roles:    []string{"admin", "user"},
		Metadata: make(map[string]string),
		Active:   true,
	}
	am.users[user.ID] = user
	am.userByUsername[user.Username] = user
}

func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

// generateAPIKey mints a key with the service's "ac_" prefix.
func generateAPIKey() string {
	return "ac_" + generateRandomString(32)
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
