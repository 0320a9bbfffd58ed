package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// API key permissions. A key is scoped to the chat operations it may
// call; interactive logins (JWT, session) carry roles instead and are
// not restricted by these scopes.
const (
	PermissionChatAsk          = "chat:ask"
	PermissionChatHistory      = "chat:history"
	PermissionVocabularyReload = "vocabulary:reload"
	PermissionAll              = "*"
)

// DefaultKeyPermissions is the scope set for keys created without an
// explicit permission list: asking questions and reading history, but
// not operational actions like vocabulary reloads.
var DefaultKeyPermissions = []string{PermissionChatAsk, PermissionChatHistory}

// HasPermission reports whether the key grants a scope, either directly
// or through the wildcard.
func (k *APIKey) HasPermission(permission string) bool {
	for _, p := range k.Permissions {
		if p == permission || p == PermissionAll {
			return true
		}
	}
	return false
}

// RequirePermission gates a route on an API key scope. Requests
// authenticated by JWT or session cookie pass through; their access is
// governed by roles, not key scopes.
func (am *AuthManager) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("api_key")
		if !exists {
			c.Next()
			return
		}

		apiKey, ok := value.(*APIKey)
		if !ok || !apiKey.HasPermission(permission) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "PERMISSION_DENIED",
					"message": "API key does not grant " + permission,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
