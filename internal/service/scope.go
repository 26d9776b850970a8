package service

import (
	"strings"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
)

// HasScope resolves the permission hierarchy for one required scope of
// shape "resource:action":
//   - exact scope match
//   - "resource:admin" grants every action on that resource
//   - "resource:write" implies "resource:read"
//
// Basic tokens are read-only: any scope not ending in ":read" is denied
// before the hierarchy is consulted, even if the scope list holds it.
func HasScope(token *models.ApiToken, required string) bool {
	if !token.Usable(time.Now()) {
		return false
	}

	if token.Type == models.TokenTypeBasic && !strings.HasSuffix(required, ":read") {
		return false
	}

	for _, scope := range token.Scopes {
		if scope == required {
			return true
		}
	}

	resource, action, ok := strings.Cut(required, ":")
	if !ok {
		return false
	}

	if holdsScope(token.Scopes, resource+":admin") {
		return true
	}
	if action == "read" && holdsScope(token.Scopes, resource+":write") {
		return true
	}

	return false
}

// CheckAllScopes requires every listed scope.
func CheckAllScopes(token *models.ApiToken, scopes []string) bool {
	for _, scope := range scopes {
		if !HasScope(token, scope) {
			return false
		}
	}
	return true
}

func holdsScope(scopes []string, want string) bool {
	for _, scope := range scopes {
		if scope == want {
			return true
		}
	}
	return false
}
