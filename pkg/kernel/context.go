package kernel

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is what the bearer middleware stores for an authenticated caller
type AuthContext struct {
	Subject string `json:"sub"`
	Issuer  string `json:"iss,omitempty"`
}

// IsValid reports whether the caller was identified
func (a *AuthContext) IsValid() bool {
	return a != nil && a.Subject != ""
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey is the fiber local holding *AuthContext
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey carries the request id
	RequestIDKey ContextKey = "request_id"
)
