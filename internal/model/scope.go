package model

// Scope is a named permission. Apps are assigned scopes and users are granted
// scopes; a token carries the intersection.
type Scope struct {
	ID          int64  `json:"id" db:"id"`
	TenantID    string `json:"-" db:"tenant_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category,omitempty" db:"category"`
}

// ScopeNames returns the names of scopes in order.
func ScopeNames(scopes []Scope) []string {
	names := make([]string, len(scopes))
	for i, s := range scopes {
		names[i] = s.Name
	}
	return names
}
