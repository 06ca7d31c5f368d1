// Package auth - scopes.go defines the permission scopes carried in principal tokens and the
// HasScope, HasAnyScope, and HasAllScopes helpers used by the RBAC middleware.
package auth

import (
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// CRM data scopes (business records, equipment, service tickets, pipeline)
	ScopeCRMRead  Scope = "crm:read"
	ScopeCRMWrite Scope = "crm:write"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions, cross-tenant impersonation)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeCRMRead,
		ScopeCRMWrite,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a principal has a required scope.
// admin grants everything and crm:write implies crm:read.
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		if scope == requiredStr {
			return true
		}
		if scope == string(ScopeAdmin) {
			return true
		}
		if required == ScopeCRMRead && scope == string(ScopeCRMWrite) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a principal has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// GetDefaultScopes returns the scopes issued when none are requested: a dealer user who can read
// and edit their own tenant's data.
func GetDefaultScopes() []string {
	return []string{
		string(ScopeCRMRead),
		string(ScopeCRMWrite),
	}
}
