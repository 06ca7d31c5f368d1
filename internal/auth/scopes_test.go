package auth

import "testing"

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"empty list", []string{}, false},
		{"single valid scope", []string{"crm:read"}, false},
		{"multiple valid scopes", []string{"crm:read", "crm:write", "admin"}, false},
		{"invalid scope", []string{"modules:read"}, true},
		{"mixed valid and invalid", []string{"crm:read", "invalid"}, true},
		{"empty string scope", []string{""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScopes(tt.scopes)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopes(%v) error = %v, wantErr %v", tt.scopes, err, tt.wantErr)
			}
		})
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name       string
		userScopes []string
		required   Scope
		want       bool
	}{
		{"exact match crm:read", []string{"crm:read"}, ScopeCRMRead, true},
		{"exact match admin", []string{"admin"}, ScopeAdmin, true},
		{"admin grants crm:write", []string{"admin"}, ScopeCRMWrite, true},
		{"admin grants audit:read", []string{"admin"}, ScopeAuditRead, true},
		{"crm:write implies crm:read", []string{"crm:write"}, ScopeCRMRead, true},
		{"crm:write does not imply audit:read", []string{"crm:write"}, ScopeAuditRead, false},
		{"read does not imply write", []string{"crm:read"}, ScopeCRMWrite, false},
		{"crm scopes do not imply admin", []string{"crm:read", "crm:write"}, ScopeAdmin, false},
		{"no scopes", []string{}, ScopeCRMRead, false},
		{"one of many matches", []string{"audit:read", "crm:read"}, ScopeCRMRead, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasScope(tt.userScopes, tt.required)
			if got != tt.want {
				t.Errorf("HasScope(%v, %q) = %v, want %v", tt.userScopes, tt.required, got, tt.want)
			}
		})
	}
}

func TestHasAnyScope(t *testing.T) {
	tests := []struct {
		name           string
		userScopes     []string
		requiredScopes []Scope
		want           bool
	}{
		{"matches first", []string{"audit:read"}, []Scope{ScopeAuditRead, ScopeAdmin}, true},
		{"matches through admin", []string{"admin"}, []Scope{ScopeAuditRead}, true},
		{"matches none", []string{"crm:write"}, []Scope{ScopeAuditRead, ScopeAdmin}, false},
		{"empty required", []string{"crm:read"}, []Scope{}, false},
		{"empty user scopes", []string{}, []Scope{ScopeCRMRead}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasAnyScope(tt.userScopes, tt.requiredScopes)
			if got != tt.want {
				t.Errorf("HasAnyScope(%v, %v) = %v, want %v", tt.userScopes, tt.requiredScopes, got, tt.want)
			}
		})
	}
}

func TestGetDefaultScopes(t *testing.T) {
	scopes := GetDefaultScopes()
	if err := ValidateScopes(scopes); err != nil {
		t.Errorf("GetDefaultScopes() returned invalid scopes: %v", err)
	}
	if HasScope(scopes, ScopeAdmin) {
		t.Error("default scopes must not grant admin")
	}
	if !HasScope(scopes, ScopeCRMWrite) {
		t.Error("default scopes must allow CRM writes")
	}
}

func TestAllScopesUnique(t *testing.T) {
	seen := make(map[Scope]bool)
	for _, sc := range AllScopes() {
		if seen[sc] {
			t.Errorf("duplicate scope in AllScopes(): %q", sc)
		}
		seen[sc] = true
	}
}
