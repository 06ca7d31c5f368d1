package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dealer-crm/crm-backend/internal/auth"
	"github.com/gin-gonic/gin"
)

// newScopeRouter builds a gin engine where:
//  1. A setup handler sets c["scopes"] to userScopes (if non-nil)
//  2. The provided middleware runs
//  3. A final handler returns 200 {"ok":true} if not aborted
func newScopeRouter(mid gin.HandlerFunc, userScopes interface{}) *gin.Engine {
	r := gin.New()
	setup := func(c *gin.Context) {
		if userScopes != nil {
			c.Set(ScopesKey, userScopes)
		}
	}
	final := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
	r.GET("/", setup, mid, final)
	r.POST("/", setup, mid, final)
	return r
}

func do(r *gin.Engine, method string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, "/", nil)
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// RequireScope
// ---------------------------------------------------------------------------

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes interface{}
		want   int
	}{
		{"no scopes in context", nil, http.StatusForbidden},
		{"wrong type in context", "crm:read", http.StatusForbidden},
		{"missing scope", []string{"audit:read"}, http.StatusForbidden},
		{"exact scope", []string{"crm:read"}, http.StatusOK},
		{"write implies read", []string{"crm:write"}, http.StatusOK},
		{"admin wildcard", []string{"admin"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newScopeRouter(RequireScope(auth.ScopeCRMRead), tt.scopes), http.MethodGet)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// RequireAnyScope
// ---------------------------------------------------------------------------

func TestRequireAnyScope(t *testing.T) {
	mid := RequireAnyScope(auth.ScopeAuditRead, auth.ScopeAdmin)

	if w := do(newScopeRouter(mid, []string{"audit:read"}), http.MethodGet); w.Code != http.StatusOK {
		t.Errorf("audit:read: status = %d, want 200", w.Code)
	}
	if w := do(newScopeRouter(mid, []string{"crm:write"}), http.MethodGet); w.Code != http.StatusForbidden {
		t.Errorf("crm:write: status = %d, want 403", w.Code)
	}
	if w := do(newScopeRouter(mid, nil), http.MethodGet); w.Code != http.StatusForbidden {
		t.Errorf("no scopes: status = %d, want 403", w.Code)
	}
}

// ---------------------------------------------------------------------------
// RequireMethodScope
// ---------------------------------------------------------------------------

func TestRequireMethodScope(t *testing.T) {
	mid := RequireMethodScope(auth.ScopeCRMRead, auth.ScopeCRMWrite)

	tests := []struct {
		name   string
		method string
		scopes []string
		want   int
	}{
		{"reader may GET", http.MethodGet, []string{"crm:read"}, http.StatusOK},
		{"reader may not POST", http.MethodPost, []string{"crm:read"}, http.StatusForbidden},
		{"writer may POST", http.MethodPost, []string{"crm:write"}, http.StatusOK},
		{"writer may GET", http.MethodGet, []string{"crm:write"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newScopeRouter(mid, tt.scopes), tt.method)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
