package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func securityHeaders(cfg SecurityHeadersConfig) http.Header {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w.Header()
}

func TestSecurityHeaders_API(t *testing.T) {
	h := securityHeaders(APISecurityHeadersConfig(true))

	want := map[string]string{
		"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
		"X-Frame-Options":              "DENY",
		"X-Content-Type-Options":       "nosniff",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Cache-Control":                "no-store",
	}
	for name, value := range want {
		if got := h.Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
}

func TestSecurityHeaders_NoHSTSWithoutTLS(t *testing.T) {
	h := securityHeaders(APISecurityHeadersConfig(false))
	if got := h.Get("Strict-Transport-Security"); got != "" {
		t.Errorf("Strict-Transport-Security = %q, want none over plain HTTP", got)
	}
}

func TestSecurityHeaders_VaryOnTenantInputs(t *testing.T) {
	h := securityHeaders(APISecurityHeadersConfig(false))
	if got := h.Get("Vary"); got != "Host, Cookie, Authorization" {
		t.Errorf("Vary = %q", got)
	}
}

func TestSecurityHeaders_EmptyValuesOmitted(t *testing.T) {
	h := securityHeaders(SecurityHeadersConfig{})
	for _, name := range []string{"X-Frame-Options", "Content-Security-Policy", "Referrer-Policy", "Strict-Transport-Security"} {
		if got := h.Get(name); got != "" {
			t.Errorf("%s = %q, want empty", name, got)
		}
	}
	if h.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff must always be sent")
	}
}
