package middleware

import (
	"os"
	"testing"

	"github.com/dealer-crm/crm-backend/internal/auth"
	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	os.Setenv(auth.JWTSecretEnv, "test-jwt-secret-that-is-32-chars!!")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}
