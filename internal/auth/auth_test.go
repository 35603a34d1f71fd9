package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "admin" || claims.Subject != "admin" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
	if claims.Issuer != "signal-engine" {
		t.Errorf("Expected signal-engine issuer, got %s", claims.Issuer)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := NewJWTManager("secret-b", time.Hour).ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected invalid token across secrets, got %v", err)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	m := NewJWTManager("test-secret", time.Nanosecond)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := m.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected expired token, got %v", err)
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	if _, err := m.ValidateToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected invalid token, got %v", err)
	}
}

func TestTokenDurationDefaultsTo24h(t *testing.T) {
	m := NewJWTManager("test-secret", 0)
	if got := m.TokenDuration(); got != 86400 {
		t.Errorf("Expected 86400 seconds, got %d", got)
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("hunter2", hash) {
		t.Error("Expected the original password to verify")
	}
	if VerifyPassword("hunter3", hash) {
		t.Error("Expected a wrong password to fail")
	}
}

func TestPasswordLengthCap(t *testing.T) {
	long := make([]byte, MaxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := HashPassword(string(long)); err == nil {
		t.Error("Expected oversized password rejected")
	}
}

func TestServiceLogin(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	svc, err := NewService("admin", "hunter2", m)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	token, err := svc.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := m.ValidateToken(token); err != nil {
		t.Errorf("Expected issued token to validate: %v", err)
	}

	if _, err := svc.Login("admin", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Expected bad credentials on a wrong password, got %v", err)
	}
	if _, err := svc.Login("root", "hunter2"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Expected bad credentials on a wrong user, got %v", err)
	}
}

func TestServiceAcceptsPrehashedPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	svc, err := NewService("admin", hash, NewJWTManager("test-secret", time.Hour))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Login("admin", "hunter2"); err != nil {
		t.Errorf("Expected login against the stored hash, got %v", err)
	}
}

func TestServiceRequiresCredentials(t *testing.T) {
	if _, err := NewService("", "pw", NewJWTManager("s", time.Hour)); err == nil {
		t.Error("Expected error without a username")
	}
	if _, err := NewService("admin", "", NewJWTManager("s", time.Hour)); err == nil {
		t.Error("Expected error without a password")
	}
}

func authRouter(m *JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", Middleware(m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(ContextKeyUsername)})
	})
	return router
}

func TestMiddlewareAllowsValidToken(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	token, _ := m.GenerateToken("admin")
	router := authRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMiddlewareRejectsMissingAndMalformed(t *testing.T) {
	router := authRouter(NewJWTManager("test-secret", time.Hour))

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc123",
		"bad token":      "Bearer garbage",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}
