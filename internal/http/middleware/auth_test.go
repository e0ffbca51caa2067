// README: Tests for the bearer-token auth middleware.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"shuttle/internal/infra"
)

type stubVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubVerifier) VerifyIDToken(context.Context, string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func authRouter(v infra.TokenVerifier) (*gin.Engine, *string, *string) {
	gin.SetMode(gin.TestMode)
	var uid, phone string
	r := gin.New()
	r.Use(Auth(v))
	r.GET("/probe", func(c *gin.Context) {
		uid = CallerUID(c)
		phone = CallerPhone(c)
		c.Status(http.StatusOK)
	})
	return r, &uid, &phone
}

func probe(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_ValidToken(t *testing.T) {
	v := &stubVerifier{token: &infra.FirebaseToken{
		UID:    "uid-1",
		Claims: map[string]interface{}{"phone_number": "+18645550199"},
	}}
	r, uid, phone := authRouter(v)

	w := probe(r, "Bearer good-token")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if *uid != "uid-1" {
		t.Errorf("caller uid = %q, want uid-1", *uid)
	}
	if *phone != "+18645550199" {
		t.Errorf("caller phone = %q, want the token claim", *phone)
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	r, _, _ := authRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "uid-1"}})
	if w := probe(r, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_WrongScheme(t *testing.T) {
	r, _, _ := authRouter(&stubVerifier{token: &infra.FirebaseToken{UID: "uid-1"}})
	if w := probe(r, "Basic dXNlcjpwYXNz"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_RejectedToken(t *testing.T) {
	r, _, _ := authRouter(&stubVerifier{err: errors.New("token expired")})
	if w := probe(r, "Bearer stale"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_NilVerifierDisablesAuth(t *testing.T) {
	r, uid, _ := authRouter(nil)
	if w := probe(r, ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
	if *uid != "" {
		t.Errorf("caller uid = %q, want empty with auth disabled", *uid)
	}
}
