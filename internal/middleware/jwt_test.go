package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/seat-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.seen = token
	return v.claims, v.err
}

func newJWTRouter(v TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWT(v), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})
	return r
}

func TestJWTAcceptsBearerToken(t *testing.T) {
	v := &validatorStub{claims: &models.JWTClaims{UserID: "1XX21CS001", Role: models.RoleStudent}}
	r := newJWTRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1XX21CS001", w.Body.String())
	assert.Equal(t, "abc", v.seen)
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	r := newJWTRouter(&validatorStub{})
	for _, header := range []string{"", "Basic abc", "Bearer"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	r := newJWTRouter(&validatorStub{err: appErrors.Wrap(errors.New("expired"), appErrors.ErrUnauthorized.Code, http.StatusUnauthorized, "invalid token")})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTQueryTokenOnlyForWebSocket(t *testing.T) {
	v := &validatorStub{claims: &models.JWTClaims{UserID: "u", Role: models.RoleStudent}}
	r := newJWTRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me?access_token=xyz", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me?access_token=xyz", nil)
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xyz", v.seen)
}
