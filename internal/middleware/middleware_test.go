package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type observerStub struct {
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(_ string, path string, _ int, _ time.Duration) {
	o.paths = append(o.paths, path)
}

func newRouter(v tokenValidator, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWT(v), RequireRoles(roles...), func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.JSON(http.StatusOK, gin.H{"id": claims.TelegramID})
	})
	return r
}

func TestJWTAndRoles(t *testing.T) {
	admin := validatorStub{claims: &models.JWTClaims{TelegramID: 42, Role: models.RoleAdmin}}
	cases := []struct {
		name   string
		header string
		roles  []models.UserRole
		status int
	}{
		{"missing header", "", []models.UserRole{models.RoleAdmin}, http.StatusUnauthorized},
		{"malformed header", "Token good", []models.UserRole{models.RoleAdmin}, http.StatusUnauthorized},
		{"bad token", "Bearer bad", []models.UserRole{models.RoleAdmin}, http.StatusUnauthorized},
		{"wrong role", "Bearer good", []models.UserRole{"AUDITOR"}, http.StatusForbidden},
		{"admin", "bearer good", []models.UserRole{models.RoleAdmin}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			newRouter(admin, tc.roles...).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/r/:token", func(c *gin.Context) { c.Status(http.StatusFound) })

	for _, path := range []string{"/r/abc", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, []string{"/r/:token", "unmatched"}, observer.paths)
}
