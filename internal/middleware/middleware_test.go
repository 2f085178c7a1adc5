package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/auth"
	"github.com/DPJMedia/springford-ads/internal/models"
)

func newRouter(jwtSvc *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.NewNop()), CORS("https://cms.example", "/slots"))
	g := r.Group("/admin", JWT(jwtSvc), RequireRole(models.RoleAdmin, models.RoleEditor))
	g.GET("/me", func(c *gin.Context) {
		id, _ := c.Get(ContextUserID)
		c.String(http.StatusOK, id.(uuid.UUID).String())
	})
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRole(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 1)
	r := newRouter(jwtSvc)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	tok, err := jwtSvc.Generate(id, "r@x", models.Role("reader"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusForbidden, do(r, req).Code)

	tok, err = jwtSvc.Generate(id, "e@x", models.RoleEditor)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(auth.NewJWTService("secret", 1))
	req := httptest.NewRequest(http.MethodOptions, "/admin/me", nil)
	req.Header.Set("Origin", "https://cms.example")
	w := do(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://cms.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	req = httptest.NewRequest(http.MethodOptions, "/admin/me", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = do(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPublicPlacement(t *testing.T) {
	r := newRouter(auth.NewJWTService("secret", 1))
	r.GET("/slots/:slot/placement", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/slots/article-sidebar/placement", nil)
	req.Header.Set("Origin", "https://news.example")
	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodOptions, "/slotsx", nil)
	req.Header.Set("Origin", "https://news.example")
	w = do(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
