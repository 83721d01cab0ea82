package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	ping := NewDomainGroup("ping", "/ping").
		GET("", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	echo := NewDomainGroup("echo", "/echo").
		POST("/:word", func(c *gin.Context) { c.String(http.StatusOK, c.Param("word")) })

	NewRouter(engine, WithAPIVersion("v2")).Register(ping, echo).Setup()

	w := serve(engine, http.MethodGet, "/api/v2/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	w = serve(engine, http.MethodPost, "/api/v2/echo/hello")
	assert.Equal(t, "hello", w.Body.String())

	w = serve(engine, http.MethodGet, "/api/v1/ping")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("debts", "/debts")
		assert.Equal(t, "debts", g.Name())
		assert.Equal(t, "/debts", g.Prefix())
	})

	t.Run("registers each method", func(t *testing.T) {
		engine := gin.New()
		ok := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		NewDomainGroup("leases", "/leases").
			GET("/x", ok).
			POST("/x", ok).
			PUT("/x", ok).
			Handle(http.MethodDelete, "/x", ok).
			RegisterRoutes(engine.Group("/api"))

		for _, m := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
			w := serve(engine, m, "/api/leases/x")
			assert.Equal(t, http.StatusOK, w.Code, m)
			assert.Equal(t, m, w.Body.String())
		}
	})

	t.Run("group middleware runs before every route", func(t *testing.T) {
		engine := gin.New()
		var calls int
		NewDomainGroup("billing", "/billing").
			Use(func(c *gin.Context) { calls++; c.Next() }).
			GET("/a", func(c *gin.Context) { c.Status(http.StatusOK) }).
			GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) }).
			RegisterRoutes(engine.Group(""))

		serve(engine, http.MethodGet, "/billing/a")
		serve(engine, http.MethodGet, "/billing/b")
		assert.Equal(t, 2, calls)
	})

	t.Run("route middleware applies to one route", func(t *testing.T) {
		engine := gin.New()
		deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }
		NewDomainGroup("renters", "/renters").
			GET("/:renterId/debts", func(c *gin.Context) { c.Status(http.StatusOK) }).
			POST("/:renterId/card-charges", deny, func(c *gin.Context) { c.Status(http.StatusCreated) }).
			RegisterRoutes(engine.Group(""))

		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/renters/r1/debts").Code)
		assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodPost, "/renters/r1/card-charges").Code)
	})

	t.Run("catch-all unit ids keep their slash", func(t *testing.T) {
		engine := gin.New()
		NewDomainGroup("utilities", "/utilities").
			GET("/units/*unitId", func(c *gin.Context) { c.String(http.StatusOK, c.Param("unitId")) }).
			RegisterRoutes(engine.Group(""))

		w := serve(engine, http.MethodGet, "/utilities/units/p1/2B")
		assert.Equal(t, "/p1/2B", w.Body.String())
	})
}
