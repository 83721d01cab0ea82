package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rentals/backend/internal/infrastructure/auth"
	"github.com/rentals/backend/internal/infrastructure/config"
	"github.com/rentals/backend/internal/infrastructure/logger"
	"github.com/rentals/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 32)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("keeps the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("replaces an oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", MaxRequestIDLength+1))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Len(t, w.Header().Get(RequestIDHeader), 32)
	})
}

func TestSecure(t *testing.T) {
	handler := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	engine := gin.New()
	engine.Use(Secure(DefaultSecurityConfig()))
	engine.GET("/", handler)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	engine = gin.New()
	engine.Use(Secure(SecurityConfig{HSTSEnabled: true, HSTSMaxAge: 60}))
	engine.GET("/", handler)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "max-age=60; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}

func TestBodyLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(BodyLimit(8))
	engine.POST("/", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		c.String(http.StatusOK, string(body))
	})

	t.Run("declared length over the limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, ErrCodeRequestTooLarge, decodeError(t, w).Error.Code)
	})

	t.Run("unknown length is cut off while reading", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("small body passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("non-positive limit disables the check", func(t *testing.T) {
		e := gin.New()
		e.Use(BodyLimit(0))
		e.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1024))))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRenterAuth(t *testing.T) {
	jwtService := auth.NewJWTService(config.JWTConfig{Secret: "middleware-secret", Issuer: "rentals-test"})
	renterID := uuid.New()

	engine := gin.New()
	engine.POST("/renters/:renterId/card-charges",
		RenterAuth(RenterAuthConfig{JWTService: jwtService, RenterParam: "renterId"}),
		func(c *gin.Context) {
			require.NotNil(t, GetJWTClaims(c))
			c.JSON(http.StatusOK, gin.H{
				"renter":     GetJWTRenterID(c),
				"ctx_renter": logger.GetRenterID(c.Request.Context()),
			})
		})

	call := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if header != "" {
			req.Header.Set(AuthHeaderKey, header)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}
	path := "/renters/" + renterID.String() + "/card-charges"

	t.Run("missing header", func(t *testing.T) {
		w := call(path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenInvalid, decodeError(t, w).Error.Code)
	})

	t.Run("not a bearer token", func(t *testing.T) {
		w := call(path, "Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := call(path, BearerPrefix+"not.a.jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := auth.NewJWTService(config.JWTConfig{Secret: "other-secret", Issuer: "rentals-test"})
		token, _, err := other.GenerateAgentToken(renterID, time.Minute)
		require.NoError(t, err)
		w := call(path, BearerPrefix+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token for another renter", func(t *testing.T) {
		token, _, err := jwtService.GenerateAgentToken(uuid.New(), time.Minute)
		require.NoError(t, err)
		w := call(path, BearerPrefix+token)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, dto.ErrCodeForbidden, decodeError(t, w).Error.Code)
	})

	t.Run("malformed renter in path", func(t *testing.T) {
		token, _, err := jwtService.GenerateAgentToken(renterID, time.Minute)
		require.NoError(t, err)
		w := call("/renters/not-a-uuid/card-charges", BearerPrefix+token)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("token for the renter", func(t *testing.T) {
		token, _, err := jwtService.GenerateAgentToken(renterID, time.Minute)
		require.NoError(t, err)
		w := call(path, BearerPrefix+token)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, renterID.String(), body["renter"])
		assert.Equal(t, renterID.String(), body["ctx_renter"])
	})
}

type fieldRequest struct {
	UnitID  string       `json:"unit_id" binding:"required"`
	Card    string       `json:"card_last4" binding:"len=4"`
	Entries []fieldEntry `json:"entries" binding:"required,min=1,dive"`
}

type fieldEntry struct {
	Tag string `json:"tag" binding:"max=3"`
}

func TestFieldErrors(t *testing.T) {
	SetupValidator()
	engine := gin.New()
	engine.POST("/", func(c *gin.Context) {
		var req fieldRequest
		err := c.ShouldBindJSON(&req)
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		c.JSON(http.StatusBadRequest, FieldErrors(verrs))
	})

	body := `{"card_last4":"123","entries":[{"tag":"toolong"}]}`
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	var details []dto.FieldError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	byField := make(map[string]dto.FieldError, len(details))
	for _, d := range details {
		byField[d.Field] = d
	}

	require.Contains(t, byField, "unit_id")
	assert.Equal(t, "required", byField["unit_id"].Rule)
	assert.Equal(t, "This field is required", byField["unit_id"].Message)

	require.Contains(t, byField, "card_last4")
	assert.Equal(t, "Must be exactly 4 characters", byField["card_last4"].Message)

	require.Contains(t, byField, "entries[0].tag")
	assert.Equal(t, "Must be at most 3 characters", byField["entries[0].tag"].Message)
}

func TestTracing(t *testing.T) {
	t.Run("disabled tracing passes through", func(t *testing.T) {
		engine := gin.New()
		engine.Use(TracingWithConfig(TracingConfig{Enabled: false}), SpanAttributes())
		engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("span carries request id and error status", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		t.Cleanup(func() { _ = provider.Shutdown(t.Context()) })

		engine := gin.New()
		engine.Use(RequestID(), otelgin.Middleware("rentals-test", otelgin.WithTracerProvider(provider)), SpanAttributes())
		engine.GET("/debts/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

		req := httptest.NewRequest(http.MethodGet, "/debts/1", nil)
		req.Header.Set(RequestIDHeader, "trace-me")
		engine.ServeHTTP(httptest.NewRecorder(), req)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)

		var requestID string
		for _, attr := range spans[0].Attributes() {
			if attr.Key == "request_id" {
				requestID = attr.Value.AsString()
			}
		}
		assert.Equal(t, "trace-me", requestID)
	})
}
