package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rentals/backend/internal/infrastructure/auth"
	"github.com/rentals/backend/internal/infrastructure/logger"
	"github.com/rentals/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTRenterIDKey = "jwt_renter_id"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// RenterAuthConfig configures RenterAuth
type RenterAuthConfig struct {
	// JWTService validates agent tokens. Required.
	JWTService *auth.JWTService
	// RenterParam names the path parameter the token subject must match.
	// Empty disables the subject check.
	RenterParam string
	Logger      *zap.Logger
}

// RenterAuth requires a Bearer agent token. When RenterParam is set, the
// token subject must be the renter named in that path parameter: a missing or
// invalid token is answered with 401, a token for another renter with 403.
func RenterAuth(cfg RenterAuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader(AuthHeaderKey))
		if !ok {
			abortUnauthorized(c, log, auth.ErrInvalidToken, "Missing or malformed authorization header")
			return
		}

		claims, err := cfg.JWTService.ValidateToken(tokenString)
		if err != nil {
			abortUnauthorized(c, log, err, "Token validation failed")
			return
		}

		renterID, err := claims.RenterID()
		if err != nil {
			abortUnauthorized(c, log, err, "Token subject is not a renter")
			return
		}

		if cfg.RenterParam != "" {
			target, err := uuid.Parse(c.Param(cfg.RenterParam))
			if err != nil {
				target = uuid.Nil
			}
			if err := claims.Authorizes(target); err != nil {
				log.Warn("Renter token used for another renter",
					zap.String("subject", renterID.String()),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusForbidden,
					dto.NewErrorResponse(dto.ErrCodeForbidden, "Token does not authorize this renter"))
				return
			}
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTRenterIDKey, renterID.String())
		ctx := logger.WithRenterID(c.Request.Context(), renterID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error, message string) {
	log.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("message", message),
		zap.String("path", c.Request.URL.Path))

	code, msg := dto.ErrCodeTokenInvalid, "Invalid token"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, msg = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		msg = "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidTokenType):
		msg = "Invalid token type"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, msg))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTRenterID retrieves the authenticated renter from gin.Context
func GetJWTRenterID(c *gin.Context) string {
	return c.GetString(JWTRenterIDKey)
}
