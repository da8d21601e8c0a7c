package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vrflottery/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/logger"
)

const callerKey = "caller"

// OracleAuthMiddleware authenticates the callback sender. The token subject
// becomes the caller identity the lottery checks against its oracle.
func OracleAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		const bearerSchema = "Bearer "
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warning("OracleAuthMiddleware: Authorization header is missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}
		if !strings.HasPrefix(authHeader, bearerSchema) {
			logger.Warning("OracleAuthMiddleware: Authorization header format is invalid")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must start with Bearer "})
			return
		}

		var claims jwt.RegisteredClaims
		token, err := jwt.ParseWithClaims(authHeader[len(bearerSchema):], &claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			logger.Warningf("OracleAuthMiddleware: token validation failed: %v", err)
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}
		if !token.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		c.Set(callerKey, models.Address(claims.Subject))
		c.Next()
	}
}

// CallerFromContext returns the identity set by OracleAuthMiddleware.
func CallerFromContext(c *gin.Context) models.Address {
	if v, ok := c.Get(callerKey); ok {
		if addr, ok := v.(models.Address); ok {
			return addr
		}
	}
	return ""
}
