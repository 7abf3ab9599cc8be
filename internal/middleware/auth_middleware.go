package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

type AuthMiddleware struct {
	secretKey []byte

	mu         sync.Mutex
	rateLimit  map[string][]time.Time
	sourceKeys map[string]string
}

// NewAuthMiddleware builds the auth layer. sourceKeys maps API keys to
// intel source names; keys issued at runtime via RegisterSource are added
// to the same set.
func NewAuthMiddleware(secretKey string, sourceKeys map[string]string) *AuthMiddleware {
	keys := make(map[string]string, len(sourceKeys))
	for key, source := range sourceKeys {
		keys[key] = source
	}
	return &AuthMiddleware{
		secretKey:  []byte(secretKey),
		rateLimit:  make(map[string][]time.Time),
		sourceKeys: keys,
	}
}

// SourceAuth validates intel-source authentication using API key
func (m *AuthMiddleware) SourceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			c.Abort()
			return
		}

		m.mu.Lock()
		source, ok := m.sourceKeys[apiKey]
		m.mu.Unlock()
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Set("source", source)
		c.Next()
	}
}

// RegisterSource issues a new API key for an intel source and adds it to
// the accepted set.
func (m *AuthMiddleware) RegisterSource(source string) string {
	key := m.GenerateAPIKey()
	m.mu.Lock()
	m.sourceKeys[key] = source
	m.mu.Unlock()
	return key
}

// AdminAuth validates admin authentication using JWT
func (m *AuthMiddleware) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			c.Abort()
			return
		}

		// Parse and validate JWT token
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		})

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set("user_id", claims["user_id"])
			c.Set("role", claims["role"])
			c.Set("username", claims["username"])
		}

		c.Next()
	}
}

// RateLimit implements rate limiting per IP. A non-positive request
// count disables limiting.
func (m *AuthMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if requests <= 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		now := time.Now()

		m.mu.Lock()

		// Clean old requests
		if previous, exists := m.rateLimit[clientIP]; exists {
			var validRequests []time.Time
			for _, req := range previous {
				if now.Sub(req) < window {
					validRequests = append(validRequests, req)
				}
			}
			m.rateLimit[clientIP] = validRequests
		}

		if len(m.rateLimit[clientIP]) >= requests {
			m.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		m.rateLimit[clientIP] = append(m.rateLimit[clientIP], now)
		m.mu.Unlock()

		c.Next()
	}
}

// InputValidation validates Content-Type before handlers bind the body
func (m *AuthMiddleware) InputValidation() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "POST" || c.Request.Method == "PUT" {
			if c.Request.ContentLength > 0 {
				contentType := c.GetHeader("Content-Type")
				if !strings.Contains(contentType, "application/json") {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Content-Type"})
					c.Abort()
					return
				}
			}
		}

		c.Next()
	}
}

// RBAC implements Role-Based Access Control
func (m *AuthMiddleware) RBAC(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role not found"})
			c.Abort()
			return
		}

		if role != requiredRole && role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GenerateJWT generates a JWT token for dashboard users
func (m *AuthMiddleware) GenerateJWT(userID, username, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"role":     role,
		"exp":      time.Now().Add(time.Hour * 24).Unix(), // 24 hours
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// GenerateAPIKey generates a secure API key for intel sources
func (m *AuthMiddleware) GenerateAPIKey() string {
	key := make([]byte, 32)
	rand.Read(key)
	return hex.EncodeToString(key)
}
