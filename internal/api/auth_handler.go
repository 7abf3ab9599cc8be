package api

import (
	"crypto/subtle"
	"net/http"

	"cyberguard-server/internal/middleware"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues dashboard JWTs and intel-source API keys.
type AuthHandler struct {
	auth          *middleware.AuthMiddleware
	adminUsername string
	adminPassword string
}

func NewAuthHandler(auth *middleware.AuthMiddleware, adminUsername, adminPassword string) *AuthHandler {
	return &AuthHandler{
		auth:          auth,
		adminUsername: adminUsername,
		adminPassword: adminPassword,
	}
}

// Login exchanges admin credentials for a JWT
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.adminPassword == "" || !credentialsMatch(req.Username, req.Password, h.adminUsername, h.adminPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.auth.GenerateJWT(h.adminUsername, h.adminUsername, "admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": 24 * 60 * 60,
	})
}

// CreateSourceKey issues an API key for a named intel source. Admin only.
func (h *AuthHandler) CreateSourceKey(c *gin.Context) {
	var req struct {
		Source string `json:"source" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := h.auth.RegisterSource(req.Source)

	c.JSON(http.StatusCreated, gin.H{
		"source":  req.Source,
		"api_key": key,
	})
}

func credentialsMatch(username, password, wantUser, wantPass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1
	return userOK && passOK
}
