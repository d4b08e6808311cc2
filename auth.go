package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/utils"
	"github.com/sirupsen/logrus"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// loginHandler issues a JWT. Identities in the access table use their own
// hash; anyone else needs the shared hash, and then only sees what the
// fallback rule gives them.
func (a *App) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))

	hash := a.Settings.SharedPasswordHash
	if assignment, ok := a.Access.Lookup(username); ok && assignment.PasswordHash != "" {
		hash = assignment.PasswordHash
	}
	if hash == "" || utils.ComparePassword(hash, req.Password) != nil {
		a.Logger.WithFields(logrus.Fields{"username": username}).Warn("login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	role := a.Access.RoleFor(username)
	token, err := utils.JwtGenerate(username, string(role))
	if err != nil {
		config.LogError(a.Logger, "auth.go", "loginHandler", "JwtGenerate", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"token":    token,
		"username": username,
		"role":     role,
		"scope":    a.Access.ScopeFor(username),
	}})
}
