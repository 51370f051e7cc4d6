package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// handleListUsers returns all registered users.
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context())
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"users": users})
}

// handleCreateUser registers a user with a unique email.
func (s *Server) handleCreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.store.CreateUser(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"user": user})
}
