package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type projectRequest struct {
	Name string `json:"name"`
}

type memberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// handleListProjects returns all available projects.
func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": projects})
}

// handleCreateProject creates a project; the actor becomes its owner.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := s.store.CreateProject(c.Request.Context(), req.Name, actorID(c))
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": project})
}

// handleAddMember enrolls a user into a project with a role.
func (s *Server) handleAddMember(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}

	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.AddMember(c.Request.Context(), projectID, req.UserID, req.Role); err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "added"})
}
