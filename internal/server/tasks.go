package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"teamtrack/internal/tracker"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    *int64 `json:"priority"`
}

// handleListTasks fetches tasks for a project.
func (s *Server) handleListTasks(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), projectID)
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleCreateTask adds a task to a project with the actor as author.
func (s *Server) handleCreateTask(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.core.CreateTask(c.Request.Context(), projectID, actorID(c), req.Title, req.Description, req.Priority)
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleGetTask returns the whole task, a single readable field, or the
// accountability view, depending on the field query parameter.
func (s *Server) handleGetTask(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "task")
	if !ok {
		return
	}

	var (
		payload map[string]any
		err     error
	)
	if field := c.Query("field"); field != "" {
		payload, err = s.core.GetTaskField(c.Request.Context(), projectID, taskID, actorID(c), field)
	} else {
		payload, err = s.core.GetTask(c.Request.Context(), projectID, taskID, actorID(c))
	}
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, payload)
}

// handleUpdateTask applies a partial patch through the mutation pipeline.
func (s *Server) handleUpdateTask(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "task")
	if !ok {
		return
	}

	var patch tracker.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := s.core.UpdateTask(c.Request.Context(), projectID, taskID, actorID(c), patch)
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": view})
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "task")
	if !ok {
		return
	}

	if err := s.core.DeleteTask(c.Request.Context(), projectID, taskID, actorID(c)); err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
