package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleProjectJournal returns the project's time-tracking ledger, shaped
// for visualization: expanded task and user projections, no record
// identities.
func (s *Server) handleProjectJournal(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}

	rows, err := s.core.ProjectJournal(c.Request.Context(), projectID, actorID(c))
	if err != nil {
		s.respondCoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"journal": rows})
}
