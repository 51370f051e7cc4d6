package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"teamtrack/internal/storage/sqlite"
	"teamtrack/internal/tracker"
)

// Server provides HTTP handlers for the task tracker backend.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	core      *tracker.Service
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(store *sqlite.Store, core *tracker.Service, logger *slog.Logger, staticDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Actor-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(rateLimit())

	srv := &Server{
		engine:    router,
		store:     store,
		core:      core,
		logger:    logger,
		staticDir: staticDir,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		api.GET("/users", s.handleListUsers)
		api.POST("/users", s.handleCreateUser)

		projects := api.Group("/projects", requireActor())
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.POST(":project/members", s.handleAddMember)
			projects.GET(":project/journal", s.handleProjectJournal)

			projects.GET(":project/tasks", s.handleListTasks)
			projects.POST(":project/tasks", s.handleCreateTask)
			projects.GET(":project/tasks/:task", s.handleGetTask)
			projects.PUT(":project/tasks/:task", s.handleUpdateTask)
			projects.DELETE(":project/tasks/:task", s.handleDeleteTask)
		}
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// respondCoreError maps the error taxonomy onto HTTP statuses. Expected
// conditions surface their reason; anything else is logged with context and
// returned generically.
func (s *Server) respondCoreError(c *gin.Context, err error) {
	var forbidden *tracker.ForbiddenError
	var invalid *tracker.ValidationError

	switch {
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": forbidden.Reason})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Msg})
	case errors.Is(err, tracker.ErrTaskNotFound),
		errors.Is(err, tracker.ErrProjectNotFound),
		errors.Is(err, tracker.ErrUserNotFound),
		errors.Is(err, tracker.ErrAssigneeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tracker.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
