package authority

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/models"
	"github.com/kimhsiao/taskin/backend/internal/sync/protocol"
)

const userIDKey = "userID"

// Server is the authority HTTP server.
type Server struct {
	service  *Service
	verifier TokenVerifier
	router   *gin.Engine
}

// NewServer creates a new authority server.
func NewServer(service *Service, verifier TokenVerifier) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		service:  service,
		verifier: verifier,
		router:   router,
	}

	router.GET(protocol.HealthPath, s.handleHealth)

	authed := router.Group("/", s.requireAuth)
	{
		authed.POST(protocol.DeltaPath, s.handleDelta)
		authed.GET(protocol.TeamsPath, s.handleTeams)
		authed.PUT(protocol.TeamsPath+"/:id/members", s.handlePutMembers)
	}

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the server on addr.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("Request handled", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

func (s *Server) requireAuth(c *gin.Context) {
	userID, err := s.verifier.Verify(c.Request.Context(), bearerToken(c.GetHeader("Authorization")))
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

func callerID(c *gin.Context) models.UUID {
	v, _ := c.Get(userIDKey)
	id, _ := v.(models.UUID)
	return id
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		logging.Error("Request failed", err, map[string]interface{}{"path": c.FullPath()})
	}
	c.JSON(status, protocol.ErrorResponse{Error: err.Error(), Code: string(code)})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDelta(c *gin.Context) {
	var req protocol.DeltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.ErrValidation, "invalid delta request", err))
		return
	}

	resp, err := s.service.ProcessDelta(c.Request.Context(), callerID(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTeams(c *gin.Context) {
	teams, err := s.service.Teams(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.TeamsResponse{Teams: teams})
}

func (s *Server) handlePutMembers(c *gin.Context) {
	var req TeamMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.ErrValidation, "invalid members request", err))
		return
	}

	team, err := s.service.PutTeamMembers(c.Request.Context(), callerID(c), models.UUID(c.Param("id")), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, team)
}
