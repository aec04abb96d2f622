// Package api implements the HTTP/SSE surface (spec §6): task submission and
// lifecycle, streaming progress, per-agent chat and memory inspection, provider
// health, and settings persistence, fronted by gin-gonic/gin the way the pack's
// HTTP-serving repos front their own domain services.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
	"github.com/flowmesh/swarmcore/memory"
	"github.com/flowmesh/swarmcore/orchestrator"
	"github.com/flowmesh/swarmcore/tools"
)

// Server wires the Orchestrator, Memory Manager, LLM Router, and Tool Registry behind
// a gin.Engine. It owns the in-memory task registry that backs fast status polling and
// cancellation (spec §5, §6).
type Server struct {
	engine *gin.Engine

	orch      *orchestrator.Orchestrator
	mem       *memory.Manager
	router    *llm.Router
	tools     *tools.Registry
	settings  *settingsStore
	logger    core.Logger
	telemetry core.Telemetry

	registry *taskRegistry
}

// NewServer constructs a Server and registers every route. settingsFilePath is the
// local JSON file backing GET/POST /api/settings (spec §6, §9).
func NewServer(orch *orchestrator.Orchestrator, mem *memory.Manager, router *llm.Router, toolRegistry *tools.Registry, settingsFilePath string, logger core.Logger, telemetry core.Telemetry) *Server {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}

	s := &Server{
		orch:      orch,
		mem:       mem,
		router:    router,
		tools:     toolRegistry,
		settings:  newSettingsStore(settingsFilePath),
		logger:    logger,
		telemetry: telemetry,
		registry:  newTaskRegistry(),
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())

	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin.Engine for cmd/server to Run or wrap in an
// http.Server for graceful shutdown.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := s.telemetry.StartSpan(c.Request.Context(), "api."+c.Request.Method+" "+c.FullPath())
		c.Request = c.Request.WithContext(ctx)
		span.SetAttribute("http.method", c.Request.Method)
		span.SetAttribute("http.path", c.Request.URL.Path)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		span.SetAttribute("http.status_code", status)
		if status >= 500 {
			span.RecordError(fmt.Errorf("http %d", status))
		}
		span.End()

		s.telemetry.RecordMetric("api.request.duration_ms", float64(duration.Milliseconds()), map[string]string{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": strconv.Itoa(status),
		})
		s.logger.InfoWithContext(c.Request.Context(), "http request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": duration.String(),
		})
	}
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	tasks := api.Group("/tasks")
	tasks.POST("", s.handleCreateTask)
	tasks.GET("", s.handleListTasks)
	tasks.GET("/:id", s.handleGetTask)
	tasks.GET("/:id/subtasks", s.handleGetSubtasks)
	tasks.GET("/:id/validation", s.handleGetValidation)
	tasks.GET("/:id/debate", s.handleGetDebate)
	tasks.DELETE("/:id", s.handleCancelTask)
	tasks.GET("/:id/stream", s.handleStream)
	tasks.POST("/:id/chat", s.handleChat)

	agents := api.Group("/agents")
	agents.GET("", s.handleListAgents)
	agents.GET("/status", s.handleAgentsStatus)
	agents.GET("/:id/memory", s.handleAgentMemory)

	api.GET("/providers/status", s.handleProvidersStatus)

	settings := api.Group("/settings")
	settings.GET("", s.handleGetSettings)
	settings.POST("", s.handleUpdateSettings)
	settings.GET("/models", s.handleListModels)

	api.GET("/stats", s.handleStats)
	api.GET("/status", s.handleStatus)
}

// writeError renders the standard error envelope (grounded on the teacher's
// ErrorResponse{Error,Code} shape).
func writeError(c *gin.Context, status int, message, code string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}
