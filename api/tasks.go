package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/flowmesh/swarmcore/core"
)

// taskSubmitRequest is the POST /api/tasks request body (spec §6).
type taskSubmitRequest struct {
	Description string         `json:"description" binding:"required"`
	Provider    string         `json:"provider"`
	AutoExecute *bool          `json:"auto_execute"`
	Context     map[string]any `json:"context"`
}

// taskSubmitResponse is the POST /api/tasks response, grounded on the teacher's
// TaskSubmitResponse{TaskID,Status,StatusURL} shape, extended with the query
// expansion the Orchestrator ran up front (spec §6, §4.4).
type taskSubmitResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Expansion   any    `json:"expansion"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
		return
	}
	if req.Provider == "" {
		req.Provider = "auto"
	}
	autoExecute := true
	if req.AutoExecute != nil {
		autoExecute = *req.AutoExecute
	}

	expansion := s.orch.ExpandQuery(c.Request.Context(), req.Description)
	task := s.orch.CreateTask(req.Description, req.Provider, req.Context)

	if autoExecute {
		ctx, cancel := context.WithCancel(context.Background())
		s.registry.put(task, cancel)
		go func() {
			s.orch.ExecuteTask(ctx, task)
			// A task that finished (rather than being externally cancelled) stays in
			// the registry so subsequent polls still find it without a durable
			// round-trip; DELETE is what removes an entry entirely.
		}()
	} else {
		s.registry.put(task, func() {})
	}

	c.JSON(http.StatusAccepted, taskSubmitResponse{
		ID:          task.ID,
		Status:      string(task.Status),
		Description: task.Description,
		Expansion:   expansion,
	})
}

func (s *Server) handleListTasks(c *gin.Context) {
	statusFilter := core.TaskStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	durableTasks, err := s.mem.ListTasks(c.Request.Context(), statusFilter, limit+offset, 0)
	if err != nil {
		s.logger.Warn("api: list tasks from durable store failed", map[string]interface{}{"error": err.Error()})
	}

	merged := mergeTasks(durableTasks, s.registry.list())
	if statusFilter != "" {
		filtered := merged[:0]
		for _, t := range merged {
			if t.Status == statusFilter {
				filtered = append(filtered, t)
			}
		}
		merged = filtered
	}

	if offset > len(merged) {
		offset = len(merged)
	}
	end := offset + limit
	if end > len(merged) {
		end = len(merged)
	}

	c.JSON(http.StatusOK, gin.H{"tasks": merged[offset:end], "total": len(merged)})
}

// findTask resolves id against the in-memory registry first (it holds the live
// pointer an in-flight task mutates), falling back to the durable store.
func (s *Server) findTask(c *gin.Context, id string) (*core.Task, bool) {
	if t, ok := s.registry.get(id); ok {
		return t, true
	}
	t, err := s.mem.GetTask(c.Request.Context(), id)
	if err != nil || t == nil {
		return nil, false
	}
	return t, true
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, ok := s.findTask(c, c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleGetSubtasks(c *gin.Context) {
	task, ok := s.findTask(c, c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtasks": task.SubTasks})
}

func (s *Server) handleGetValidation(c *gin.Context) {
	task, ok := s.findTask(c, c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, gin.H{"validation": task.ValidationResults})
}

func (s *Server) handleGetDebate(c *gin.Context) {
	task, ok := s.findTask(c, c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}
	if task.DebateState == nil {
		writeError(c, http.StatusNotFound, "task did not use the debate strategy", "NO_DEBATE")
		return
	}
	c.JSON(http.StatusOK, task.DebateState)
}

// handleCancelTask implements DELETE /api/tasks/{id} (spec §5): a task in
// {pending, in_progress, validating, debating} moves to cancelled, its in-flight goroutine's
// context is cancelled so further work is abandoned, and its registry entry is removed
// so subsequent GETs 404 (scenario S6).
func (s *Server) handleCancelTask(c *gin.Context) {
	id := c.Param("id")
	task, ok := s.findTask(c, id)
	if !ok {
		writeError(c, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}

	switch task.Status {
	case core.TaskInProgress, core.TaskValidating, core.TaskDebating, core.TaskPending:
		task.Status = core.TaskCancelled
		if err := s.mem.SaveTask(c.Request.Context(), task); err != nil {
			s.logger.Warn("api: checkpoint on cancel failed", map[string]interface{}{"task_id": id, "error": err.Error()})
		}
	default:
		writeError(c, http.StatusConflict, "task cannot be cancelled (already in a terminal state)", "TASK_NOT_CANCELLABLE")
		return
	}

	if cancel := s.registry.remove(id); cancel != nil {
		cancel()
	}
	if err := s.mem.DeleteTask(c.Request.Context(), id); err != nil {
		s.logger.Warn("api: durable delete on cancel failed", map[string]interface{}{"task_id": id, "error": err.Error()})
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": string(core.TaskCancelled), "message": "task cancelled"})
}
