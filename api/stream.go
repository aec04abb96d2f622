package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleStream implements GET /api/tasks/{id}/stream: an SSE feed of the task's
// ephemeral-tier events, the way the teacher's streaming endpoints drain a channel
// with gin's c.Stream rather than hand-rolling a flush loop (spec §6).
func (s *Server) handleStream(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.findTask(c, id); !ok {
		writeError(c, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}

	events, err := s.mem.Subscribe(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to subscribe to task stream", "STREAM_ERROR")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w http.ResponseWriter) bool {
		select {
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("message", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
