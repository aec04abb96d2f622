package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowmesh/swarmcore/core"
)

// handleStats implements GET /api/stats: counts of in-memory-registry tasks by
// status, for the dashboard's summary cards (spec §6).
func (s *Server) handleStats(c *gin.Context) {
	tasks := s.registry.list()
	byStatus := map[core.TaskStatus]int{}
	var totalAgents, totalRework int
	for _, t := range tasks {
		byStatus[t.Status]++
		totalAgents += t.AgentsCount
		for _, st := range t.SubTasks {
			totalRework += st.ReworkCount
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_tasks":  len(tasks),
		"by_status":    byStatus,
		"total_agents": totalAgents,
		"total_rework": totalRework,
	})
}

// handleStatus implements GET /api/status: a liveness/readiness probe reporting the
// provider roster's reachability alongside the process's own aliveness.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": s.router.ProviderStatuses(),
	})
}
