package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowmesh/swarmcore/core"
)

// agentSnapshot is one materialized agent's identity and current subtask, derived
// from its owning Task's SubTasks since agents themselves are per-task and not
// persisted independently (spec §4.5, §6).
type agentSnapshot struct {
	AgentID   string              `json:"agent_id"`
	AgentType string              `json:"agent_type"`
	TaskID    string              `json:"task_id"`
	Status    core.SubTaskStatus  `json:"status"`
	Rework    int                 `json:"rework_count"`
}

func (s *Server) agentSnapshots() []agentSnapshot {
	var out []agentSnapshot
	for _, t := range s.registry.list() {
		for _, st := range t.SubTasks {
			out = append(out, agentSnapshot{
				AgentID:   st.AgentID,
				AgentType: st.AgentType,
				TaskID:    t.ID,
				Status:    st.Status,
				Rework:    st.ReworkCount,
			})
		}
	}
	return out
}

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.agentSnapshots()})
}

func (s *Server) handleAgentsStatus(c *gin.Context) {
	snapshots := s.agentSnapshots()
	counts := map[core.SubTaskStatus]int{}
	for _, a := range snapshots {
		counts[a.Status]++
	}
	c.JSON(http.StatusOK, gin.H{"total": len(snapshots), "by_status": counts, "agents": snapshots})
}

// handleAgentMemory implements GET /api/agents/{id}/memory: the agent-scoped slice of
// whatever the Memory Manager's compression returns for that agent, unioned with its
// owning task's context by Read's normal fan-out (spec §4.2).
func (s *Server) handleAgentMemory(c *gin.Context) {
	agentID := c.Param("id")
	taskID := c.Query("task_id")

	entries, err := s.mem.Read(c.Request.Context(), taskID, agentID, nil, c.Query("provider"), 50)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to read agent memory", "MEMORY_READ_FAILED")
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "entries": entries})
}
