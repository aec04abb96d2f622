package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleProvidersStatus implements GET /api/providers/status: each configured cloud
// provider's circuit-breaker snapshot, for the dashboard to show which vendors are
// currently open/half-open (spec §4.1, §6).
func (s *Server) handleProvidersStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.router.ProviderStatuses()})
}
