package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flowmesh/swarmcore/llm"
	"github.com/flowmesh/swarmcore/tools"
)

type chatRequest struct {
	Message      string         `json:"message" binding:"required"`
	UseWebSearch bool           `json:"use_web_search"`
	TargetAgent  string         `json:"target_agent"`
	Context      map[string]any `json:"context"`
}

type chatResponse struct {
	Response string   `json:"response"`
	Agent    string   `json:"agent,omitempty"`
	Sources  []string `json:"sources,omitempty"`
}

// handleChat implements POST /api/tasks/{id}/chat: a RAG follow-up question answered
// from the task's own description/result, optionally enriched with live web_search
// hits, grounded on the original chat_with_task handler (spec §6).
func (s *Server) handleChat(c *gin.Context) {
	id := c.Param("id")
	task, ok := s.findTask(c, id)
	if !ok {
		writeError(c, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
		return
	}

	var contextParts []string
	contextParts = append(contextParts, fmt.Sprintf("Original Task: %s", task.Description))
	if task.Result != nil {
		if content, ok := task.Result["content"].(string); ok && content != "" {
			contextParts = append(contextParts, fmt.Sprintf("Task Result: %s", clip(content, 3000)))
		}
	}
	if agents, ok := req.Context["agents"].([]any); ok && len(agents) > 0 {
		names := make([]string, 0, len(agents))
		for _, a := range agents {
			if name, ok := a.(string); ok {
				names = append(names, name)
			}
		}
		contextParts = append(contextParts, fmt.Sprintf("Available Agents: %s", strings.Join(names, ", ")))
	}

	var sources []string
	if req.UseWebSearch && s.tools.Has("web_search") {
		result, err := s.tools.Call(c.Request.Context(), "web_search", map[string]any{"query": req.Message, "max_results": 3})
		if err != nil || result.Error != "" {
			s.logger.Warn("api: chat web search failed", map[string]interface{}{"task_id": id})
		} else if hits, ok := result.Data.([]tools.SearchHit); ok {
			for _, h := range hits {
				source := h.URL
				if source == "" {
					source = h.Title
				}
				sources = append(sources, source)
				contextParts = append(contextParts, fmt.Sprintf("Web Result: %s", clip(h.Content, 500)))
			}
		}
	}

	agentRole := "assistant"
	if req.TargetAgent != "" {
		agentRole = req.TargetAgent
	}

	prompt := fmt.Sprintf(`<role>
You are a %s answering follow-up questions about a completed task. Use only the
provided context to give an accurate, helpful response.
</role>

<context>
%s
</context>

<user_question>
%s
</user_question>

<instructions>
Answer based only on the provided context. If web search results are included, cite
them. Be concise but thorough. If information isn't in context, say so explicitly.
</instructions>`, agentRole, strings.Join(contextParts, "\n"), req.Message)

	resp, err := s.router.Completion(c.Request.Context(), llm.CompletionRequest{
		Model:       "auto",
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.7,
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("chat failed: %v", err), "CHAT_FAILED")
		return
	}

	out := chatResponse{Response: resp.Content, Sources: sources}
	if req.TargetAgent != "" {
		out.Agent = agentRole
	}
	c.JSON(http.StatusOK, out)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
