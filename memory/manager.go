package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flowmesh/swarmcore/core"
)

// tokenEstimator is the minimal surface the Manager needs from the Router for
// compression bookkeeping (spec §4.2); satisfied by *llm.Router without creating an
// import cycle between memory and llm.
type tokenEstimator interface {
	EstimateTokens(s string) int
}

// providerLimits is the static table of context-window sizes keyed by normalized model
// family (spec §4.2).
var providerLimits = map[string]int{
	"anthropic":  200000,
	"google":     1000000,
	"openai":     128000,
	"openrouter": 32000,
	"bedrock":    200000,
	"default":    32000,
}

// Manager is the Memory Manager facade federating the ephemeral/vector/durable tiers
// (spec §4.2). It is a pure orchestration layer: per-tier errors are isolated from one
// another.
type Manager struct {
	ephemeral Ephemeral
	vector    Vector // optional; nil when no vector store is configured
	durable   Durable
	estimator tokenEstimator
	logger    core.Logger
}

// NewManager constructs a Manager. vector may be nil (a missing vector tier must not
// prevent writes to durable, spec §9).
func NewManager(ephemeral Ephemeral, vector Vector, durable Durable, estimator tokenEstimator, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{ephemeral: ephemeral, vector: vector, durable: durable, estimator: estimator, logger: logger}
}

// Write fans entry out to every tier that applies: TTL present -> ephemeral; embedding
// present -> vector; always -> durable. It emits an update on the ephemeral stream
// memory:stream:<task> keyed by entry.Namespace. A write succeeds if the durable tier
// succeeds; other tiers are best-effort. If durable also fails, Write reports failure,
// but callers (the orchestrator) must treat checkpointing as best-effort and continue
// (spec §4.2 — a deliberate deviation from the original's blanket-swallow semantics:
// here the failure is surfaced to the caller, not hidden).
func (m *Manager) Write(ctx context.Context, entry *core.MemoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.TTLSeconds != nil {
		if err := m.ephemeral.Set(ctx, entry.Namespace+":"+entry.ID, entry.Content, *entry.TTLSeconds); err != nil {
			m.logger.Warn("memory: ephemeral write failed, continuing", map[string]interface{}{"id": entry.ID, "error": err.Error()})
		}
	}

	if len(entry.Embedding) > 0 && m.vector != nil {
		if err := m.vector.Upsert(ctx, entry.Namespace, entry.ID, entry.Embedding, entry.Metadata); err != nil {
			m.logger.Warn("memory: vector write failed, continuing", map[string]interface{}{"id": entry.ID, "error": err.Error()})
		}
	}

	durableErr := m.durable.Save(ctx, entry)
	if durableErr != nil {
		m.logger.Error("memory: durable write failed", map[string]interface{}{"id": entry.ID, "error": durableErr.Error()})
	}

	streamErr := m.ephemeral.Publish(ctx, "memory:stream:"+taskFromNamespace(entry.Namespace), map[string]any{
		"action":   "write",
		"entry_id": entry.ID,
		"scope":    string(entry.Scope),
	})
	if streamErr != nil {
		m.logger.Warn("memory: stream publish failed", map[string]interface{}{"id": entry.ID, "error": streamErr.Error()})
	}

	if durableErr != nil {
		return core.NewTaskError("memory.Manager.Write", core.KindPersistenceFailed, entry.ID, durableErr)
	}
	return nil
}

func taskFromNamespace(namespace string) string {
	if strings.HasPrefix(namespace, "task:") {
		return strings.TrimPrefix(namespace, "task:")
	}
	return namespace
}

// Read unions per-scope retrievals (agent -> task -> global), deduplicates by id or by
// the first 100 characters of content, then compresses the result to fit the target
// provider's context window (spec §4.2).
func (m *Manager) Read(ctx context.Context, taskID, agentID string, queryEmbedding []float32, provider string, limit int) ([]*core.MemoryEntry, error) {
	var entries []*core.MemoryEntry

	if agentID != "" {
		agentEntries, err := m.durable.Query(ctx, "agent:"+agentID, core.ScopeAgent, limit)
		if err != nil {
			m.logger.Warn("memory: agent-scope read failed", map[string]interface{}{"error": err.Error()})
		} else {
			entries = append(entries, agentEntries...)
		}
	}

	taskEntries, err := m.durable.Query(ctx, "task:"+taskID, core.ScopeTask, limit)
	if err != nil {
		m.logger.Warn("memory: task-scope read failed", map[string]interface{}{"error": err.Error()})
	} else {
		entries = append(entries, taskEntries...)
	}

	globalEntries, err := m.durable.Query(ctx, "global", core.ScopeGlobal, limit)
	if err != nil {
		m.logger.Warn("memory: global-scope read failed", map[string]interface{}{"error": err.Error()})
	} else {
		entries = append(entries, globalEntries...)
	}

	if len(queryEmbedding) > 0 && m.vector != nil {
		hits, err := m.vector.Search(ctx, "task:"+taskID, queryEmbedding, limit, nil)
		if err != nil {
			m.logger.Warn("memory: vector read failed", map[string]interface{}{"error": err.Error()})
		} else {
			for _, h := range hits {
				content, _ := h.Payload["content"].(string)
				entries = append(entries, &core.MemoryEntry{ID: h.ID, Namespace: "task:" + taskID, Content: content, Metadata: h.Payload})
			}
		}
	}

	entries = dedup(entries)
	return m.compress(entries, provider), nil
}

func dedup(entries []*core.MemoryEntry) []*core.MemoryEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]*core.MemoryEntry, 0, len(entries))
	for _, e := range entries {
		key := e.ID
		if key == "" {
			key = shortContentKey(e.Content)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func shortContentKey(content string) string {
	if len(content) <= 100 {
		return content
	}
	return content[:100]
}

// compress fits entries into 90% of provider's context window, progressively:
// (a) keep only the last 5 conversation message-pairs, (b) truncate each document to a
// word boundary at ≤ limit/4 characters, (c) cap the entry count to limit/1000 — in
// that order, each step only when the previous one left the total over budget. The
// count cap keeps the first limit/1000 entries in their current order, whatever their
// size (spec §4.2, SUPPLEMENTED from context_normalizer.py).
func (m *Manager) compress(entries []*core.MemoryEntry, provider string) []*core.MemoryEntry {
	limit := providerLimits["default"]
	if l, ok := providerLimits[normalizeProviderFamily(provider)]; ok {
		limit = l
	}

	totalTokens := func(es []*core.MemoryEntry) int {
		sum := 0
		for _, e := range es {
			sum += m.estimator.EstimateTokens(e.Content)
		}
		return sum
	}

	if totalTokens(entries) <= int(float64(limit)*0.9) {
		return entries
	}

	entries = keepLastMessagePairs(entries, 5)
	if totalTokens(entries) <= int(float64(limit)*0.9) {
		return entries
	}

	maxDocChars := limit / 4
	for _, e := range entries {
		if len(e.Content) > maxDocChars {
			e.Content = truncateAtWordBoundary(e.Content, maxDocChars)
		}
	}
	if totalTokens(entries) <= int(float64(limit)*0.9) {
		return entries
	}

	maxEntries := limit / 1000
	if maxEntries < 1 {
		maxEntries = 1
	}
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return entries
}

// keepLastMessagePairs retains only the final n conversational turn-pairs among
// entries tagged as conversation history (metadata["kind"] == "conversation"),
// leaving other entries untouched.
func keepLastMessagePairs(entries []*core.MemoryEntry, n int) []*core.MemoryEntry {
	var conversation, other []*core.MemoryEntry
	for _, e := range entries {
		if e.Metadata != nil && e.Metadata["kind"] == "conversation" {
			conversation = append(conversation, e)
		} else {
			other = append(other, e)
		}
	}

	keep := n * 2 // a "pair" is a user+assistant turn
	if len(conversation) > keep {
		conversation = conversation[len(conversation)-keep:]
	}
	return append(other, conversation...)
}

func truncateAtWordBoundary(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	cut := strings.LastIndexByte(s[:maxChars], ' ')
	if cut <= 0 {
		cut = maxChars
	}
	return s[:cut]
}

func normalizeProviderFamily(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if idx := strings.Index(p, "/"); idx != -1 {
		p = p[:idx]
	}
	switch {
	case strings.Contains(p, "claude") || p == "anthropic":
		return "anthropic"
	case strings.Contains(p, "gemini") || p == "google":
		return "google"
	case strings.Contains(p, "gpt") || p == "openai":
		return "openai"
	case p == "openrouter":
		return "openrouter"
	case p == "bedrock":
		return "bedrock"
	default:
		return "default"
	}
}

// SaveTask, GetTask, ListTasks, and DeleteTask pass straight through to the durable
// tier; the orchestrator and HTTP layer depend only on Manager, not Durable directly,
// so the durable tier can be swapped without touching callers.

func (m *Manager) SaveTask(ctx context.Context, task *core.Task) error {
	return m.durable.SaveTask(ctx, task)
}

func (m *Manager) GetTask(ctx context.Context, id string) (*core.Task, error) {
	return m.durable.GetTask(ctx, id)
}

func (m *Manager) ListTasks(ctx context.Context, status core.TaskStatus, limit, offset int) ([]*core.Task, error) {
	return m.durable.ListTasks(ctx, status, limit, offset)
}

func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	return m.durable.DeleteTask(ctx, id)
}

// Publish emits a raw event on a task's ephemeral stream, used by the orchestrator for
// lifecycle events that are not themselves memory writes (e.g. status transitions).
func (m *Manager) Publish(ctx context.Context, taskID string, event map[string]any) error {
	return m.ephemeral.Publish(ctx, fmt.Sprintf("memory:stream:%s", taskID), event)
}

// Subscribe exposes the ephemeral tier's stream for SSE handlers (spec §6).
func (m *Manager) Subscribe(ctx context.Context, taskID string) (<-chan map[string]any, error) {
	return m.ephemeral.Subscribe(ctx, fmt.Sprintf("memory:stream:%s", taskID))
}
