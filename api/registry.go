package api

import (
	"context"
	"sort"
	"sync"

	"github.com/flowmesh/swarmcore/core"
)

// taskRegistry tracks in-flight and recently-created Tasks in memory, holding the same
// *core.Task pointer the Orchestrator mutates in place over a task's lifecycle, plus the
// cancel func for its background execution goroutine. The durable store is the
// system of record across restarts; this registry exists so GET /api/tasks/{id} sees a
// task's live, in-progress fields without round-tripping through the durable tier on
// every poll, and so DELETE can make a cancelled task's entry disappear immediately
// (spec §5: "After cancellation, the task's registry entry is removed").
type taskRegistry struct {
	mu      sync.RWMutex
	tasks   map[string]*core.Task
	cancels map[string]context.CancelFunc
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{
		tasks:   make(map[string]*core.Task),
		cancels: make(map[string]context.CancelFunc),
	}
}

func (r *taskRegistry) put(task *core.Task, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
	r.cancels[task.ID] = cancel
}

func (r *taskRegistry) get(id string) (*core.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// remove deletes id from the registry and returns its cancel func, if any, so the
// caller can cancel the running goroutine after releasing the lock.
func (r *taskRegistry) remove(id string) context.CancelFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel := r.cancels[id]
	delete(r.tasks, id)
	delete(r.cancels, id)
	return cancel
}

func (r *taskRegistry) list() []*core.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// mergeTasks combines a durable-store page with the in-memory registry's live view,
// the in-memory copy winning on ID collision since it reflects progress the durable
// tier has not yet been checkpointed with (spec §6: "in-memory wins").
func mergeTasks(durable []*core.Task, live []*core.Task) []*core.Task {
	byID := make(map[string]*core.Task, len(durable)+len(live))
	for _, t := range durable {
		byID[t.ID] = t
	}
	for _, t := range live {
		byID[t.ID] = t
	}
	out := make([]*core.Task, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
