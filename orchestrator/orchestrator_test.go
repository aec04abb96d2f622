package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmesh/swarmcore/core"
)

var errContextCancelled = errors.New("context canceled")

func TestNew_DefaultsSupervisorProviderToGoogle(t *testing.T) {
	o := New(nil, nil, nil, nil, core.OrchestrationConfig{}, "", nil, nil)
	assert.Equal(t, "google", o.supervisorProvider)
}

func TestNew_KeepsExplicitSupervisorProvider(t *testing.T) {
	o := New(nil, nil, nil, nil, core.OrchestrationConfig{}, "anthropic", nil, nil)
	assert.Equal(t, "anthropic", o.supervisorProvider)
}

func TestCreateTask_StartsPending(t *testing.T) {
	o := New(nil, nil, nil, nil, core.OrchestrationConfig{}, "", nil, nil)
	task := o.CreateTask("do the thing", "auto", map[string]any{"k": "v"})

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, core.TaskPending, task.Status)
	assert.Equal(t, "do the thing", task.Description)
	assert.Equal(t, "auto", task.Provider)
	assert.Equal(t, "v", task.Context["k"])
	assert.False(t, task.CreatedAt.IsZero())
}

func TestValidationSummary_PassedAndFailed(t *testing.T) {
	passed := validationSummary(&core.ValidationOutcome{Passed: true, Score: 0.92})
	assert.Contains(t, passed, "validation passed")

	failed := validationSummary(&core.ValidationOutcome{Passed: false, Score: 0.4, Issues: []string{"a", "b"}})
	assert.Contains(t, failed, "2 issue(s)")
}

func TestRecordLifecycleFailure_CancelledTaskIsLeftAlone(t *testing.T) {
	task := &core.Task{ID: "t1", Status: core.TaskCancelled}

	reported := recordLifecycleFailure(task, errContextCancelled)

	assert.False(t, reported)
	assert.Equal(t, core.TaskCancelled, task.Status)
	assert.Empty(t, task.Error)
}

func TestRecordLifecycleFailure_NonCancelledTaskMarkedFailed(t *testing.T) {
	task := &core.Task{ID: "t1", Status: core.TaskInProgress}

	reported := recordLifecycleFailure(task, errContextCancelled)

	assert.True(t, reported)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, errContextCancelled.Error(), task.Error)
}
