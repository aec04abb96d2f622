package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/swarmcore/core"
)

func TestTaskRegistry_PutGetRemove(t *testing.T) {
	r := newTaskRegistry()
	task := &core.Task{ID: "t1", Status: core.TaskPending}
	_, cancel := context.WithCancel(context.Background())

	r.put(task, cancel)

	got, ok := r.get("t1")
	require.True(t, ok)
	assert.Same(t, task, got)

	removed := r.remove("t1")
	require.NotNil(t, removed)

	_, ok = r.get("t1")
	assert.False(t, ok)
}

func TestTaskRegistry_List(t *testing.T) {
	r := newTaskRegistry()
	r.put(&core.Task{ID: "a"}, func() {})
	r.put(&core.Task{ID: "b"}, func() {})

	assert.Len(t, r.list(), 2)
}

func TestMergeTasks_LiveWinsOnCollision(t *testing.T) {
	durable := []*core.Task{
		{ID: "t1", Status: core.TaskPending, CreatedAt: time.Unix(100, 0)},
	}
	live := []*core.Task{
		{ID: "t1", Status: core.TaskInProgress, CreatedAt: time.Unix(100, 0)},
	}

	merged := mergeTasks(durable, live)
	require.Len(t, merged, 1)
	assert.Equal(t, core.TaskInProgress, merged[0].Status)
}

func TestMergeTasks_SortedByCreatedAtDescending(t *testing.T) {
	durable := []*core.Task{
		{ID: "old", CreatedAt: time.Unix(1, 0)},
		{ID: "new", CreatedAt: time.Unix(100, 0)},
	}

	merged := mergeTasks(durable, nil)
	require.Len(t, merged, 2)
	assert.Equal(t, "new", merged[0].ID)
	assert.Equal(t, "old", merged[1].ID)
}
