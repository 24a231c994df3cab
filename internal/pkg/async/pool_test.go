package async

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCollectsAllResults(t *testing.T) {
	var ran int32
	tasks := make([]Task, 0, 12)
	for i := 0; i < 12; i++ {
		i := i
		tasks = append(tasks, Task{
			Name: fmt.Sprintf("task-%d", i),
			Execute: func(ctx context.Context) (any, error) {
				atomic.AddInt32(&ran, 1)
				return i * 2, nil
			},
		})
	}

	results := NewPool(3).Execute(context.Background(), tasks)

	require.Len(t, results, 12)
	assert.Equal(t, int32(12), atomic.LoadInt32(&ran))
	assert.Equal(t, 10, results["task-5"].Data)
	assert.NoError(t, FirstError(results))
}

func TestFirstErrorWrapsTaskName(t *testing.T) {
	boom := errors.New("boom")
	results := NewPool(2).Execute(context.Background(), []Task{
		{Name: "total", Execute: func(context.Context) (any, error) { return int64(3), nil }},
		{Name: "countries", Execute: func(context.Context) (any, error) { return nil, boom }},
	})

	err := FirstError(results)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "error fetching countries: boom", err.Error())
}

func TestExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewPool(2).Execute(ctx, []Task{
		{Name: "a", Execute: func(context.Context) (any, error) { return 1, nil }},
		{Name: "b", Execute: func(context.Context) (any, error) { return 2, nil }},
	})

	require.Len(t, results, 2)
	for _, r := range results {
		if r.Err != nil {
			assert.ErrorIs(t, r.Err, context.Canceled)
		}
	}
}

func TestNewPoolClampsWorkers(t *testing.T) {
	results := NewPool(0).Execute(context.Background(), []Task{
		{Name: "only", Execute: func(context.Context) (any, error) { return "ok", nil }},
	})
	assert.Equal(t, "ok", results["only"].Data)
}
