package processing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naresh-chaudhary/tw-tasks-executor/processing"
	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
)

func task(bucket string, offset int64) triggering.TaskTriggering {
	return triggering.TaskTriggering{
		Task:      triggering.TriggerMessage{ID: offset, Version: 1, Type: "t"},
		BucketID:  bucket,
		Partition: 0,
		Offset:    offset,
	}
}

func TestAddTaskForProcessingRunsAndCompletes(t *testing.T) {
	release := make(chan struct{})
	svc := processing.New(func(ctx context.Context, tt triggering.TaskTriggering) error {
		<-release
		return nil
	}, protocol.NopLogger{})
	svc.ConfigureBucket("b", 1)

	var mu sync.Mutex
	var got []int64
	done := make(chan struct{})
	svc.OnCompletion(func(bucketID, topic string, partition int32, offset int64, sameProcessTrigger bool) {
		mu.Lock()
		got = append(got, offset)
		mu.Unlock()
		close(done)
	})

	resp := svc.AddTaskForProcessing(context.Background(), task("b", 7), false)
	assert.Equal(t, triggering.ProcessingOK, resp)

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion listener never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{7}, got)
}

func TestAddTaskForProcessingReturnsFullWhenBucketSaturated(t *testing.T) {
	block := make(chan struct{})
	svc := processing.New(func(ctx context.Context, tt triggering.TaskTriggering) error {
		<-block
		return nil
	}, protocol.NopLogger{})
	svc.ConfigureBucket("b", 1)
	defer close(block)

	require.Equal(t, triggering.ProcessingOK, svc.AddTaskForProcessing(context.Background(), task("b", 1), false))
	assert.Equal(t, triggering.ProcessingFull, svc.AddTaskForProcessing(context.Background(), task("b", 2), false))
}

func TestAwaitSlotWakesOnCompletion(t *testing.T) {
	release := make(chan struct{})
	svc := processing.New(func(ctx context.Context, tt triggering.TaskTriggering) error {
		<-release
		return nil
	}, protocol.NopLogger{})
	svc.ConfigureBucket("b", 1)

	require.Equal(t, triggering.ProcessingOK, svc.AddTaskForProcessing(context.Background(), task("b", 1), false))
	since := svc.Version("b")

	woke := make(chan uint64, 1)
	go func() {
		woke <- svc.AwaitSlot(context.Background(), "b", since, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case v := <-woke:
		assert.Greater(t, v, since)
	case <-time.After(time.Second):
		t.Fatal("AwaitSlot never woke")
	}
}

func TestAwaitSlotReturnsUnchangedVersionOnTimeout(t *testing.T) {
	svc := processing.New(nil, protocol.NopLogger{})
	since := svc.Version("idle")

	start := time.Now()
	v := svc.AwaitSlot(context.Background(), "idle", since, 30*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, since, v)
}

func TestAwaitSlotReturnsImmediatelyWhenVersionAlreadyAdvanced(t *testing.T) {
	svc := processing.New(func(ctx context.Context, tt triggering.TaskTriggering) error {
		return nil
	}, protocol.NopLogger{})
	svc.ConfigureBucket("b", 1)

	require.Equal(t, triggering.ProcessingOK, svc.AddTaskForProcessing(context.Background(), task("b", 1), false))

	require.Eventually(t, func() bool {
		return svc.Version("b") > 0
	}, time.Second, time.Millisecond)

	start := time.Now()
	v := svc.AwaitSlot(context.Background(), "b", 0, time.Second)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, uint64(1), v)
}

func TestAddTaskForProcessingMarksSameProcessTrigger(t *testing.T) {
	svc := processing.New(func(ctx context.Context, tt triggering.TaskTriggering) error {
		return nil
	}, protocol.NopLogger{})
	svc.ConfigureBucket("b", 4)

	done := make(chan bool, 1)
	svc.OnCompletion(func(bucketID, topic string, partition int32, offset int64, sameProcessTrigger bool) {
		done <- sameProcessTrigger
	})

	svc.AddTaskForProcessing(context.Background(), task("b", 1), true)
	select {
	case same := <-done:
		assert.True(t, same)
	case <-time.After(time.Second):
		t.Fatal("completion listener never fired")
	}
}
