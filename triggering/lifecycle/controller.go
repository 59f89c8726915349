package lifecycle

import (
	"context"
	"sync"

	"github.com/looplab/fsm"

	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
)

// State is a bucket's processing state.
type State string

const (
	StateStopped      State = "STOPPED"
	StateStarted      State = "STARTED"
	StateStopProgress State = "STOP_IN_PROGRESS"
)

const (
	actionStart    = "start"
	actionStopping = "stopping"
	actionStopped  = "stopped"
	actionFailed   = "failed"
)

// Worker is the per-bucket unit a Controller starts and stops. ConsumerBucket
// implements this via protocol.Lifecycle.
type Worker = protocol.Lifecycle

type entry struct {
	machine   *fsm.FSM
	worker    Worker
	autoStart bool
}

// Controller drives STOPPED → STARTED → STOP_IN_PROGRESS → STOPPED
// transitions for every registered bucket, generalizing application.FSM's
// binary started/stopped machine to the three states a bucket's stop
// sequence passes through.
type Controller struct {
	mu           sync.Mutex
	entries      map[string]*entry
	log          protocol.Logger
	shuttingDown bool
}

// New creates an empty Controller. Register each bucket before calling
// ApplicationStarted.
func New(log protocol.Logger) *Controller {
	if log == nil {
		log = protocol.NopLogger{}
	}
	return &Controller{entries: make(map[string]*entry), log: log}
}

// Register adds bucketID's worker under lifecycle control. autoStart mirrors
// BucketConfig.AutoStartProcessing.
func (c *Controller) Register(bucketID string, worker Worker, autoStart bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[bucketID] = &entry{
		machine: fsm.NewFSM(
			string(StateStopped),
			fsm.Events{
				{Name: actionStart, Src: []string{string(StateStopped)}, Dst: string(StateStarted)},
				{Name: actionStopping, Src: []string{string(StateStarted)}, Dst: string(StateStopProgress)},
				{Name: actionStopped, Src: []string{string(StateStopProgress)}, Dst: string(StateStopped)},
				{Name: actionFailed, Src: []string{string(StateStarted)}, Dst: string(StateStopped)},
			},
			fsm.Callbacks{},
		),
		worker:    worker,
		autoStart: autoStart,
	}
}

// ApplicationStarted starts every registered bucket configured with
// autoStart=true.
func (c *Controller) ApplicationStarted(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entries))
	for id, e := range c.entries {
		if e.autoStart {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.StartTasksProcessing(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StartTasksProcessing starts bucketID's worker if it is STOPPED. It is a
// no-op, not an error, if the bucket is already STARTED or STOP_IN_PROGRESS.
// An empty bucketID means triggering.DefaultBucketID.
func (c *Controller) StartTasksProcessing(ctx context.Context, bucketID string) error {
	bucketID = orDefault(bucketID)

	c.mu.Lock()
	e, ok := c.entries[bucketID]
	if !ok {
		c.mu.Unlock()
		return triggering.ErrBucketNotFound
	}
	if !e.machine.Can(actionStart) {
		c.mu.Unlock()
		return nil
	}
	if err := e.machine.Event(actionStart); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if err := e.worker.Start(ctx); err != nil {
		c.mu.Lock()
		_ = e.machine.Event(actionFailed)
		c.mu.Unlock()
		return err
	}
	return nil
}

// StopTasksProcessing moves bucketID to STOP_IN_PROGRESS and stops its
// worker in the background, returning a channel closed once the bucket has
// fully reached STOPPED. A bucket that is
// not STARTED returns an already-closed channel.
func (c *Controller) StopTasksProcessing(ctx context.Context, bucketID string) <-chan struct{} {
	bucketID = orDefault(bucketID)
	done := make(chan struct{})

	c.mu.Lock()
	e, ok := c.entries[bucketID]
	if !ok || !e.machine.Can(actionStopping) {
		c.mu.Unlock()
		close(done)
		return done
	}
	_ = e.machine.Event(actionStopping)
	c.mu.Unlock()

	go func() {
		defer close(done)
		if err := e.worker.Stop(ctx); err != nil {
			c.log.Error(ctx, "stop tasks processing failed", "bucket", bucketID, "err", err)
		}
		c.mu.Lock()
		_ = e.machine.Event(actionStopped)
		c.mu.Unlock()
	}()

	return done
}

// GetTasksProcessingState reports bucketID's current state.
func (c *Controller) GetTasksProcessingState(bucketID string) (State, bool) {
	bucketID = orDefault(bucketID)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[bucketID]
	if !ok {
		return "", false
	}
	return State(e.machine.Current()), true
}

// PrepareForShutdown marks the controller as shutting down and stops every
// registered bucket. CanShutdown reports once they have all drained.
func (c *Controller) PrepareForShutdown(ctx context.Context) {
	c.mu.Lock()
	c.shuttingDown = true
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	dones := make([]<-chan struct{}, 0, len(ids))
	for _, id := range ids {
		dones = append(dones, c.StopTasksProcessing(ctx, id))
	}
	for _, done := range dones {
		<-done
	}
}

// CanShutdown reports whether every bucket has reached STOPPED following a
// PrepareForShutdown call.
func (c *Controller) CanShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.shuttingDown {
		return false
	}
	for _, e := range c.entries {
		if State(e.machine.Current()) != StateStopped {
			return false
		}
	}
	return true
}

func orDefault(bucketID string) string {
	if bucketID == "" {
		return triggering.DefaultBucketID
	}
	return bucketID
}
