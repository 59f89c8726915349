package processing

import (
	"context"
	"sync"
	"time"

	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
)

// DefaultCapacity is used for any bucket that AddTaskForProcessing sees
// before ConfigureBucket has been called for it.
const DefaultCapacity = 32

// Executor actually runs a task. The real task-execution engine is out of
// scope for this core; Executor is the seam a host application plugs
// its own dispatch into.
type Executor func(ctx context.Context, t triggering.TaskTriggering) error

// Service is a minimal, concrete triggering.ProcessingService: each bucket
// gets a bounded number of concurrent slots, AddTaskForProcessing returns
// ProcessingFull once a bucket's slots are exhausted, and a completion
// listener fires (with the monotonic version bumped and waiters woken)
// once a task's Executor call returns.
type Service struct {
	executor Executor
	log      protocol.Logger

	mu       sync.Mutex
	buckets  map[string]*bucketState
	listener triggering.CompletionListener
}

type bucketState struct {
	capacity int
	inUse    int
	version  uint64
	changed  chan struct{}
}

// New creates a Service that runs accepted tasks via executor.
func New(executor Executor, log protocol.Logger) *Service {
	if log == nil {
		log = protocol.NopLogger{}
	}
	return &Service{
		executor: executor,
		log:      log,
		buckets:  make(map[string]*bucketState),
	}
}

// ConfigureBucket sets bucketID's concurrent slot capacity. Call before the
// bucket's poll loop starts; calling it again resizes capacity in place.
func (s *Service) ConfigureBucket(bucketID string, capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(bucketID).capacity = capacity
}

func (s *Service) bucket(bucketID string) *bucketState {
	bs, ok := s.buckets[bucketID]
	if !ok {
		bs = &bucketState{capacity: DefaultCapacity, changed: make(chan struct{})}
		s.buckets[bucketID] = bs
	}
	return bs
}

// OnCompletion implements triggering.ProcessingService.
func (s *Service) OnCompletion(listener triggering.CompletionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// AddTaskForProcessing implements triggering.ProcessingService.
func (s *Service) AddTaskForProcessing(ctx context.Context, t triggering.TaskTriggering, sameProcessTrigger bool) triggering.ProcessingResponse {
	s.mu.Lock()
	bs := s.bucket(t.BucketID)
	if bs.inUse >= bs.capacity {
		s.mu.Unlock()
		return triggering.ProcessingFull
	}
	bs.inUse++
	s.mu.Unlock()

	go s.run(ctx, t, sameProcessTrigger, bs)

	return triggering.ProcessingOK
}

func (s *Service) run(ctx context.Context, t triggering.TaskTriggering, sameProcessTrigger bool, bs *bucketState) {
	var err error
	if s.executor != nil {
		err = s.executor(ctx, t)
	}
	if err != nil {
		s.log.Error(ctx, "task execution failed",
			"bucket", t.BucketID, "task_id", t.Task.ID, "task_type", t.Task.Type, "err", err)
	}

	s.mu.Lock()
	bs.inUse--
	bs.version++
	changed := bs.changed
	bs.changed = make(chan struct{})
	listener := s.listener
	s.mu.Unlock()
	close(changed)

	if listener != nil {
		listener(t.BucketID, t.Topic, t.Partition, t.Offset, sameProcessTrigger)
	}
}

// Version implements triggering.ProcessingService.
func (s *Service) Version(bucketID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucket(bucketID).version
}

// AwaitSlot implements triggering.ProcessingService.
func (s *Service) AwaitSlot(ctx context.Context, bucketID string, since uint64, timeout time.Duration) uint64 {
	s.mu.Lock()
	bs := s.bucket(bucketID)
	if bs.version != since {
		v := bs.version
		s.mu.Unlock()
		return v
	}
	changed := bs.changed
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-changed:
	case <-ctx.Done():
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return bs.version
}
