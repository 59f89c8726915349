package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/naresh-chaudhary/tw-tasks-executor/internal/obslog"
	"github.com/naresh-chaudhary/tw-tasks-executor/protocol"
	"github.com/naresh-chaudhary/tw-tasks-executor/request_id"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
)

// ScannerConfig configures the resurrection scanner's cadence and batch
// size. Tasks are PENDING past StaleAfter are assumed lost -- their
// trigger message was never produced, or its broker-side partition was
// rebalanced away before anything consumed it -- and are re-triggered.
type ScannerConfig struct {
	// Interval between scans.
	Interval time.Duration `yaml:"interval" default:"1m"`

	// StaleAfter is how long a task may sit PENDING before it is eligible
	// for resurrection.
	StaleAfter time.Duration `yaml:"stale_after" default:"5m"`

	// BatchSize caps tasks resurrected per scan.
	BatchSize int `yaml:"batch_size" default:"500"`
}

func (c *ScannerConfig) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
}

// StaleTaskFinder is the query surface the scanner needs from Store,
// narrowed to an interface so it can be faked in tests without a database.
type StaleTaskFinder interface {
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]triggering.Task, error)
}

// TriggerFunc re-publishes a task, identical in shape to
// triggerer.Triggerer.Trigger. Re-triggering an already-completed task is a
// harmless duplicate under the at-least-once delivery model.
type TriggerFunc func(ctx context.Context, task triggering.Task) error

// Scanner is the resurrection scanner: a ticker that periodically looks
// for tasks stuck PENDING and re-triggers them. It lives outside the
// triggering core proper, since nothing else makes the fire-and-forget
// Triggerer path safe in a standalone run.
type Scanner struct {
	cfg     ScannerConfig
	finder  StaleTaskFinder
	trigger TriggerFunc
	log     *obslog.Throttled

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScanner builds a Scanner. finder and trigger are required.
func NewScanner(cfg ScannerConfig, finder StaleTaskFinder, trigger TriggerFunc, log protocol.Logger) *Scanner {
	cfg.setDefaults()
	return &Scanner{
		cfg:     cfg,
		finder:  finder,
		trigger: trigger,
		log:     obslog.New(log, 1, 3),
	}
}

// Start launches the scan loop. It returns immediately; scanning happens
// in the background until Stop is called.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.run(runCtx)

	return nil
}

// Stop halts the scan loop and waits for any in-flight scan to finish.
func (s *Scanner) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.scanOnce(ctx)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context) {
	runID := uuid.NewString()
	ctx = request_id.ContextWithRequestID(ctx, runID)

	tasks, err := s.finder.FindStalePending(ctx, s.cfg.StaleAfter, s.cfg.BatchSize)
	if err != nil {
		s.log.Error(ctx, "resurrect/find", "resurrection scan failed", "run_id", runID, "err", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	for _, task := range tasks {
		if err := s.trigger(ctx, task); err != nil {
			s.log.Error(ctx, "resurrect/trigger", "resurrection re-trigger failed",
				"run_id", runID, "task_id", task.ID, "err", err)
		}
	}
}
