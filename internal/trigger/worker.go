package trigger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/outreach-ai-platform/internal/inbox"
	"github.com/wolfman30/outreach-ai-platform/internal/outreach"
	"github.com/wolfman30/outreach-ai-platform/pkg/logging"
)

const (
	defaultReceiveWaitSeconds = 10
	defaultReceiveBatchSize   = 1
	maxReceiveWaitSeconds     = 20
	maxReceiveBatchSize       = 10
	deleteTimeoutSeconds      = 5
)

type workerConfig struct {
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes Worker behavior.
type WorkerOption func(*workerConfig)

// WithReceiveWaitSeconds sets the long-poll wait, capped at the SQS maximum.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			seconds = 0
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many triggers are pulled per receive.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			size = 1
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker consumes triggers and runs them one at a time. Cycles never overlap
// inside one worker; the cycle lock covers overlap across workers.
type Worker struct {
	queue   Queue
	runner  outreach.CycleRunner
	checker inbox.ReplyChecker
	logger  *logging.Logger
	cfg     workerConfig
	wg      sync.WaitGroup
}

func NewWorker(queue Queue, runner outreach.CycleRunner, checker inbox.ReplyChecker, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("trigger: queue cannot be nil")
	}
	if runner == nil {
		panic("trigger: cycle runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		receiveWaitSecs:  defaultReceiveWaitSeconds,
		receiveBatchSize: defaultReceiveBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Worker{
		queue:   queue,
		runner:  runner,
		checker: checker,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the consumer goroutine. It exits when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the consumer goroutine exits.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Debug("trigger worker started")

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			w.logger.Debug("trigger worker stopping")
			return
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive triggers", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.Handle(ctx, msg)
		}
	}
}

// Handle runs one trigger and deletes it. A trigger interrupted by shutdown
// stays on the queue for redelivery.
func (w *Worker) Handle(ctx context.Context, msg QueueMessage) {
	payload, err := DecodePayload(msg.Body)
	if err != nil {
		w.logger.Error("dropping malformed trigger", "error", err, "msg_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	logger := w.logger.With("trigger_id", payload.ID, "kind", payload.Kind)
	err = w.dispatch(ctx, payload)
	switch {
	case err == nil:
	case errors.Is(err, outreach.ErrCycleInProgress):
		logger.Info("trigger skipped: cycle already running")
	case ctx.Err() != nil:
		logger.Warn("trigger interrupted by shutdown", "error", err)
		return
	default:
		logger.Error("trigger failed", "error", err)
	}
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) dispatch(ctx context.Context, payload Payload) error {
	switch payload.Kind {
	case KindRunCycle:
		report, err := w.runner.RunCycle(ctx, triggerName(payload))
		if err != nil {
			return err
		}
		w.logger.Info("cycle finished from trigger", "trigger_id", payload.ID, "cycle_id", report.CycleID, "applied", report.Applied, "failed", report.Failed)
	case KindCheckReplies:
		if w.checker == nil {
			w.logger.Warn("reply check trigger ignored: no reply checker configured", "trigger_id", payload.ID)
			return nil
		}
		report, err := w.checker.CheckReplies(ctx)
		if err != nil {
			return err
		}
		w.logger.Info("reply check finished from trigger", "trigger_id", payload.ID, "recorded", report.Recorded)
	}
	return nil
}

func triggerName(payload Payload) string {
	if payload.Source != "" {
		return "queue:" + payload.Source
	}
	return "queue"
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete trigger", "error", err)
	}
}
