package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// Source is the consuming side of the task queue. Failed tasks are pushed
// back onto it.
type Source interface {
	Enqueuer
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Len(ctx context.Context) (int64, error)
}

// Worker drains the notification queue and delivers each task by email.
type Worker struct {
	queue       Source
	sender      EmailSender
	logger      zerolog.Logger
	metrics     *metrics.BookingMetrics
	maxAttempts int
	pollTimeout time.Duration
}

func NewWorker(queue Source, sender EmailSender, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:       queue,
		sender:      sender,
		logger:      logger.With().Str("component", "notify_worker").Logger(),
		maxAttempts: 3,
		pollTimeout: 5 * time.Second,
	}
}

func (w *Worker) WithMetrics(m *metrics.BookingMetrics) *Worker {
	w.metrics = m
	return w
}

func (w *Worker) WithMaxAttempts(n int) *Worker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

func (w *Worker) WithPollTimeout(d time.Duration) *Worker {
	if d > 0 {
		w.pollTimeout = d
	}
	return w
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("notify worker stopping")
			return
		default:
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error().Err(err).Msg("failed to receive notification task")
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
		if processed {
			backoff = time.Second
		}
	}
}

// RunOnce waits up to the poll timeout for one task and handles it. It
// reports false when the queue stayed empty.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	payload, err := w.queue.Pop(ctx, w.pollTimeout)
	if errors.Is(err, redisclient.ErrQueueEmpty) {
		w.metrics.SetQueueDepth(0)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	w.handle(ctx, payload)
	w.sampleDepth(ctx)
	return true, nil
}

// sampleDepth publishes the backlog left after a task was handled.
func (w *Worker) sampleDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	n, err := w.queue.Len(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to read notification queue depth")
		return
	}
	w.metrics.SetQueueDepth(n)
}

func (w *Worker) handle(ctx context.Context, payload []byte) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		w.logger.Error().Err(err).Msg("failed to decode notification task, dropping")
		w.metrics.ObserveNotification("unknown", "dropped")
		return
	}

	log := w.logger.With().
		Str("task_id", task.ID.String()).
		Str("kind", string(task.Kind)).
		Int("attempt", task.Attempts+1).
		Logger()

	msg, err := Render(task)
	if err != nil {
		log.Error().Err(err).Msg("cannot render notification, dropping")
		w.metrics.ObserveNotification(string(task.Kind), "dropped")
		return
	}

	if err := w.sender.Send(ctx, msg); err != nil {
		task.Attempts++
		if task.Attempts >= w.maxAttempts {
			log.Error().Err(err).Str("email", task.Email).Msg("notification failed, giving up")
			w.metrics.ObserveNotification(string(task.Kind), "failed")
			return
		}

		log.Warn().Err(err).Msg("notification failed, requeueing")
		w.metrics.ObserveNotification(string(task.Kind), "retried")
		if err := w.requeue(ctx, task); err != nil {
			log.Error().Err(err).Msg("failed to requeue notification")
		}
		return
	}

	log.Info().Str("email", task.Email).Msg("notification delivered")
	w.metrics.ObserveNotification(string(task.Kind), "delivered")
}

func (w *Worker) requeue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.queue.Push(context.WithoutCancel(ctx), payload)
}
