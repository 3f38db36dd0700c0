package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

// Enqueuer is the write side of the task queue.
type Enqueuer interface {
	Push(ctx context.Context, payload []byte) error
}

const defaultEnqueueTimeout = 3 * time.Second

// Dispatcher queues notification tasks without blocking the caller. Enqueue
// failures are logged and counted, never returned.
type Dispatcher struct {
	queue   Enqueuer
	logger  zerolog.Logger
	metrics *metrics.BookingMetrics
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ appointment.Notifier = (*Dispatcher)(nil)

func NewDispatcher(queue Enqueuer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		logger:  logger.With().Str("component", "notify_dispatcher").Logger(),
		timeout: defaultEnqueueTimeout,
	}
}

func (d *Dispatcher) WithMetrics(m *metrics.BookingMetrics) *Dispatcher {
	d.metrics = m
	return d
}

func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

func (d *Dispatcher) NotifyBooking(ctx context.Context, n appointment.BookingNotice) {
	d.dispatch(ctx, Task{
		Kind:             KindBooking,
		Email:            n.Email,
		RecipientName:    n.RecipientName,
		CounterpartyName: n.CounterpartyName,
		Date:             n.Date,
		Time:             n.Time,
	})
}

func (d *Dispatcher) NotifyStatusUpdate(ctx context.Context, n appointment.StatusNotice) {
	d.dispatch(ctx, Task{
		Kind:             KindStatusUpdate,
		Email:            n.Email,
		RecipientName:    n.RecipientName,
		CounterpartyName: n.CounterpartyName,
		Date:             n.Date,
		Time:             n.Time,
		Status:           string(n.Status),
	})
}

func (d *Dispatcher) NotifyVerificationCode(ctx context.Context, name, email, code string, ttl time.Duration) {
	d.dispatch(ctx, Task{
		Kind:             KindVerificationCode,
		Email:            email,
		RecipientName:    name,
		Code:             code,
		ExpiresInMinutes: int(ttl / time.Minute),
	})
}

// Wait blocks until every dispatched task has been handed to the queue.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, task Task) {
	task.ID = uuid.New()
	task.EnqueuedAt = time.Now().UTC()

	// The request context may be cancelled as soon as the handler returns.
	detached := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		enqueueCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		if err := d.enqueue(enqueueCtx, task); err != nil {
			d.metrics.ObserveNotification(string(task.Kind), "enqueue_failed")
			d.logger.Error().Err(err).
				Str("task_id", task.ID.String()).
				Str("kind", string(task.Kind)).
				Str("email", task.Email).
				Msg("failed to enqueue notification")
			return
		}
		d.metrics.ObserveNotification(string(task.Kind), "enqueued")
		d.logger.Debug().Str("task_id", task.ID.String()).Str("kind", string(task.Kind)).Msg("notification enqueued")
	}()
}

func (d *Dispatcher) enqueue(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return d.queue.Push(ctx, payload)
}
