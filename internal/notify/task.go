package notify

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindBooking          Kind = "booking"
	KindStatusUpdate     Kind = "status_update"
	KindVerificationCode Kind = "verification_code"
)

// Task is the queued unit of work. It carries everything needed to render the
// message so the worker never reads the database.
type Task struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"kind"`
	Attempts int       `json:"attempts"`

	Email            string `json:"email"`
	RecipientName    string `json:"recipient_name"`
	CounterpartyName string `json:"counterparty_name,omitempty"`

	Date   time.Time `json:"date,omitempty"`
	Time   time.Time `json:"time,omitempty"`
	Status string    `json:"status,omitempty"`

	Code             string `json:"code,omitempty"`
	ExpiresInMinutes int    `json:"expires_in_minutes,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}
