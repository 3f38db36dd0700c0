package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrPatientNotFound      = notFound("patient not found")
	ErrProfessionalNotFound = notFound("no medical professional found for that id")
	ErrAppointmentNotFound  = notFound("appointment not found")
	ErrVisitHistoryNotFound = notFound("visit history not found")
	ErrAvailabilityNotFound = notFound("availability not found")
)

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Availability store reads
	ListUnbookedAvailability(ctx context.Context, professionalID uuid.UUID) ([]Availability, error)

	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]Appointment, error)

	ListVisitHistoryByPatient(ctx context.Context, patientID uuid.UUID) ([]VisitHistory, error)
	GetVisitHistoryByID(ctx context.Context, id uuid.UUID) (*VisitHistory, error)
	GetVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID) (*VisitHistory, error)
	UpdateVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID, upd VisitHistoryUpdate) (*VisitHistory, error)

	// InTx runs fn in one database transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx TxRepository) error) error
}

// TxRepository is the write side used by booking and updates. All calls made
// through one TxRepository commit or roll back together.
type TxRepository interface {
	// FindCoveringAvailability returns the first unbooked availability of the
	// professional that covers [start, end], locked for the rest of the
	// transaction. Ordering is created_at then id.
	FindCoveringAvailability(ctx context.Context, professionalID uuid.UUID, start, end time.Time) (*Availability, error)
	CreateAvailability(ctx context.Context, a Availability) (*Availability, error)
	// BookAvailability narrows the row to [start, end] and marks it booked.
	// It fails with ErrConflict when the row is already booked.
	BookAvailability(ctx context.Context, id uuid.UUID, start, end time.Time) (*Availability, error)

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)

	// UpsertVisitHistory fetches or creates the single visit history of the
	// appointment, then sets professional and visit date.
	UpsertVisitHistory(ctx context.Context, appointmentID, professionalID, patientID uuid.UUID, visitDate time.Time) (*VisitHistory, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
