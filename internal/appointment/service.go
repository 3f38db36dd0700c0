package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

var tracer = otel.Tracer("clinic.internal.appointment")

const (
	EventAppointmentBooked  = "APPOINTMENT_BOOKED"
	EventAvailabilitySplit  = "AVAILABILITY_SPLIT"
	EventAppointmentUpdated = "APPOINTMENT_UPDATED"
)

var (
	ErrInvalidRange   = errors.New("start datetime must not be after end datetime")
	ErrNoAvailability = errors.New("no suitable availability found for the appointment duration")
	ErrConflict       = errors.New("availability changed while booking, please retry")
	ErrInvalidStatus  = errors.New("invalid appointment status")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	metrics  *metrics.BookingMetrics
	logger   zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		logger:   logger.With().Str("component", "appointment").Logger(),
	}
}

func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// Book matches the request against the professional's open availability,
// consumes or splits the matched block, and creates a pending appointment.
// Allocation and appointment creation commit together; notifications are
// dispatched only after the commit.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.book", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.professional_id", req.ProfessionalID.String()),
		attribute.String("clinic.patient_id", req.PatientID.String()),
	)

	appt, err := s.book(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveBooking(outcome(err))
		return nil, err
	}

	s.metrics.ObserveBooking("success")
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	professional, err := s.repo.GetProfessionalByID(ctx, req.ProfessionalID)
	if err != nil {
		return nil, lookupErr("load professional", err)
	}

	if req.StartTime.After(req.EndTime) {
		return nil, ErrInvalidRange
	}

	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		return nil, lookupErr("load patient", err)
	}

	var (
		created *Appointment
		alloc   Allocation
	)

	err = s.locker.WithProfessionalLock(ctx, professional.ID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx TxRepository) error {
			a, err := s.allocate(lockCtx, tx, professional.ID, req.StartTime, req.EndTime)
			if err != nil {
				return err
			}
			alloc = a

			appt, err := tx.CreateAppointment(lockCtx, Appointment{
				PatientID:      patient.ID,
				ProfessionalID: professional.ID,
				Status:         StatusPending,
				StartTime:      req.StartTime,
				EndTime:        req.EndTime,
				Note:           req.Note,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			created = appt

			return s.logEvent(lockCtx, tx, appt.ID, EventAppointmentBooked, map[string]any{
				"availability_id": alloc.Booked.ID.String(),
				"allocation":      alloc.Kind(),
				"start_time":      appt.StartTime,
				"end_time":        appt.EndTime,
			})
		})
	})
	if err != nil {
		return nil, lockErr(err)
	}

	s.metrics.ObserveAllocation(alloc.Kind())
	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("professional_id", professional.ID.String()).
		Str("availability_id", alloc.Booked.ID.String()).
		Str("allocation", alloc.Kind()).
		Msg("appointment booked")

	toPatient, toProfessional := bookingNotices(created, patient, professional)
	s.notifier.NotifyBooking(ctx, toPatient)
	s.notifier.NotifyBooking(ctx, toProfessional)

	return created, nil
}

// allocate finds the covering availability inside tx and applies the planned
// allocation to it.
func (s *Service) allocate(ctx context.Context, tx TxRepository, professionalID uuid.UUID, start, end time.Time) (Allocation, error) {
	avail, err := tx.FindCoveringAvailability(ctx, professionalID, start, end)
	if err != nil {
		if errors.Is(err, ErrAvailabilityNotFound) {
			return Allocation{}, ErrNoAvailability
		}
		return Allocation{}, fmt.Errorf("find availability: %w", err)
	}

	alloc := PlanAllocation(*avail, start, end)

	booked, err := tx.BookAvailability(ctx, avail.ID, alloc.Booked.StartTime, alloc.Booked.EndTime)
	if err != nil {
		return Allocation{}, err
	}
	alloc.Booked = *booked

	if alloc.FullyConsumed {
		return alloc, nil
	}

	payload := map[string]any{
		"availability_id": avail.ID.String(),
		"original_start":  avail.StartTime,
		"original_end":    avail.EndTime,
	}
	if alloc.Leading != nil {
		leading, err := tx.CreateAvailability(ctx, *alloc.Leading)
		if err != nil {
			return Allocation{}, fmt.Errorf("create leading remainder: %w", err)
		}
		alloc.Leading = leading
		payload["leading_id"] = leading.ID.String()
	}
	if alloc.Trailing != nil {
		trailing, err := tx.CreateAvailability(ctx, *alloc.Trailing)
		if err != nil {
			return Allocation{}, fmt.Errorf("create trailing remainder: %w", err)
		}
		alloc.Trailing = trailing
		payload["trailing_id"] = trailing.ID.String()
	}

	if err := s.logEvent(ctx, tx, uuid.Nil, EventAvailabilitySplit, payload); err != nil {
		return Allocation{}, err
	}

	return alloc, nil
}

// UpdateAppointment merges req onto the appointment. Unless IsStatusUpdate is
// set, the new window is validated and allocated like a fresh booking; the
// previously held availability is left booked. Moving the appointment to a
// different professional resets its status to Pending. Every update upserts
// the appointment's visit history.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.update", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id.String()),
		attribute.Bool("clinic.status_update", req.IsStatusUpdate),
	)

	appt, err := s.update(ctx, id, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveUpdate(outcome(err))
		return nil, err
	}

	s.metrics.ObserveUpdate("success")
	return appt, nil
}

func (s *Service) update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, lookupErr("load appointment", err)
	}

	professionalID := current.ProfessionalID
	if req.ProfessionalID != nil {
		professionalID = *req.ProfessionalID
	}
	professional, err := s.repo.GetProfessionalByID(ctx, professionalID)
	if err != nil {
		return nil, lookupErr("load professional", err)
	}

	next := *current
	if req.StartTime != nil {
		next.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		next.EndTime = *req.EndTime
	}
	if !req.IsStatusUpdate && next.StartTime.After(next.EndTime) {
		return nil, ErrInvalidRange
	}
	if req.Status != nil {
		next.Status = *req.Status
	}
	if professionalID != current.ProfessionalID {
		next.Status = StatusPending
	}
	next.ProfessionalID = professionalID
	if req.Note != nil {
		next.Note = req.Note
	}

	var updated *Appointment
	run := func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(tx TxRepository) error {
			if !req.IsStatusUpdate {
				if _, err := s.allocate(ctx, tx, professionalID, next.StartTime, next.EndTime); err != nil {
					return err
				}
			}

			appt, err := tx.UpdateAppointment(ctx, next)
			if err != nil {
				return err
			}

			if _, err := tx.UpsertVisitHistory(ctx, appt.ID, appt.ProfessionalID, appt.PatientID, appt.StartTime); err != nil {
				return err
			}
			updated = appt

			return s.logEvent(ctx, tx, appt.ID, EventAppointmentUpdated, map[string]any{
				"status":           appt.Status,
				"professional_id":  appt.ProfessionalID.String(),
				"status_update":    req.IsStatusUpdate,
				"professional_was": current.ProfessionalID.String(),
			})
		})
	}

	if req.IsStatusUpdate {
		err = run(ctx)
	} else {
		err = s.locker.WithProfessionalLock(ctx, professionalID, run)
	}
	if err != nil {
		return nil, lockErr(err)
	}

	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("status", string(updated.Status)).
		Bool("status_update", req.IsStatusUpdate).
		Msg("appointment updated")

	patient, err := s.repo.GetPatientByID(ctx, updated.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", updated.ID.String()).Msg("skipping status notification")
		return updated, nil
	}
	s.notifier.NotifyStatusUpdate(ctx, statusNotice(updated, patient, professional))

	return updated, nil
}

// ListAvailability returns the professional's unbooked availability.
func (s *Service) ListAvailability(ctx context.Context, professionalID uuid.UUID) ([]Availability, error) {
	if _, err := s.repo.GetProfessionalByID(ctx, professionalID); err != nil {
		return nil, lookupErr("load professional", err)
	}
	avail, err := s.repo.ListUnbookedAvailability(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return avail, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, lookupErr("get appointment", err)
	}
	return appt, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = page(limit, offset)
	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByProfessional retrieves appointments for a specific professional
func (s *Service) ListAppointmentsByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = page(limit, offset)
	appointments, err := s.repo.ListAppointmentsByProfessional(ctx, professionalID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by professional: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListVisitHistory(ctx context.Context, patientID uuid.UUID) ([]VisitHistory, error) {
	vh, err := s.repo.ListVisitHistoryByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list visit history: %w", err)
	}
	return vh, nil
}

// GetPatientVisitHistory returns one visit history owned by the patient.
// Records of other patients are reported as not found.
func (s *Service) GetPatientVisitHistory(ctx context.Context, patientID, id uuid.UUID) (*VisitHistory, error) {
	vh, err := s.repo.GetVisitHistoryByID(ctx, id)
	if err != nil {
		return nil, lookupErr("get visit history", err)
	}
	if vh.PatientID != patientID {
		return nil, ErrVisitHistoryNotFound
	}
	return vh, nil
}

func (s *Service) GetVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID) (*VisitHistory, error) {
	vh, err := s.repo.GetVisitHistory(ctx, professionalID, appointmentID)
	if err != nil {
		return nil, lookupErr("get visit history", err)
	}
	return vh, nil
}

func (s *Service) UpdateVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID, upd VisitHistoryUpdate) (*VisitHistory, error) {
	vh, err := s.repo.UpdateVisitHistory(ctx, professionalID, appointmentID, upd)
	if err != nil {
		return nil, lookupErr("update visit history", err)
	}
	return vh, nil
}

func (s *Service) logEvent(ctx context.Context, tx TxRepository, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if appointmentID != uuid.Nil {
		apptID := appointmentID
		ev.AppointmentID = &apptID
	}

	return tx.InsertEvent(ctx, ev)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// lookupErr keeps not-found sentinels matchable and wraps everything else.
func lookupErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// lockErr reports contention and an unreachable lock store alike as a
// retryable conflict.
func lockErr(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, redisclient.ErrLockUnavailable) {
		return ErrConflict
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrNoAvailability):
		return "no_availability"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
