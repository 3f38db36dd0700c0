package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool pool
}

func NewPgRepository(p pool) *PgRepository {
	if p == nil {
		panic("appointment: pgx pool required")
	}
	return &PgRepository{pool: p}
}

const (
	availabilityColumns = `id, professional_id, start_time, end_time, is_booked, created_at`
	appointmentColumns  = `id, patient_id, professional_id, status, start_time, end_time, note, created_at, updated_at`
	visitHistoryColumns = `id, appointment_id, patient_id, professional_id, visit_date, reason_for_visit, treatments_received, physician_notes, created_at, updated_at`
)

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Specialization,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability

	err := row.Scan(
		&a.ID,
		&a.ProfessionalID,
		&a.StartTime,
		&a.EndTime,
		&a.IsBooked,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.Status,
		&a.StartTime,
		&a.EndTime,
		&a.Note,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanVisitHistory(row pgx.Row) (*VisitHistory, error) {
	var v VisitHistory

	err := row.Scan(
		&v.ID,
		&v.AppointmentID,
		&v.PatientID,
		&v.ProfessionalID,
		&v.VisitDate,
		&v.ReasonForVisit,
		&v.TreatmentsReceived,
		&v.PhysicianNotes,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitHistoryNotFound
		}
		return nil, err
	}

	return &v, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Read side

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT p.id, p.user_id, u.first_name, u.last_name, u.email, p.created_at
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT m.id, m.user_id, u.first_name, u.last_name, u.email, m.specialization, m.created_at
		FROM medical_professionals m
		JOIN users u ON u.id = m.user_id
		WHERE m.id = $1
	`, id)
	return scanProfessional(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListUnbookedAvailability(ctx context.Context, professionalID uuid.UUID) ([]Availability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM availabilities
		WHERE professional_id = $1
		  AND is_booked = false
		ORDER BY start_time, created_at
	`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return collect(rows, scanAvailability)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListAppointmentsByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, professionalID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by professional: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListVisitHistoryByPatient(ctx context.Context, patientID uuid.UUID) ([]VisitHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitHistoryColumns+`
		FROM visit_histories
		WHERE patient_id = $1
		ORDER BY visit_date DESC NULLS LAST, created_at DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list visit history: %w", err)
	}
	return collect(rows, scanVisitHistory)
}

func (r *PgRepository) GetVisitHistoryByID(ctx context.Context, id uuid.UUID) (*VisitHistory, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitHistoryColumns+`
		FROM visit_histories
		WHERE id = $1
	`, id)
	return scanVisitHistory(row)
}

func (r *PgRepository) GetVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID) (*VisitHistory, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitHistoryColumns+`
		FROM visit_histories
		WHERE professional_id = $1
		  AND appointment_id = $2
	`, professionalID, appointmentID)
	return scanVisitHistory(row)
}

func (r *PgRepository) UpdateVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID, upd VisitHistoryUpdate) (*VisitHistory, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE visit_histories
		SET visit_date = COALESCE($3, visit_date),
		    reason_for_visit = COALESCE($4, reason_for_visit),
		    treatments_received = COALESCE($5, treatments_received),
		    physician_notes = COALESCE($6, physician_notes),
		    updated_at = now()
		WHERE professional_id = $1
		  AND appointment_id = $2
		RETURNING `+visitHistoryColumns+`
	`, professionalID, appointmentID, upd.VisitDate, upd.ReasonForVisit, upd.TreatmentsReceived, upd.PhysicianNotes)
	return scanVisitHistory(row)
}

// InTx begins a transaction on the pool and hands fn a repository bound to it.
func (r *PgRepository) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&pgTxRepository{q: tx}); err != nil {
		return translateTxErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateTxErr(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// translateTxErr turns serialization failures and deadlocks into ErrConflict
// so callers can retry.
func translateTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

// Write side

type pgTxRepository struct {
	q querier
}

func (r *pgTxRepository) FindCoveringAvailability(ctx context.Context, professionalID uuid.UUID, start, end time.Time) (*Availability, error) {
	// FOR UPDATE re-evaluates is_booked against the latest committed row
	// once a competing writer releases it.
	row := r.q.QueryRow(ctx, `
		SELECT `+availabilityColumns+`
		FROM availabilities
		WHERE professional_id = $1
		  AND is_booked = false
		  AND start_time <= $2
		  AND end_time >= $3
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE
	`, professionalID, start, end)
	return scanAvailability(row)
}

func (r *pgTxRepository) CreateAvailability(ctx context.Context, a Availability) (*Availability, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO availabilities (id, professional_id, start_time, end_time, is_booked, created_at)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp())
		RETURNING `+availabilityColumns+`
	`, a.ID, a.ProfessionalID, a.StartTime, a.EndTime, a.IsBooked)

	created, err := scanAvailability(row)
	if err != nil {
		return nil, fmt.Errorf("insert availability: %w", err)
	}
	return created, nil
}

func (r *pgTxRepository) BookAvailability(ctx context.Context, id uuid.UUID, start, end time.Time) (*Availability, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE availabilities
		SET start_time = $2,
		    end_time = $3,
		    is_booked = true
		WHERE id = $1
		  AND is_booked = false
		RETURNING `+availabilityColumns+`
	`, id, start, end)

	booked, err := scanAvailability(row)
	if errors.Is(err, ErrAvailabilityNotFound) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("book availability: %w", err)
	}
	return booked, nil
}

func (r *pgTxRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, status, start_time, end_time, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.ProfessionalID, a.Status, a.StartTime, a.EndTime, a.Note)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

// UpdateAppointment never touches patient_id.
func (r *pgTxRepository) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET professional_id = $2,
		    status = $3,
		    start_time = $4,
		    end_time = $5,
		    note = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ProfessionalID, a.Status, a.StartTime, a.EndTime, a.Note)
	return scanAppointment(row)
}

func (r *pgTxRepository) UpsertVisitHistory(ctx context.Context, appointmentID, professionalID, patientID uuid.UUID, visitDate time.Time) (*VisitHistory, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO visit_histories (id, appointment_id, patient_id, professional_id, visit_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET professional_id = EXCLUDED.professional_id,
		    visit_date = EXCLUDED.visit_date,
		    updated_at = now()
		RETURNING `+visitHistoryColumns+`
	`, uuid.New(), appointmentID, patientID, professionalID, visitDate)

	vh, err := scanVisitHistory(row)
	if err != nil {
		return nil, fmt.Errorf("upsert visit history: %w", err)
	}
	return vh, nil
}

func (r *pgTxRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
