package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

type BookAppointmentRequest struct {
	MedicalProfessionalID string     `json:"medical_professional_id"`
	StartTime             *time.Time `json:"start_time"`
	EndTime               *time.Time `json:"end_time"`
	Note                  *string    `json:"note"`
}

type UpdateAppointmentRequest struct {
	MedicalProfessionalID *string    `json:"medical_professional_id"`
	StartTime             *time.Time `json:"start_time"`
	EndTime               *time.Time `json:"end_time"`
	Status                *string    `json:"status"`
	Note                  *string    `json:"note"`
	IsStatusUpdate        bool       `json:"is_status_update"`
}

// VisitDate is a calendar date in YYYY-MM-DD form.
type VisitHistoryUpdateRequest struct {
	VisitDate          *string `json:"visit_date"`
	ReasonForVisit     *string `json:"reason_for_visit"`
	TreatmentsReceived *string `json:"treatments_received"`
	PhysicianNotes     *string `json:"physician_notes"`
}

type VerificationCodeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type VerifyAccountRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type AvailabilityResponse struct {
	ID                    uuid.UUID `json:"id"`
	MedicalProfessionalID uuid.UUID `json:"medical_professional_id"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time"`
	IsBooked              bool      `json:"is_booked"`
}

type AppointmentResponse struct {
	ID                    uuid.UUID `json:"id"`
	PatientID             uuid.UUID `json:"patient_id"`
	MedicalProfessionalID uuid.UUID `json:"medical_professional_id"`
	Status                string    `json:"status"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time"`
	Note                  *string   `json:"note,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type VisitHistoryResponse struct {
	ID                    uuid.UUID  `json:"id"`
	AppointmentID         *uuid.UUID `json:"appointment_id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	MedicalProfessionalID uuid.UUID  `json:"medical_professional_id"`
	VisitDate             *string    `json:"visit_date"`
	ReasonForVisit        *string    `json:"reason_for_visit"`
	TreatmentsReceived    *string    `json:"treatments_received"`
	PhysicianNotes        *string    `json:"physician_notes"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type ListResponse[T any] struct {
	Results []T `json:"results"`
	Count   int `json:"count"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
}

type ErrorResponse struct {
	Error     string            `json:"error"`
	Details   string            `json:"details,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

const dateLayout = "2006-01-02"

func toAvailabilityResponse(a appointment.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		ID:                    a.ID,
		MedicalProfessionalID: a.ProfessionalID,
		StartTime:             a.StartTime,
		EndTime:               a.EndTime,
		IsBooked:              a.IsBooked,
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                    a.ID,
		PatientID:             a.PatientID,
		MedicalProfessionalID: a.ProfessionalID,
		Status:                string(a.Status),
		StartTime:             a.StartTime,
		EndTime:               a.EndTime,
		Note:                  a.Note,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
}

func toVisitHistoryResponse(v *appointment.VisitHistory) VisitHistoryResponse {
	resp := VisitHistoryResponse{
		ID:                    v.ID,
		AppointmentID:         v.AppointmentID,
		PatientID:             v.PatientID,
		MedicalProfessionalID: v.ProfessionalID,
		ReasonForVisit:        v.ReasonForVisit,
		TreatmentsReceived:    v.TreatmentsReceived,
		PhysicianNotes:        v.PhysicianNotes,
		UpdatedAt:             v.UpdatedAt,
	}
	if v.VisitDate != nil {
		d := v.VisitDate.Format(dateLayout)
		resp.VisitDate = &d
	}
	return resp
}

func mapSlice[S, T any](in []S, fn func(S) T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
