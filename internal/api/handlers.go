package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// AppointmentService is the booking and lifecycle surface used by the handlers.
type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, req appointment.UpdateRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAvailability(ctx context.Context, professionalID uuid.UUID) ([]appointment.Availability, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListAppointmentsByProfessional(ctx context.Context, professionalID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListVisitHistory(ctx context.Context, patientID uuid.UUID) ([]appointment.VisitHistory, error)
	GetPatientVisitHistory(ctx context.Context, patientID, id uuid.UUID) (*appointment.VisitHistory, error)
	GetVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID) (*appointment.VisitHistory, error)
	UpdateVisitHistory(ctx context.Context, professionalID, appointmentID uuid.UUID, upd appointment.VisitHistoryUpdate) (*appointment.VisitHistory, error)
}

// Verifier issues and checks account verification codes.
type Verifier interface {
	Issue(ctx context.Context, email, name string) (string, error)
	Verify(ctx context.Context, email, code string) error
}

func listAvailabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var professionalID uuid.UUID

		if raw := r.URL.Query().Get("medical_professional_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				handleError(w, r, fieldError("medical_professional_id", "must be a valid UUID"))
				return
			}
			professionalID = id
		} else if ident, ok := IdentityFromContext(r.Context()); ok && ident.ProfessionalID != nil {
			professionalID = *ident.ProfessionalID
		} else {
			handleError(w, r, fieldError("medical_professional_id", "this query parameter is required"))
			return
		}

		avail, err := svc.ListAvailability(r.Context(), professionalID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		results := mapSlice(avail, toAvailabilityResponse)
		writeJSON(w, http.StatusOK, ListResponse[AvailabilityResponse]{Results: results, Count: len(results)})
	}
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var verr validationError
		professionalID, err := uuid.Parse(req.MedicalProfessionalID)
		if err != nil {
			verr.add("medical_professional_id", "must be a valid UUID")
		}
		if req.StartTime == nil {
			verr.add("start_time", "this field is required")
		}
		if req.EndTime == nil {
			verr.add("end_time", "this field is required")
		}
		if err := verr.orNil(); err != nil {
			handleError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID:      *ident.PatientID,
			ProfessionalID: professionalID,
			StartTime:      *req.StartTime,
			EndTime:        *req.EndTime,
			Note:           req.Note,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())
		limit, offset := pagination(r)

		appts, err := svc.ListAppointmentsByPatient(r.Context(), *ident.PatientID, limit, offset)
		if err != nil {
			handleError(w, r, err)
			return
		}

		results := mapSlice(appts, func(a appointment.Appointment) AppointmentResponse { return toAppointmentResponse(&a) })
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Results: results, Count: len(results)})
	}
}

func getPatientAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		appt, ok := loadOwnedAppointment(w, r, svc, func(a *appointment.Appointment) bool {
			return a.PatientID == *ident.PatientID
		})
		if !ok {
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updatePatientAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		appt, ok := loadOwnedAppointment(w, r, svc, func(a *appointment.Appointment) bool {
			return a.PatientID == *ident.PatientID
		})
		if !ok {
			return
		}

		updateAppointment(w, r, svc, appt.ID)
	}
}

func listStaffAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())
		limit, offset := pagination(r)

		appts, err := svc.ListAppointmentsByProfessional(r.Context(), *ident.ProfessionalID, limit, offset)
		if err != nil {
			handleError(w, r, err)
			return
		}

		results := mapSlice(appts, func(a appointment.Appointment) AppointmentResponse { return toAppointmentResponse(&a) })
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Results: results, Count: len(results)})
	}
}

func updateStaffAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		appt, ok := loadOwnedAppointment(w, r, svc, func(a *appointment.Appointment) bool {
			return a.ProfessionalID == *ident.ProfessionalID
		})
		if !ok {
			return
		}

		updateAppointment(w, r, svc, appt.ID)
	}
}

func listPatientVisitHistoryHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		vhs, err := svc.ListVisitHistory(r.Context(), *ident.PatientID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		results := mapSlice(vhs, func(v appointment.VisitHistory) VisitHistoryResponse { return toVisitHistoryResponse(&v) })
		writeJSON(w, http.StatusOK, ListResponse[VisitHistoryResponse]{Results: results, Count: len(results)})
	}
}

func getPatientVisitHistoryHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			handleError(w, r, fieldError("id", "must be a valid UUID"))
			return
		}

		vh, err := svc.GetPatientVisitHistory(r.Context(), *ident.PatientID, id)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitHistoryResponse(vh))
	}
}

func getStaffVisitHistoryHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		appointmentID, err := appointmentIDQuery(r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		vh, err := svc.GetVisitHistory(r.Context(), *ident.ProfessionalID, appointmentID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitHistoryResponse(vh))
	}
}

func updateStaffVisitHistoryHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())

		appointmentID, err := appointmentIDQuery(r)
		if err != nil {
			handleError(w, r, err)
			return
		}

		var req VisitHistoryUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		upd := appointment.VisitHistoryUpdate{
			ReasonForVisit:     req.ReasonForVisit,
			TreatmentsReceived: req.TreatmentsReceived,
			PhysicianNotes:     req.PhysicianNotes,
		}
		if req.VisitDate != nil {
			d, err := time.Parse(dateLayout, *req.VisitDate)
			if err != nil {
				handleError(w, r, fieldError("visit_date", "must be a date in YYYY-MM-DD format"))
				return
			}
			upd.VisitDate = &d
		}

		vh, err := svc.UpdateVisitHistory(r.Context(), *ident.ProfessionalID, appointmentID, upd)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitHistoryResponse(vh))
	}
}

func requestVerificationCodeHandler(v Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerificationCodeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if _, err := mail.ParseAddress(req.Email); err != nil {
			handleError(w, r, fieldError("email", "enter a valid email address"))
			return
		}

		if _, err := v.Issue(r.Context(), req.Email, req.Name); err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusAccepted, DetailResponse{Detail: "verification code sent"})
	}
}

func verifyAccountHandler(v Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyAccountRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var verr validationError
		if req.Email == "" {
			verr.add("email", "this field is required")
		}
		if req.Code == "" {
			verr.add("code", "this field is required")
		}
		if err := verr.orNil(); err != nil {
			handleError(w, r, err)
			return
		}

		if err := v.Verify(r.Context(), req.Email, req.Code); err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DetailResponse{Detail: "account verified"})
	}
}

// updateAppointment decodes an UpdateAppointmentRequest and applies it.
func updateAppointment(w http.ResponseWriter, r *http.Request, svc AppointmentService, id uuid.UUID) {
	var req UpdateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	upd := appointment.UpdateRequest{
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Note:           req.Note,
		IsStatusUpdate: req.IsStatusUpdate,
	}
	if req.MedicalProfessionalID != nil {
		pid, err := uuid.Parse(*req.MedicalProfessionalID)
		if err != nil {
			handleError(w, r, fieldError("medical_professional_id", "must be a valid UUID"))
			return
		}
		upd.ProfessionalID = &pid
	}
	if req.Status != nil {
		st, err := appointment.ParseStatus(*req.Status)
		if err != nil {
			handleError(w, r, err)
			return
		}
		upd.Status = &st
	}

	appt, err := svc.UpdateAppointment(r.Context(), id, upd)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// loadOwnedAppointment resolves {id} and reports appointments the caller does
// not own as not found.
func loadOwnedAppointment(w http.ResponseWriter, r *http.Request, svc AppointmentService, owns func(*appointment.Appointment) bool) (*appointment.Appointment, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, fieldError("id", "must be a valid UUID"))
		return nil, false
	}

	appt, err := svc.GetAppointment(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	if !owns(appt) {
		handleError(w, r, appointment.ErrAppointmentNotFound)
		return nil, false
	}
	return appt, true
}

func appointmentIDQuery(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("appointment_id")
	if raw == "" {
		return uuid.Nil, fieldError("appointment_id", "this query parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError("appointment_id", "must be a valid UUID")
	}
	return id, nil
}

func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func fieldError(field, msg string) error {
	var verr validationError
	verr.add(field, msg)
	return &verr
}
