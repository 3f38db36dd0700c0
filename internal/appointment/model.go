package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "Pending"
	StatusAccepted  AppointmentStatus = "Accepted"
	StatusActive    AppointmentStatus = "Active"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
)

// ParseStatus accepts only the five known statuses. Any status may follow any
// other; transitions are not validated here.
func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case StatusPending, StatusAccepted, StatusActive, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
}

func (p Patient) FullName() string { return joinName(p.FirstName, p.LastName) }

type Professional struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	Specialization *string
	CreatedAt      time.Time
}

func (p Professional) FullName() string { return joinName(p.FirstName, p.LastName) }

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

// Availability is an open time block a professional can be booked into.
type Availability struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	IsBooked       bool
	CreatedAt      time.Time
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	Status         AppointmentStatus
	StartTime      time.Time
	EndTime        time.Time
	Note           *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VisitHistory is the clinical record of an appointment. AppointmentID is
// cleared, not cascaded, when the appointment row goes away.
type VisitHistory struct {
	ID                 uuid.UUID
	AppointmentID      *uuid.UUID
	PatientID          uuid.UUID
	ProfessionalID     uuid.UUID
	VisitDate          *time.Time
	ReasonForVisit     *string
	TreatmentsReceived *string
	PhysicianNotes     *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookRequest is the input of Service.Book.
type BookRequest struct {
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Note           *string
}

// UpdateRequest is the input of Service.UpdateAppointment. Nil fields keep
// the stored value.
type UpdateRequest struct {
	ProfessionalID *uuid.UUID
	StartTime      *time.Time
	EndTime        *time.Time
	Status         *AppointmentStatus
	Note           *string
	IsStatusUpdate bool
}

// VisitHistoryUpdate carries the clinical fields a professional may edit.
type VisitHistoryUpdate struct {
	VisitDate          *time.Time
	ReasonForVisit     *string
	TreatmentsReceived *string
	PhysicianNotes     *string
}
