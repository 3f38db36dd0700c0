package appointment

import (
	"context"
	"time"
)

// BookingNotice tells one party about a new appointment. Time is the end of
// the one-hour display window that begins at the appointment start.
type BookingNotice struct {
	RecipientName    string
	CounterpartyName string
	Email            string
	Date             time.Time
	Time             time.Time
}

// StatusNotice tells the patient about an updated appointment.
type StatusNotice struct {
	RecipientName    string
	CounterpartyName string
	Email            string
	Date             time.Time
	Time             time.Time
	Status           AppointmentStatus
}

// Notifier accepts fire-and-forget notification requests. Implementations
// must not block the caller on delivery and must not report delivery errors.
type Notifier interface {
	NotifyBooking(ctx context.Context, n BookingNotice)
	NotifyStatusUpdate(ctx context.Context, n StatusNotice)
}

const displayWindow = time.Hour

func bookingNotices(appt *Appointment, patient *Patient, professional *Professional) (toPatient, toProfessional BookingNotice) {
	date := startOfDay(appt.StartTime)
	until := appt.StartTime.Add(displayWindow)

	toPatient = BookingNotice{
		RecipientName:    patient.FullName(),
		CounterpartyName: professional.FullName(),
		Email:            patient.Email,
		Date:             date,
		Time:             until,
	}
	toProfessional = BookingNotice{
		RecipientName:    professional.FullName(),
		CounterpartyName: patient.FullName(),
		Email:            professional.Email,
		Date:             date,
		Time:             until,
	}
	return toPatient, toProfessional
}

func statusNotice(appt *Appointment, patient *Patient, professional *Professional) StatusNotice {
	return StatusNotice{
		RecipientName:    patient.FullName(),
		CounterpartyName: professional.FullName(),
		Email:            patient.Email,
		Date:             startOfDay(appt.StartTime),
		Time:             appt.StartTime.Add(displayWindow),
		Status:           appt.Status,
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
