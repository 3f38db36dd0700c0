package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Repository. InTx holds the store mutex for the
// whole transaction, which stands in for the row lock taken by FOR UPDATE,
// and restores a snapshot when fn fails.
type memStore struct {
	mu sync.Mutex

	patients      map[uuid.UUID]Patient
	professionals map[uuid.UUID]Professional
	availability  []Availability
	appointments  map[uuid.UUID]Appointment
	visits        map[uuid.UUID]VisitHistory
	events        []EventLog

	clock time.Time

	findCalls             int
	ignoreBookedFlag      bool
	failCreateAppointment error
}

func newMemStore() *memStore {
	return &memStore{
		patients:      map[uuid.UUID]Patient{},
		professionals: map[uuid.UUID]Professional{},
		appointments:  map[uuid.UUID]Appointment{},
		visits:        map[uuid.UUID]VisitHistory{},
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addPatient(first, last, email string) Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Patient{ID: uuid.New(), UserID: uuid.New(), FirstName: first, LastName: last, Email: email, CreatedAt: s.tick()}
	s.patients[p.ID] = p
	return p
}

func (s *memStore) addProfessional(first, last, email string) Professional {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Professional{ID: uuid.New(), UserID: uuid.New(), FirstName: first, LastName: last, Email: email, CreatedAt: s.tick()}
	s.professionals[p.ID] = p
	return p
}

func (s *memStore) addAvailability(professionalID uuid.UUID, start, end time.Time) Availability {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := Availability{ID: uuid.New(), ProfessionalID: professionalID, StartTime: start, EndTime: end, CreatedAt: s.tick()}
	s.availability = append(s.availability, a)
	return a
}

func (s *memStore) availabilityOf(professionalID uuid.UUID) []Availability {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Availability
	for _, a := range s.availability {
		if a.ProfessionalID == professionalID {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) appointmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appointments)
}

func (s *memStore) visitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visits)
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (s *memStore) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *memStore) GetProfessionalByID(_ context.Context, id uuid.UUID) (*Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.professionals[id]
	if !ok {
		return nil, ErrProfessionalNotFound
	}
	return &p, nil
}

func (s *memStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memStore) ListUnbookedAvailability(_ context.Context, professionalID uuid.UUID) ([]Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Availability
	for _, a := range s.availability {
		if a.ProfessionalID == professionalID && !a.IsBooked {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return s.listAppointments(func(a Appointment) bool { return a.PatientID == patientID }, limit, offset), nil
}

func (s *memStore) ListAppointmentsByProfessional(_ context.Context, professionalID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return s.listAppointments(func(a Appointment) bool { return a.ProfessionalID == professionalID }, limit, offset), nil
}

func (s *memStore) listAppointments(match func(Appointment) bool, limit, offset int) []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, a := range s.appointments {
		if match(a) {
			out = append(out, a)
		}
	}
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) ListVisitHistoryByPatient(_ context.Context, patientID uuid.UUID) ([]VisitHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []VisitHistory
	for _, v := range s.visits {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memStore) GetVisitHistoryByID(_ context.Context, id uuid.UUID) (*VisitHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.visits {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, ErrVisitHistoryNotFound
}

func (s *memStore) GetVisitHistory(_ context.Context, professionalID, appointmentID uuid.UUID) (*VisitHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[appointmentID]
	if !ok || v.ProfessionalID != professionalID {
		return nil, ErrVisitHistoryNotFound
	}
	return &v, nil
}

func (s *memStore) UpdateVisitHistory(_ context.Context, professionalID, appointmentID uuid.UUID, upd VisitHistoryUpdate) (*VisitHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[appointmentID]
	if !ok || v.ProfessionalID != professionalID {
		return nil, ErrVisitHistoryNotFound
	}
	if upd.VisitDate != nil {
		v.VisitDate = upd.VisitDate
	}
	if upd.ReasonForVisit != nil {
		v.ReasonForVisit = upd.ReasonForVisit
	}
	if upd.TreatmentsReceived != nil {
		v.TreatmentsReceived = upd.TreatmentsReceived
	}
	if upd.PhysicianNotes != nil {
		v.PhysicianNotes = upd.PhysicianNotes
	}
	v.UpdatedAt = s.tick()
	s.visits[appointmentID] = v
	return &v, nil
}

func (s *memStore) InTx(_ context.Context, fn func(tx TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	availability := append([]Availability(nil), s.availability...)
	appointments := make(map[uuid.UUID]Appointment, len(s.appointments))
	for k, v := range s.appointments {
		appointments[k] = v
	}
	visits := make(map[uuid.UUID]VisitHistory, len(s.visits))
	for k, v := range s.visits {
		visits[k] = v
	}
	events := append([]EventLog(nil), s.events...)

	if err := fn(&memTx{s: s}); err != nil {
		s.availability = availability
		s.appointments = appointments
		s.visits = visits
		s.events = events
		return err
	}
	return nil
}

// memTx runs with memStore.mu held.
type memTx struct {
	s *memStore
}

func (t *memTx) FindCoveringAvailability(_ context.Context, professionalID uuid.UUID, start, end time.Time) (*Availability, error) {
	t.s.findCalls++
	for _, a := range t.s.availability {
		if a.ProfessionalID != professionalID || (a.IsBooked && !t.s.ignoreBookedFlag) {
			continue
		}
		if !a.StartTime.After(start) && !a.EndTime.Before(end) {
			found := a
			return &found, nil
		}
	}
	return nil, ErrAvailabilityNotFound
}

func (t *memTx) CreateAvailability(_ context.Context, a Availability) (*Availability, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = t.s.tick()
	t.s.availability = append(t.s.availability, a)
	return &a, nil
}

func (t *memTx) BookAvailability(_ context.Context, id uuid.UUID, start, end time.Time) (*Availability, error) {
	for i, a := range t.s.availability {
		if a.ID != id {
			continue
		}
		if a.IsBooked {
			return nil, ErrConflict
		}
		a.StartTime, a.EndTime, a.IsBooked = start, end, true
		t.s.availability[i] = a
		return &a, nil
	}
	return nil, ErrConflict
}

func (t *memTx) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	if t.s.failCreateAppointment != nil {
		return nil, t.s.failCreateAppointment
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := t.s.tick()
	a.CreatedAt, a.UpdatedAt = now, now
	t.s.appointments[a.ID] = a
	return &a, nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	stored, ok := t.s.appointments[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.PatientID = stored.PatientID
	a.CreatedAt = stored.CreatedAt
	a.UpdatedAt = t.s.tick()
	t.s.appointments[a.ID] = a
	return &a, nil
}

func (t *memTx) UpsertVisitHistory(_ context.Context, appointmentID, professionalID, patientID uuid.UUID, visitDate time.Time) (*VisitHistory, error) {
	date := startOfDay(visitDate)
	v, ok := t.s.visits[appointmentID]
	if !ok {
		apptID := appointmentID
		v = VisitHistory{ID: uuid.New(), AppointmentID: &apptID, PatientID: patientID, CreatedAt: t.s.tick()}
	}
	v.ProfessionalID = professionalID
	v.VisitDate = &date
	v.UpdatedAt = t.s.tick()
	t.s.visits[appointmentID] = v
	return &v, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = int64(len(t.s.events) + 1)
	t.s.events = append(t.s.events, ev)
	return nil
}

type passLocker struct{}

func (passLocker) WithProfessionalLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type failLocker struct{ err error }

func (l failLocker) WithProfessionalLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return l.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	bookings []BookingNotice
	statuses []StatusNotice
}

func (n *recordingNotifier) NotifyBooking(_ context.Context, notice BookingNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, notice)
}

func (n *recordingNotifier) NotifyStatusUpdate(_ context.Context, notice StatusNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, notice)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.bookings), len(n.statuses)
}
