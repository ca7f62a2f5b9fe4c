package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-memory CatalogRepository. The state machine and
// service run against it in tests exactly as they do against Postgres.
type MemoryCatalog struct {
	mu           sync.Mutex
	doctors      map[string]Doctor
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		doctors:      make(map[string]Doctor),
		slots:        make(map[uuid.UUID]Slot),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *MemoryCatalog) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryCatalog) AddSlot(s Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Status == "" {
		s.Status = SlotOpen
	}
	m.slots[s.ID] = s
}

func (m *MemoryCatalog) ListDoctors(ctx context.Context) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryCatalog) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryCatalog) ListOpenSlots(ctx context.Context, doctorID string) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Status == SlotOpen {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (m *MemoryCatalog) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (m *MemoryCatalog) Finalize(ctx context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[appt.SlotID]
	if !ok || slot.Status != SlotOpen {
		return ErrSlotConflict
	}

	slot.Status = SlotBooked
	slot.UpdatedAt = time.Now().UTC()
	m.slots[appt.SlotID] = slot

	appt.Status = "confirmed"
	appt.CreatedAt = time.Now().UTC()
	m.appointments[appt.ID] = *appt
	return nil
}

func (m *MemoryCatalog) GetAppointmentBySession(ctx context.Context, sessionID string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.appointments {
		if a.SessionID == sessionID {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}
