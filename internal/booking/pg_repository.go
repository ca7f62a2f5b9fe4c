package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgCatalogRepository struct {
	pool *pgxpool.Pool
}

func NewPgCatalogRepository(pool *pgxpool.Pool) *PgCatalogRepository {
	return &PgCatalogRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.DoctorID, &s.StartTime, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.PatientName,
		&a.PatientPhone,
		&a.Symptoms,
		&a.DoctorID,
		&a.SlotID,
		&a.Status,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Interface methods

func (r *PgCatalogRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, created_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgCatalogRepository) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgCatalogRepository) ListOpenSlots(ctx context.Context, doctorID string) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, status, created_at, updated_at
		FROM slots
		WHERE doctor_id = $1 AND status = 'open'
		ORDER BY start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgCatalogRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, status, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// Finalize books the slot and inserts the appointment in one transaction.
// The conditional UPDATE is the check-and-set: zero rows affected means the
// slot was taken (or never existed) and nothing is committed.
func (r *PgCatalogRepository) Finalize(ctx context.Context, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'booked',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'open'
	`, appt.SlotID)
	if err != nil {
		return fmt.Errorf("book slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotConflict
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, session_id, patient_name, patient_phone, symptoms, doctor_id, slot_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'confirmed', now())
		RETURNING id, session_id, patient_name, patient_phone, symptoms, doctor_id, slot_id, status, created_at
	`, appt.ID, appt.SessionID, appt.PatientName, appt.PatientPhone, appt.Symptoms, appt.DoctorID, appt.SlotID)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finalize tx: %w", err)
	}

	*appt = *created
	return nil
}

func (r *PgCatalogRepository) GetAppointmentBySession(ctx context.Context, sessionID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, patient_name, patient_phone, symptoms, doctor_id, slot_id, status, created_at
		FROM appointments
		WHERE session_id = $1
	`, sessionID)
	return scanAppointment(row)
}
