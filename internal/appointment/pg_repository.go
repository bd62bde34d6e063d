package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

const activeSlotIndex = "appointments_active_slot_uq"

type PgStore struct {
	db     db.TxQuerier
	serial SerialFormat
}

func NewPgStore(q db.TxQuerier, serial SerialFormat) *PgStore {
	return &PgStore{db: q, serial: serial}
}

// Helpers

const appointmentColumns = `id, serial_number, patient_id, provider_id, appointment_date, appointment_time,
	duration_minutes, status, symptoms, notes, booking_channel, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var tod pgtype.Time
	var status, channel string

	err := row.Scan(
		&a.ID,
		&a.SerialNumber,
		&a.PatientID,
		&a.ProviderID,
		&a.Date,
		&tod,
		&a.DurationMinutes,
		&status,
		&a.Symptoms,
		&a.Notes,
		&channel,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, apperr.Storage("scan appointment", err)
	}

	a.Date = slot.Date(a.Date)
	a.Time = slot.FromPG(tod)
	a.Status = Status(status)
	a.Channel = Channel(channel)
	return &a, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]Appointment, error) {
	if err != nil {
		return nil, apperr.Storage("query appointments", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("query appointments", err)
	}
	return result, nil
}

// claimSlot flips the slot to booked for appointmentID, creating the row on first use.
// The ON CONFLICT branch only fires while the slot is free, so a held or booked slot
// returns no row. Concurrent claimers of the same key queue on the primary key and the
// losers see the winner's committed row.
func claimSlot(ctx context.Context, tx pgx.Tx, key slot.Key, appointmentID uuid.UUID) error {
	var claimed uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO slots (provider_id, slot_date, slot_time, status, appointment_id)
		VALUES ($1, $2, $3, 'booked', $4)
		ON CONFLICT (provider_id, slot_date, slot_time) DO UPDATE
		SET status = 'booked',
		    appointment_id = EXCLUDED.appointment_id,
		    reason = '',
		    updated_at = now()
		WHERE slots.status = 'free'
		RETURNING appointment_id
	`, key.ProviderID, key.Date, key.Time.PG(), appointmentID).Scan(&claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotConflict
		}
		return mapWriteError("claim slot", err)
	}
	return nil
}

func releaseSlot(ctx context.Context, tx pgx.Tx, key slot.Key, appointmentID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'free',
		    appointment_id = NULL,
		    updated_at = now()
		WHERE provider_id = $1 AND slot_date = $2 AND slot_time = $3
		  AND appointment_id = $4
	`, key.ProviderID, key.Date, key.Time.PG(), appointmentID)
	if err != nil {
		return apperr.Storage("release slot", err)
	}
	return nil
}

func lockScheduled(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return appt, ErrAppointmentTerminal
	}
	return appt, nil
}

// mapWriteError classifies constraint violations. err may already be wrapped by a scan helper.
func mapWriteError(op string, err error) error {
	switch {
	case db.IsUniqueViolation(err, activeSlotIndex):
		return ErrSlotConflict
	case db.IsForeignKeyViolation(err):
		return ErrUnknownReference
	case apperr.Kind(err) != nil:
		return err
	default:
		return apperr.Storage(op, err)
	}
}

// Interface methods

func (s *PgStore) Book(ctx context.Context, p BookParams) (*Appointment, error) {
	key := slot.NewKey(p.Key.ProviderID, p.Key.Date, p.Key.Time)
	id := uuid.New()
	var booked *Appointment

	err := db.InTx(ctx, s.db, "book appointment", func(tx pgx.Tx) error {
		if err := claimSlot(ctx, tx, key, id); err != nil {
			return err
		}

		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('appointment_serial_seq')`).Scan(&seq); err != nil {
			return apperr.Storage("next serial", err)
		}

		appt, err := scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments (
				id, serial_number, patient_id, provider_id, appointment_date, appointment_time,
				duration_minutes, status, symptoms, booking_channel
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, $9)
			RETURNING `+appointmentColumns,
			id, s.serial.Format(seq), p.PatientID, key.ProviderID, key.Date, key.Time.PG(),
			p.DurationMinutes, p.Symptoms, string(p.Channel),
		))
		if err != nil {
			return mapWriteError("insert appointment", err)
		}
		booked = appt
		return nil
	})
	if err != nil {
		return nil, storageIfUnclassified(err)
	}
	return booked, nil
}

func (s *PgStore) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var out *Appointment

	err := db.InTx(ctx, s.db, "cancel appointment", func(tx pgx.Tx) error {
		appt, err := lockScheduled(ctx, tx, id)
		if err != nil {
			return err
		}

		notes := appt.Notes
		if reason = strings.TrimSpace(reason); reason != "" {
			notes = strings.TrimSpace(notes + "\ncancelled: " + reason)
		}
		err = tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'cancelled', notes = $2, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, id, notes).Scan(&appt.UpdatedAt)
		if err != nil {
			return apperr.Storage("update appointment status", err)
		}

		if err := releaseSlot(ctx, tx, appt.Key(), id); err != nil {
			return err
		}

		appt.Status = StatusCancelled
		appt.Notes = notes
		out = appt
		return nil
	})
	if err != nil {
		return nil, storageIfUnclassified(err)
	}
	return out, nil
}

// Reschedule claims the new slot before releasing the old one, so a failed claim leaves
// the existing booking untouched.
func (s *PgStore) Reschedule(ctx context.Context, id uuid.UUID, to slot.Key) (*Appointment, error) {
	var out *Appointment

	err := db.InTx(ctx, s.db, "reschedule appointment", func(tx pgx.Tx) error {
		appt, err := lockScheduled(ctx, tx, id)
		if err != nil {
			return err
		}

		newKey := slot.NewKey(appt.ProviderID, to.Date, to.Time)
		oldKey := appt.Key()
		if newKey == oldKey {
			return apperr.Invalid("appointment is already at %s %s", slot.FormatDate(newKey.Date), newKey.Time)
		}

		if err := claimSlot(ctx, tx, newKey, id); err != nil {
			return err
		}
		if err := releaseSlot(ctx, tx, oldKey, id); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE appointments
			SET appointment_date = $2, appointment_time = $3, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, id, newKey.Date, newKey.Time.PG()).Scan(&appt.UpdatedAt)
		if err != nil {
			return mapWriteError("move appointment", err)
		}

		appt.Date = newKey.Date
		appt.Time = newKey.Time
		out = appt
		return nil
	})
	if err != nil {
		return nil, storageIfUnclassified(err)
	}
	return out, nil
}

func (s *PgStore) BlockSlot(ctx context.Context, key slot.Key, reason string) error {
	key = slot.NewKey(key.ProviderID, key.Date, key.Time)
	var status string
	err := s.db.QueryRow(ctx, `
		INSERT INTO slots (provider_id, slot_date, slot_time, status, reason)
		VALUES ($1, $2, $3, 'blocked', $4)
		ON CONFLICT (provider_id, slot_date, slot_time) DO UPDATE
		SET status = 'blocked', reason = EXCLUDED.reason, updated_at = now()
		WHERE slots.status <> 'booked'
		RETURNING status
	`, key.ProviderID, key.Date, key.Time.PG(), reason).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotConflict
		}
		return mapWriteError("block slot", err)
	}
	return nil
}

func (s *PgStore) UnblockSlot(ctx context.Context, key slot.Key) error {
	key = slot.NewKey(key.ProviderID, key.Date, key.Time)
	tag, err := s.db.Exec(ctx, `
		UPDATE slots
		SET status = 'free', reason = '', updated_at = now()
		WHERE provider_id = $1 AND slot_date = $2 AND slot_time = $3
		  AND status = 'blocked'
	`, key.ProviderID, key.Date, key.Time.PG())
	if err != nil {
		return apperr.Storage("unblock slot", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotBlocked
	}
	return nil
}

func (s *PgStore) ListSlotStates(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]slot.State, error) {
	rows, err := s.db.Query(ctx, `
		SELECT slot_date, slot_time, status
		FROM slots
		WHERE provider_id = $1
		  AND slot_date BETWEEN $2 AND $3
		  AND status <> 'free'
		ORDER BY slot_date, slot_time
	`, providerID, slot.Date(from), slot.Date(to))
	if err != nil {
		return nil, apperr.Storage("list slot states", err)
	}
	defer rows.Close()

	var result []slot.State
	for rows.Next() {
		var date time.Time
		var tod pgtype.Time
		var status string
		if err := rows.Scan(&date, &tod, &status); err != nil {
			return nil, apperr.Storage("scan slot state", err)
		}
		result = append(result, slot.State{
			Key:    slot.NewKey(providerID, date, slot.FromPG(tod)),
			Status: slot.Status(status),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list slot states", err)
	}
	return result, nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (s *PgStore) GetBySerial(ctx context.Context, serial string) (*Appointment, error) {
	return scanAppointment(s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE serial_number = $1
	`, serial))
}

func (s *PgStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, appointment_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	return collectAppointments(rows, err)
}

func (s *PgStore) ListByProviderDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND appointment_date = $2
		ORDER BY appointment_time, created_at
	`, providerID, slot.Date(date))
	return collectAppointments(rows, err)
}

func (s *PgStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, booking_channel, count(*)
		FROM appointments
		GROUP BY status, booking_channel
	`)
	if err != nil {
		return nil, apperr.Storage("appointment stats", err)
	}
	defer rows.Close()

	st := &Stats{ByStatus: map[Status]int{}, ByChannel: map[Channel]int{}}
	for rows.Next() {
		var status, channel string
		var n int64
		if err := rows.Scan(&status, &channel, &n); err != nil {
			return nil, apperr.Storage("scan appointment stats", err)
		}
		st.Total += int(n)
		st.ByStatus[Status(status)] += int(n)
		st.ByChannel[Channel(channel)] += int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("appointment stats", err)
	}
	return st, nil
}

// storageIfUnclassified maps begin/commit failures raised by db.InTx to StorageUnavailable.
func storageIfUnclassified(err error) error {
	if apperr.Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrStorageUnavailable, err)
}
