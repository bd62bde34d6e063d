package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

var apptCols = []string{
	"id", "serial_number", "patient_id", "provider_id", "appointment_date", "appointment_time",
	"duration_minutes", "status", "symptoms", "notes", "booking_channel", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PgStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgStore(mock, SerialFormat{Prefix: "XH", Width: 3}), mock
}

func mustTime(t *testing.T, s string) slot.TimeOfDay {
	t.Helper()
	v, err := slot.ParseTimeOfDay(s)
	require.NoError(t, err)
	return v
}

func apptRow(id, patientID, providerID uuid.UUID, serial string, key slot.Key, status Status) []any {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	return []any{
		id, serial, patientID, providerID, key.Date, key.Time.PG(),
		30, string(status), "chest pain", "", "chat", now, now,
	}
}

// anyArgs matches n placeholders; pgxmock treats a missing WithArgs as zero arguments.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPgBookCommitsClaimSerialAndInsert(t *testing.T) {
	store, mock := newMockStore(t)
	providerID, patientID := uuid.New(), uuid.New()
	key := slot.NewKey(providerID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), mustTime(t, "18:00"))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO slots").
		WithArgs(providerID, key.Date, key.Time.PG(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"appointment_id"}).AddRow(uuid.New()))
	mock.ExpectQuery(`SELECT nextval\('appointment_serial_seq'\)`).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "XH001", patientID, providerID, key.Date, key.Time.PG(), 30, "chest pain", "chat").
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(apptRow(uuid.New(), patientID, providerID, "XH001", key, StatusScheduled)...))
	mock.ExpectCommit()

	appt, err := store.Book(context.Background(), BookParams{
		Key: key, PatientID: patientID, DurationMinutes: 30, Symptoms: "chest pain", Channel: ChannelChat,
	})
	require.NoError(t, err)
	assert.Equal(t, "XH001", appt.SerialNumber)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, key, appt.Key())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBookClaimMissIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	key := slot.NewKey(uuid.New(), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), mustTime(t, "18:00"))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO slots").
		WithArgs(key.ProviderID, key.Date, key.Time.PG(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"appointment_id"}))
	mock.ExpectRollback()

	_, err := store.Book(context.Background(), BookParams{Key: key, PatientID: uuid.New(), Channel: ChannelVoice})
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NotErrorIs(t, err, apperr.ErrStorageUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBookRollsBackWhenInsertFails(t *testing.T) {
	store, mock := newMockStore(t)
	key := slot.NewKey(uuid.New(), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), mustTime(t, "18:30"))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO slots").
		WithArgs(key.ProviderID, key.Date, key.Time.PG(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"appointment_id"}).AddRow(uuid.New()))
	mock.ExpectQuery("SELECT nextval").
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(4)))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(anyArgs(9)...).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.Book(context.Background(), BookParams{Key: key, PatientID: uuid.New(), Channel: ChannelWeb})
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, apperr.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBookMapsConstraintViolations(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"active slot index", &pgconn.PgError{Code: "23505", ConstraintName: activeSlotIndex}, ErrSlotConflict},
		{"unknown patient", &pgconn.PgError{Code: "23503", ConstraintName: "appointments_patient_id_fkey"}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			key := slot.NewKey(uuid.New(), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), mustTime(t, "19:00"))

			mock.ExpectBegin()
			mock.ExpectQuery("INSERT INTO slots").
				WithArgs(anyArgs(4)...).
				WillReturnRows(pgxmock.NewRows([]string{"appointment_id"}).AddRow(uuid.New()))
			mock.ExpectQuery("SELECT nextval").
				WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(9)))
			mock.ExpectQuery("INSERT INTO appointments").
				WithArgs(anyArgs(9)...).
				WillReturnError(tc.err)
			mock.ExpectRollback()

			_, err := store.Book(context.Background(), BookParams{Key: key, PatientID: uuid.New(), Channel: ChannelChat})
			assert.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgBookBeginFailureIsStorageUnavailable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := store.Book(context.Background(), BookParams{
		Key: slot.NewKey(uuid.New(), time.Now(), 600), PatientID: uuid.New(), Channel: ChannelChat,
	})
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCancelFreesSlot(t *testing.T) {
	store, mock := newMockStore(t)
	id, patientID, providerID := uuid.New(), uuid.New(), uuid.New()
	key := slot.NewKey(providerID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), mustTime(t, "18:00"))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(apptRow(id, patientID, providerID, "XH001", key, StatusScheduled)...))
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "cancelled: patient travelling").
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectExec("UPDATE slots").
		WithArgs(providerID, key.Date, key.Time.PG(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	appt, err := store.Cancel(context.Background(), id, "patient travelling")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, appt.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCancelTerminalAndMissing(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	key := slot.NewKey(uuid.New(), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), mustTime(t, "18:00"))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(apptRow(id, uuid.New(), key.ProviderID, "XH002", key, StatusCancelled)...))
	mock.ExpectRollback()

	_, err := store.Cancel(context.Background(), id, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyTerminal)

	missing := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(missing).WillReturnRows(pgxmock.NewRows(apptCols))
	mock.ExpectRollback()

	_, err = store.Cancel(context.Background(), missing, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBlockAndUnblock(t *testing.T) {
	store, mock := newMockStore(t)
	key := slot.NewKey(uuid.New(), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), mustTime(t, "19:00"))

	mock.ExpectQuery("INSERT INTO slots").
		WithArgs(key.ProviderID, key.Date, key.Time.PG(), "staff meeting").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("blocked"))
	require.NoError(t, store.BlockSlot(context.Background(), key, "staff meeting"))

	mock.ExpectQuery("INSERT INTO slots").
		WithArgs(key.ProviderID, key.Date, key.Time.PG(), "x").
		WillReturnRows(pgxmock.NewRows([]string{"status"}))
	assert.ErrorIs(t, store.BlockSlot(context.Background(), key, "x"), apperr.ErrConflict)

	mock.ExpectExec("UPDATE slots").
		WithArgs(key.ProviderID, key.Date, key.Time.PG()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.UnblockSlot(context.Background(), key), ErrSlotNotBlocked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListSlotStatesAndStats(t *testing.T) {
	store, mock := newMockStore(t)
	providerID := uuid.New()
	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT slot_date, slot_time, status").
		WithArgs(providerID, monday, monday.AddDate(0, 0, 6)).
		WillReturnRows(pgxmock.NewRows([]string{"slot_date", "slot_time", "status"}).
			AddRow(monday, mustTime(t, "18:00").PG(), "booked").
			AddRow(monday, mustTime(t, "19:00").PG(), "blocked"))

	states, err := store.ListSlotStates(context.Background(), providerID, monday, monday.AddDate(0, 0, 6))
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, slot.NewKey(providerID, monday, mustTime(t, "19:00")), states[1].Key)
	assert.Equal(t, slot.StatusBlocked, states[1].Status)

	mock.ExpectQuery("SELECT status, booking_channel, count").
		WillReturnRows(pgxmock.NewRows([]string{"status", "booking_channel", "count"}).
			AddRow("scheduled", "chat", int64(3)).
			AddRow("scheduled", "voice", int64(2)).
			AddRow("cancelled", "chat", int64(1)))

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, st.Total)
	assert.Equal(t, 5, st.ByStatus[StatusScheduled])
	assert.Equal(t, 4, st.ByChannel[ChannelChat])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSerialFormat(t *testing.T) {
	f := SerialFormat{Prefix: "XH", Width: 3}
	assert.Equal(t, "XH001", f.Format(1))
	assert.Equal(t, "XH042", f.Format(42))
	assert.Equal(t, "XH1234", f.Format(1234))
	assert.Equal(t, "XH007", SerialFormat{Prefix: "xh", Width: 3}.Format(7))
}
