package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
)

var patientCols = []string{"id", "phone", "name", "email", "date_of_birth", "gender", "address", "created_at", "updated_at"}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+8801712345678", NormalizePhone(" +880 1712-345678 "))
	assert.Equal(t, "01712345678", NormalizePhone("(017) 1234 5678"))
	assert.Equal(t, "12", NormalizePhone("1+2"))
}

func TestFindOrCreateUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(NewPgRepository(mock), zerolog.Nop())
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "+8801712345678", "Rahim", "", (*time.Time)(nil), "", "").
		WillReturnRows(pgxmock.NewRows(patientCols).
			AddRow(id, "+8801712345678", "Rahim", "", (*time.Time)(nil), "", "", now, now))

	p, err := svc.FindOrCreate(context.Background(), Patient{Phone: "+880 1712-345678", Name: " Rahim "})
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Rahim", p.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOrCreateRejectsMissingPhone(t *testing.T) {
	svc := NewService(nil, zerolog.Nop())

	_, err := svc.FindOrCreate(context.Background(), Patient{Phone: "  ", Name: "x"})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestGetNotFoundAndStorageError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := NewService(NewPgRepository(mock), zerolog.Nop())
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM patients WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(patientCols))
	_, err = svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	mock.ExpectQuery("SELECT (.+) FROM patients WHERE phone").
		WithArgs("01712345678").
		WillReturnError(errors.New("connection reset"))
	_, err = svc.GetByPhone(context.Background(), "017-1234-5678")
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}
