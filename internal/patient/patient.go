package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

var ErrPatientNotFound = fmt.Errorf("patient %w", apperr.ErrNotFound)

type Patient struct {
	ID          uuid.UUID  `json:"id"`
	Phone       string     `json:"phone"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Address     string     `json:"address,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Repository interface {
	// Upsert keys on phone. Empty fields in p never overwrite stored values.
	Upsert(ctx context.Context, p *Patient) (*Patient, error)
	Get(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

const patientColumns = `id, phone, name, email, date_of_birth, gender, address, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Phone, &p.Name, &p.Email, &p.DateOfBirth, &p.Gender, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, apperr.Storage("scan patient", err)
	}
	return &p, nil
}

func (r *PgRepository) Upsert(ctx context.Context, p *Patient) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, phone, name, email, date_of_birth, gender, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (phone) DO UPDATE SET
			name          = COALESCE(NULLIF(EXCLUDED.name, ''), patients.name),
			email         = COALESCE(NULLIF(EXCLUDED.email, ''), patients.email),
			date_of_birth = COALESCE(EXCLUDED.date_of_birth, patients.date_of_birth),
			gender        = COALESCE(NULLIF(EXCLUDED.gender, ''), patients.gender),
			address       = COALESCE(NULLIF(EXCLUDED.address, ''), patients.address),
			updated_at    = now()
		RETURNING `+patientColumns,
		uuid.New(), p.Phone, p.Name, p.Email, p.DateOfBirth, p.Gender, p.Address)
	return scanPatient(row)
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

func (r *PgRepository) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE phone = $1`, phone))
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// NormalizePhone strips formatting so the same contact reached over different channels maps to one patient.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindOrCreate returns the patient registered under the phone, creating or enriching the record.
func (s *Service) FindOrCreate(ctx context.Context, p Patient) (*Patient, error) {
	p.Phone = NormalizePhone(p.Phone)
	if len(strings.TrimPrefix(p.Phone, "+")) < 5 {
		return nil, apperr.Invalid("phone number is required")
	}
	p.Name = strings.TrimSpace(p.Name)

	out, err := s.repo.Upsert(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("find or create patient: %w", err)
	}
	s.logger.Debug().Str("patient_id", out.ID.String()).Msg("patient resolved")
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	return s.repo.GetByPhone(ctx, NormalizePhone(phone))
}
