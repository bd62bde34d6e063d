package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

// Helpers

func scanSpecialty(row pgx.Row) (*Specialty, error) {
	var s Specialty
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.PreVisitInstructions, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpecialtyNotFound
		}
		return nil, apperr.Storage("scan specialty", err)
	}
	return &s, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, apperr.Storage("scan provider", err)
	}
	return &p, nil
}

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	var start, end pgtype.Time
	var day int16

	err := row.Scan(&r.ID, &r.ProviderID, &day, &start, &end, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, apperr.Storage("scan availability rule", err)
	}

	r.DayOfWeek = int(day)
	r.Start = slot.FromPG(start)
	r.End = slot.FromPG(end)
	return &r, nil
}

// Specialties

func (r *PgRepository) CreateSpecialty(ctx context.Context, s *Specialty) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO specialties (name, description, pre_visit_instructions)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, s.Name, s.Description, s.PreVisitInstructions).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrSpecialtyExists
		}
		return apperr.Storage("insert specialty", err)
	}
	return nil
}

func (r *PgRepository) GetSpecialty(ctx context.Context, name string) (*Specialty, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, pre_visit_instructions, created_at
		FROM specialties
		WHERE name = $1
	`, name)
	return scanSpecialty(row)
}

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, pre_visit_instructions, created_at
		FROM specialties
		ORDER BY name
	`)
	if err != nil {
		return nil, apperr.Storage("list specialties", err)
	}
	defer rows.Close()

	var result []Specialty
	for rows.Next() {
		s, err := scanSpecialty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list specialties", err)
	}
	return result, nil
}

// Providers

func (r *PgRepository) CreateProvider(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO providers (id, name, specialty, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Specialty, p.Phone, p.Email).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrSpecialtyNotFound
		}
		return apperr.Storage("insert provider", err)
	}
	return nil
}

func (r *PgRepository) UpdateProvider(ctx context.Context, p *Provider) error {
	err := r.db.QueryRow(ctx, `
		UPDATE providers
		SET name = $2,
		    specialty = $3,
		    phone = $4,
		    email = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Specialty, p.Phone, p.Email).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrProviderNotFound
		case db.IsForeignKeyViolation(err):
			return ErrSpecialtyNotFound
		}
		return apperr.Storage("update provider", err)
	}
	return nil
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, phone, email, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context, specialty string) ([]Provider, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, specialty, phone, email, created_at, updated_at
		FROM providers
		WHERE $1 = '' OR specialty = $1
		ORDER BY name
	`, specialty)
	if err != nil {
		return nil, apperr.Storage("list providers", err)
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list providers", err)
	}
	return result, nil
}

// Rules

func (r *PgRepository) CreateRule(ctx context.Context, rule *Rule) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO availability_rules (provider_id, day_of_week, start_time, end_time, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, created_at, updated_at
	`, rule.ProviderID, int16(rule.DayOfWeek), rule.Start.PG(), rule.End.PG(), rule.Active).
		Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		switch {
		case db.IsForeignKeyViolation(err):
			return ErrProviderNotFound
		case db.IsCheckViolation(err):
			return errInvalid("availability rule violates schema constraints")
		}
		return apperr.Storage("insert availability rule", err)
	}
	return nil
}

func (r *PgRepository) SetRuleActive(ctx context.Context, id int64, active bool) (*Rule, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE availability_rules
		SET is_active = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, provider_id, day_of_week, start_time, end_time, is_active, created_at, updated_at
	`, id, active)
	return scanRule(row)
}

func (r *PgRepository) ListRules(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]Rule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, provider_id, day_of_week, start_time, end_time, is_active, created_at, updated_at
		FROM availability_rules
		WHERE provider_id = $1
		  AND (NOT $2 OR is_active)
		ORDER BY day_of_week, start_time, id
	`, providerID, activeOnly)
	if err != nil {
		return nil, apperr.Storage("list availability rules", err)
	}
	defer rows.Close()

	var result []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list availability rules", err)
	}
	return result, nil
}
