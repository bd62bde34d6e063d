package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
)

var (
	ErrProviderNotFound  = fmt.Errorf("provider %w", apperr.ErrNotFound)
	ErrSpecialtyNotFound = fmt.Errorf("specialty %w", apperr.ErrNotFound)
	ErrRuleNotFound      = fmt.Errorf("availability rule %w", apperr.ErrNotFound)
	ErrSpecialtyExists   = fmt.Errorf("%w: specialty already exists", apperr.ErrInvalidRequest)
)

func errInvalid(format string, args ...any) error {
	return apperr.Invalid(format, args...)
}

// Repository persists providers, specialties and weekly rules.
type Repository interface {
	CreateSpecialty(ctx context.Context, s *Specialty) error
	GetSpecialty(ctx context.Context, name string) (*Specialty, error)
	ListSpecialties(ctx context.Context) ([]Specialty, error)

	CreateProvider(ctx context.Context, p *Provider) error
	UpdateProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context, specialty string) ([]Provider, error)

	CreateRule(ctx context.Context, r *Rule) error
	SetRuleActive(ctx context.Context, id int64, active bool) (*Rule, error)
	ListRules(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]Rule, error)
}
