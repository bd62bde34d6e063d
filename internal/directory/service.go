package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the Provider Directory. Rule changes here only shape future slot generation;
// appointments already booked are never touched.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) CreateSpecialty(ctx context.Context, sp Specialty) (*Specialty, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" {
		return nil, errInvalid("specialty name is required")
	}
	if err := s.repo.CreateSpecialty(ctx, &sp); err != nil {
		return nil, fmt.Errorf("create specialty: %w", err)
	}
	s.logger.Info().Str("specialty", sp.Name).Msg("specialty created")
	return &sp, nil
}

func (s *Service) GetSpecialty(ctx context.Context, name string) (*Specialty, error) {
	return s.repo.GetSpecialty(ctx, name)
}

func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	return s.repo.ListSpecialties(ctx)
}

func (s *Service) CreateProvider(ctx context.Context, p Provider) (*Provider, error) {
	if err := s.checkProvider(ctx, &p); err != nil {
		return nil, err
	}
	p.ID = uuid.New()
	if err := s.repo.CreateProvider(ctx, &p); err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	s.logger.Info().Str("provider_id", p.ID.String()).Str("specialty", p.Specialty).Msg("provider created")
	return &p, nil
}

func (s *Service) UpdateProvider(ctx context.Context, p Provider) (*Provider, error) {
	if p.ID == uuid.Nil {
		return nil, errInvalid("provider id is required")
	}
	if err := s.checkProvider(ctx, &p); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProvider(ctx, &p); err != nil {
		return nil, fmt.Errorf("update provider: %w", err)
	}
	return &p, nil
}

func (s *Service) checkProvider(ctx context.Context, p *Provider) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Specialty = strings.TrimSpace(p.Specialty)
	if p.Name == "" {
		return errInvalid("provider name is required")
	}
	if p.Specialty == "" {
		return errInvalid("provider specialty is required")
	}
	if _, err := s.repo.GetSpecialty(ctx, p.Specialty); err != nil {
		return fmt.Errorf("check specialty %q: %w", p.Specialty, err)
	}
	return nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.repo.GetProvider(ctx, id)
}

func (s *Service) ListProviders(ctx context.Context, specialty string) ([]Provider, error) {
	return s.repo.ListProviders(ctx, strings.TrimSpace(specialty))
}

// ProviderWithInstructions returns the provider and the pre-visit instructions of its specialty.
func (s *Service) ProviderWithInstructions(ctx context.Context, id uuid.UUID) (*Provider, string, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		return nil, "", err
	}
	sp, err := s.repo.GetSpecialty(ctx, p.Specialty)
	if err != nil {
		return nil, "", fmt.Errorf("load specialty for provider %s: %w", id, err)
	}
	return p, sp.PreVisitInstructions, nil
}

// AddRule admits a weekly availability rule. A rule whose end is not after its start is rejected here
// so the materializer never sees one.
func (s *Service) AddRule(ctx context.Context, r Rule) (*Rule, error) {
	r.Active = true
	if err := r.validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProvider(ctx, r.ProviderID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateRule(ctx, &r); err != nil {
		return nil, fmt.Errorf("create availability rule: %w", err)
	}
	s.logger.Info().
		Int64("rule_id", r.ID).
		Str("provider_id", r.ProviderID.String()).
		Int("day_of_week", r.DayOfWeek).
		Str("start", r.Start.String()).
		Str("end", r.End.String()).
		Msg("availability rule added")
	return &r, nil
}

func (s *Service) SetRuleActive(ctx context.Context, id int64, active bool) (*Rule, error) {
	r, err := s.repo.SetRuleActive(ctx, id, active)
	if err != nil {
		return nil, fmt.Errorf("set rule %d active=%t: %w", id, active, err)
	}
	s.logger.Info().Int64("rule_id", id).Bool("active", active).Msg("availability rule toggled")
	return r, nil
}

func (s *Service) ListRules(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]Rule, error) {
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.repo.ListRules(ctx, providerID, activeOnly)
}
