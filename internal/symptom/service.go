package symptom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

var ErrSpecialtyNotFound = fmt.Errorf("specialty %w", apperr.ErrNotFound)

type Repository interface {
	ListMappings(ctx context.Context) ([]Mapping, error)
	CreateMapping(ctx context.Context, m *Mapping) error
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func (r *PgRepository) ListMappings(ctx context.Context) ([]Mapping, error) {
	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.keywords, s.name, m.priority
		FROM symptom_mappings m
		JOIN specialties s ON s.id = m.specialty_id
		ORDER BY m.id
	`)
	if err != nil {
		return nil, apperr.Storage("list symptom mappings", err)
	}
	defer rows.Close()

	var result []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.ID, &m.Keywords, &m.Specialty, &m.Priority); err != nil {
			return nil, apperr.Storage("scan symptom mapping", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list symptom mappings", err)
	}
	return result, nil
}

func (r *PgRepository) CreateMapping(ctx context.Context, m *Mapping) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO symptom_mappings (keywords, specialty_id, priority)
		SELECT $1, s.id, $3
		FROM specialties s
		WHERE s.name = $2
		RETURNING id
	`, m.Keywords, m.Specialty, m.Priority).Scan(&m.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSpecialtyNotFound
		}
		return apperr.Storage("insert symptom mapping", err)
	}
	return nil
}

// Service serves resolutions from a snapshot of the stored mappings. Reload swaps the snapshot.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	resolver atomic.Pointer[Resolver]
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	s := &Service{repo: repo, logger: logger}
	s.resolver.Store(NewResolver(nil))
	return s
}

func (s *Service) Reload(ctx context.Context) error {
	mappings, err := s.repo.ListMappings(ctx)
	if err != nil {
		return fmt.Errorf("reload symptom mappings: %w", err)
	}
	s.resolver.Store(NewResolver(mappings))
	s.logger.Info().Int("mappings", len(mappings)).Msg("symptom mappings loaded")
	return nil
}

func (s *Service) Resolve(text string) []Match {
	return s.resolver.Load().Resolve(text)
}

func (s *Service) Assess(text string) Urgency {
	return Assess(text)
}

// AddMapping stores a new mapping after the existing ones and refreshes the snapshot.
func (s *Service) AddMapping(ctx context.Context, m Mapping) (*Mapping, error) {
	m.Specialty = strings.TrimSpace(m.Specialty)
	kws := m.Keywords[:0:0]
	for _, kw := range m.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			kws = append(kws, kw)
		}
	}
	m.Keywords = kws
	if m.Specialty == "" || len(m.Keywords) == 0 {
		return nil, apperr.Invalid("mapping needs a specialty and at least one keyword")
	}
	if err := s.repo.CreateMapping(ctx, &m); err != nil {
		return nil, fmt.Errorf("add symptom mapping: %w", err)
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return &m, nil
}
