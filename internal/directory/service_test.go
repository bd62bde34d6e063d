package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

// ---------- Mock repository ----------

type mockRepo struct {
	mu          sync.Mutex
	specialties map[string]*Specialty
	providers   map[uuid.UUID]*Provider
	rules       []*Rule
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		specialties: make(map[string]*Specialty),
		providers:   make(map[uuid.UUID]*Provider),
	}
}

func (m *mockRepo) CreateSpecialty(_ context.Context, s *Specialty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.specialties[s.Name]; ok {
		return ErrSpecialtyExists
	}
	s.ID = int64(len(m.specialties) + 1)
	cp := *s
	m.specialties[s.Name] = &cp
	return nil
}

func (m *mockRepo) GetSpecialty(_ context.Context, name string) (*Specialty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.specialties[name]
	if !ok {
		return nil, ErrSpecialtyNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) ListSpecialties(_ context.Context) ([]Specialty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Specialty
	for _, s := range m.specialties {
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockRepo) CreateProvider(_ context.Context, p *Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.providers[p.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateProvider(_ context.Context, p *Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[p.ID]; !ok {
		return ErrProviderNotFound
	}
	cp := *p
	m.providers[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) ListProviders(_ context.Context, specialty string) ([]Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Provider
	for _, p := range m.providers {
		if specialty == "" || p.Specialty == specialty {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepo) CreateRule(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.rules) + 1)
	cp := *r
	m.rules = append(m.rules, &cp)
	return nil
}

func (m *mockRepo) SetRuleActive(_ context.Context, id int64, active bool) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.ID == id {
			r.Active = active
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRuleNotFound
}

func (m *mockRepo) ListRules(_ context.Context, providerID uuid.UUID, activeOnly bool) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Rule
	for _, r := range m.rules {
		if r.ProviderID == providerID && (!activeOnly || r.Active) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// ---------- Helper ----------

func newTestService(t *testing.T) (*Service, *mockRepo) {
	t.Helper()
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	_, err := svc.CreateSpecialty(context.Background(), Specialty{
		Name:                 "Cardiology",
		PreVisitInstructions: "Please bring previous ECG reports.",
	})
	require.NoError(t, err)
	return svc, repo
}

func mustTime(t *testing.T, s string) slot.TimeOfDay {
	t.Helper()
	tod, err := slot.ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

// ---------- Tests ----------

func TestCreateProviderRequiresKnownSpecialty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProvider(ctx, Provider{Name: "Dr. Karim", Specialty: "Dermatology"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	p, err := svc.CreateProvider(ctx, Provider{Name: " Dr. Rahman ", Specialty: "Cardiology"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, "Dr. Rahman", p.Name)
}

func TestCreateProviderValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProvider(context.Background(), Provider{Specialty: "Cardiology"})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestProviderWithInstructions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProvider(ctx, Provider{Name: "Dr. Rahman", Specialty: "Cardiology"})
	require.NoError(t, err)

	got, instructions, err := svc.ProviderWithInstructions(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "Please bring previous ECG reports.", instructions)
}

func TestAddRuleRejectsInvalidWindows(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProvider(ctx, Provider{Name: "Dr. Rahman", Specialty: "Cardiology"})
	require.NoError(t, err)

	cases := []struct {
		name string
		rule Rule
	}{
		{"start equals end", Rule{ProviderID: p.ID, DayOfWeek: 1, Start: mustTime(t, "18:00"), End: mustTime(t, "18:00")}},
		{"end before start", Rule{ProviderID: p.ID, DayOfWeek: 1, Start: mustTime(t, "20:00"), End: mustTime(t, "18:00")}},
		{"day out of range", Rule{ProviderID: p.ID, DayOfWeek: 7, Start: mustTime(t, "18:00"), End: mustTime(t, "20:00")}},
		{"missing provider", Rule{DayOfWeek: 1, Start: mustTime(t, "18:00"), End: mustTime(t, "20:00")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddRule(ctx, tc.rule)
			assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
		})
	}
}

func TestAddRuleUnknownProvider(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddRule(context.Background(), Rule{
		ProviderID: uuid.New(), DayOfWeek: 1, Start: mustTime(t, "18:00"), End: mustTime(t, "20:00"),
	})
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestSetRuleActiveFiltersListing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProvider(ctx, Provider{Name: "Dr. Rahman", Specialty: "Cardiology"})
	require.NoError(t, err)

	monday, err := svc.AddRule(ctx, Rule{ProviderID: p.ID, DayOfWeek: 1, Start: mustTime(t, "18:00"), End: mustTime(t, "20:00")})
	require.NoError(t, err)
	_, err = svc.AddRule(ctx, Rule{ProviderID: p.ID, DayOfWeek: 2, Start: mustTime(t, "18:00"), End: mustTime(t, "20:00")})
	require.NoError(t, err)

	_, err = svc.SetRuleActive(ctx, monday.ID, false)
	require.NoError(t, err)

	active, err := svc.ListRules(ctx, p.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].DayOfWeek)

	all, err := svc.ListRules(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.SetRuleActive(ctx, 999, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRuleCovers(t *testing.T) {
	r := Rule{Start: mustTime(t, "18:00"), End: mustTime(t, "20:00")}

	assert.True(t, r.Covers(mustTime(t, "18:00"), 30*time.Minute))
	assert.True(t, r.Covers(mustTime(t, "19:30"), 30*time.Minute))
	assert.False(t, r.Covers(mustTime(t, "20:00"), 30*time.Minute))
	assert.False(t, r.Covers(mustTime(t, "18:15"), 30*time.Minute))
	assert.False(t, r.Covers(mustTime(t, "17:30"), 30*time.Minute))
}
