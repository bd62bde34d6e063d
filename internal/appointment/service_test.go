package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
	"github.com/hackgods/clinic-appointment-booking/internal/availability"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/patient"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
)

// ---------- In-memory store ----------

// memStore gives Book the same all-or-nothing behaviour as the Postgres transaction: the
// claim, serial draw and insert happen under one mutex, and failInsert undoes the claim.
type memStore struct {
	mu         sync.Mutex
	serial     SerialFormat
	seq        int64
	slots      map[slot.Key]slot.Status
	owner      map[slot.Key]uuid.UUID
	appts      map[uuid.UUID]*Appointment
	failInsert bool
}

func newMemStore() *memStore {
	return &memStore{
		serial: SerialFormat{Prefix: "XH", Width: 3},
		slots:  map[slot.Key]slot.Status{},
		owner:  map[slot.Key]uuid.UUID{},
		appts:  map[uuid.UUID]*Appointment{},
	}
}

func (m *memStore) claim(key slot.Key, id uuid.UUID) error {
	if st, ok := m.slots[key]; ok && st != slot.StatusFree {
		return ErrSlotConflict
	}
	m.slots[key] = slot.StatusBooked
	m.owner[key] = id
	return nil
}

func (m *memStore) release(key slot.Key) {
	m.slots[key] = slot.StatusFree
	delete(m.owner, key)
}

func (m *memStore) Book(_ context.Context, p BookParams) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slot.NewKey(p.Key.ProviderID, p.Key.Date, p.Key.Time)
	id := uuid.New()
	if err := m.claim(key, id); err != nil {
		return nil, err
	}
	m.seq++
	if m.failInsert {
		m.release(key)
		return nil, apperr.Storage("insert appointment", errors.New("disk full"))
	}
	a := &Appointment{
		ID: id, SerialNumber: m.serial.Format(m.seq), PatientID: p.PatientID, ProviderID: key.ProviderID,
		Date: key.Date, Time: key.Time, DurationMinutes: p.DurationMinutes, Status: StatusScheduled,
		Symptoms: p.Symptoms, Channel: p.Channel,
	}
	m.appts[id] = a
	cp := *a
	return &cp, nil
}

func (m *memStore) Cancel(_ context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status.Terminal() {
		return nil, ErrAppointmentTerminal
	}
	a.Status = StatusCancelled
	a.Notes = reason
	m.release(a.Key())
	cp := *a
	return &cp, nil
}

func (m *memStore) Reschedule(_ context.Context, id uuid.UUID, to slot.Key) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status.Terminal() {
		return nil, ErrAppointmentTerminal
	}
	newKey := slot.NewKey(a.ProviderID, to.Date, to.Time)
	if err := m.claim(newKey, id); err != nil {
		return nil, err
	}
	m.release(a.Key())
	a.Date, a.Time = newKey.Date, newKey.Time
	cp := *a
	return &cp, nil
}

func (m *memStore) BlockSlot(_ context.Context, key slot.Key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[key] == slot.StatusBooked {
		return ErrSlotConflict
	}
	m.slots[key] = slot.StatusBlocked
	return nil
}

func (m *memStore) UnblockSlot(_ context.Context, key slot.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[key] != slot.StatusBlocked {
		return ErrSlotNotBlocked
	}
	m.slots[key] = slot.StatusFree
	return nil
}

func (m *memStore) ListSlotStates(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]slot.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []slot.State
	for k, st := range m.slots {
		if k.ProviderID == providerID && st != slot.StatusFree && !k.Date.Before(from) && !k.Date.After(to) {
			out = append(out, slot.State{Key: k, Status: st})
		}
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetBySerial(_ context.Context, serial string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.SerialNumber == serial {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memStore) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ListByProviderDate(_ context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.ProviderID == providerID && a.Date.Equal(slot.Date(date)) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &Stats{ByStatus: map[Status]int{}, ByChannel: map[Channel]int{}}
	for _, a := range m.appts {
		st.Total++
		st.ByStatus[a.Status]++
		st.ByChannel[a.Channel]++
	}
	return st, nil
}

func (m *memStore) slotStatus(key slot.Key) slot.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.slots[key]; ok {
		return st
	}
	return slot.StatusFree
}

// ---------- Directory and patient fakes ----------

type fakeDirectory struct {
	providers map[uuid.UUID]directory.Provider
	rules     []directory.Rule
}

func (f *fakeDirectory) GetProvider(_ context.Context, id uuid.UUID) (*directory.Provider, error) {
	p, ok := f.providers[id]
	if !ok {
		return nil, directory.ErrProviderNotFound
	}
	return &p, nil
}

func (f *fakeDirectory) ProviderWithInstructions(ctx context.Context, id uuid.UUID) (*directory.Provider, string, error) {
	p, err := f.GetProvider(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return p, "Bring previous ECG reports and arrive 15 minutes early.", nil
}

func (f *fakeDirectory) ListRules(_ context.Context, providerID uuid.UUID, activeOnly bool) ([]directory.Rule, error) {
	var out []directory.Rule
	for _, r := range f.rules {
		if r.ProviderID == providerID && (!activeOnly || r.Active) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePatients map[uuid.UUID]patient.Patient

func (f fakePatients) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := f[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return &p, nil
}

func (f fakePatients) GetByPhone(_ context.Context, phone string) (*patient.Patient, error) {
	for _, p := range f {
		if p.Phone == phone {
			return &p, nil
		}
	}
	return nil, patient.ErrPatientNotFound
}

// ---------- Fixture ----------

var monday = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *memStore
	rahman   uuid.UUID
	patients []uuid.UUID
}

func newFixture(t *testing.T, nPatients int) *fixture {
	t.Helper()
	rahman := uuid.New()
	dir := &fakeDirectory{
		providers: map[uuid.UUID]directory.Provider{
			rahman: {ID: rahman, Name: "Dr. Rahman", Specialty: "Cardiology"},
		},
		rules: []directory.Rule{{
			ProviderID: rahman, DayOfWeek: int(time.Monday),
			Start: mustTime(t, "18:00"), End: mustTime(t, "20:00"), Active: true,
		}},
	}
	pats := fakePatients{}
	var ids []uuid.UUID
	for i := 0; i < nPatients; i++ {
		id := uuid.New()
		pats[id] = patient.Patient{ID: id, Phone: fmt.Sprintf("01712%06d", i)}
		ids = append(ids, id)
	}

	store := newMemStore()
	mat := availability.NewMaterializer(dir, store, availability.Options{
		Granularity:   30 * time.Minute,
		Location:      time.UTC,
		MaxWindowDays: 31,
		Now:           func() time.Time { return monday.Add(-24 * time.Hour) },
	})
	svc := NewService(store, mat, dir, pats, nil, Options{SlotDuration: 30 * time.Minute, Logger: zerolog.Nop()})
	return &fixture{svc: svc, store: store, rahman: rahman, patients: ids}
}

func (f *fixture) request(t *testing.T, patientIdx int, at string, ch Channel) ReserveRequest {
	return ReserveRequest{
		ProviderID: f.rahman, Date: monday, Time: mustTime(t, at),
		PatientID: f.patients[patientIdx], Symptoms: "chest pain", Channel: ch,
	}
}

// ---------- Reserve ----------

func TestReserveReturnsConfirmation(t *testing.T) {
	f := newFixture(t, 1)

	conf, err := f.svc.Reserve(context.Background(), f.request(t, 0, "18:00", ChannelChat))
	require.NoError(t, err)
	assert.Equal(t, "XH001", conf.SerialNumber)
	assert.Equal(t, "Dr. Rahman", conf.ProviderName)
	assert.Equal(t, "Cardiology", conf.Specialty)
	assert.NotEmpty(t, conf.PreVisitInstructions)
	assert.Equal(t, 30, conf.DurationMinutes)
	assert.Equal(t, slot.StatusBooked, f.store.slotStatus(conf.Key()))
}

func TestConcurrentReservesExactlyOneWins(t *testing.T) {
	const n = 50
	f := newFixture(t, n)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins []*Confirmation
	var conflicts int

	channels := []Channel{ChannelChat, ChannelVoice, ChannelWeb}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conf, err := f.svc.Reserve(context.Background(), f.request(t, i, "18:30", channels[i%3]))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins = append(wins, conf)
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, n-1, conflicts)

	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.ByStatus[StatusScheduled])
}

func TestTwoAdaptersRaceForTheSameSlot(t *testing.T) {
	f := newFixture(t, 2)

	type result struct {
		conf *Confirmation
		err  error
	}
	results := make(chan result, 2)
	start := make(chan struct{})
	for i, ch := range []Channel{ChannelChat, ChannelVoice} {
		go func(i int, ch Channel) {
			<-start
			conf, err := f.svc.Reserve(context.Background(), f.request(t, i, "18:00", ch))
			results <- result{conf, err}
		}(i, ch)
	}
	close(start)

	var confs []*Confirmation
	var errs []error
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		confs = append(confs, r.conf)
	}

	require.Len(t, confs, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, "XH001", confs[0].SerialNumber)
	assert.ErrorIs(t, errs[0], apperr.ErrConflict)
}

func TestSerialsAreUniqueAcrossSlots(t *testing.T) {
	f := newFixture(t, 4)
	times := []string{"18:00", "18:30", "19:00", "19:30"}

	var wg sync.WaitGroup
	serials := make(chan string, len(times))
	for i, at := range times {
		wg.Add(1)
		go func(i int, at string) {
			defer wg.Done()
			conf, err := f.svc.Reserve(context.Background(), f.request(t, i, at, ChannelWeb))
			if assert.NoError(t, err) {
				serials <- conf.SerialNumber
			}
		}(i, at)
	}
	wg.Wait()
	close(serials)

	seen := map[string]bool{}
	for s := range serials {
		assert.False(t, seen[s], "duplicate serial %s", s)
		seen[s] = true
	}
	assert.Len(t, seen, len(times))
}

func TestReserveRejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	req := f.request(t, 0, "18:00", "sms")
	_, err := f.svc.Reserve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	req = f.request(t, 0, "18:00", ChannelChat)
	req.PatientID = uuid.New()
	_, err = f.svc.Reserve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	req = f.request(t, 0, "18:00", ChannelChat)
	req.ProviderID = uuid.New()
	_, err = f.svc.Reserve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Reserve(ctx, f.request(t, 0, "20:00", ChannelChat))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	req = f.request(t, 0, "18:00", ChannelChat)
	req.Date = monday.AddDate(0, 0, -7)
	_, err = f.svc.Reserve(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestReserveBlockedSlotIsConflict(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	key := slot.NewKey(f.rahman, monday, mustTime(t, "19:00"))

	require.NoError(t, f.svc.BlockSlot(ctx, key, "staff meeting"))
	_, err := f.svc.Reserve(ctx, f.request(t, 0, "19:00", ChannelChat))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	require.NoError(t, f.svc.UnblockSlot(ctx, key))
	_, err = f.svc.Reserve(ctx, f.request(t, 0, "19:00", ChannelChat))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.BlockSlot(ctx, key, "too late"), apperr.ErrConflict)
	assert.ErrorIs(t, f.svc.UnblockSlot(ctx, slot.NewKey(f.rahman, monday, mustTime(t, "19:30"))), apperr.ErrNotFound)
}

func TestFailedBookLeavesSlotFree(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.store.failInsert = true

	_, err := f.svc.Reserve(ctx, f.request(t, 0, "18:00", ChannelVoice))
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	key := slot.NewKey(f.rahman, monday, mustTime(t, "18:00"))
	assert.Equal(t, slot.StatusFree, f.store.slotStatus(key))

	f.store.failInsert = false
	_, err = f.svc.Reserve(ctx, f.request(t, 1, "18:00", ChannelVoice))
	require.NoError(t, err)
}

// ---------- Cancel / Reschedule ----------

func TestCancelThenRebook(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	first, err := f.svc.Reserve(ctx, f.request(t, 0, "18:00", ChannelChat))
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, f.request(t, 1, "18:00", ChannelWeb))
	require.ErrorIs(t, err, apperr.ErrConflict)

	cancelled, err := f.svc.Cancel(ctx, first.ID, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	second, err := f.svc.Reserve(ctx, f.request(t, 1, "18:00", ChannelWeb))
	require.NoError(t, err)
	assert.NotEqual(t, first.SerialNumber, second.SerialNumber)

	_, err = f.svc.Cancel(ctx, first.ID, "")
	assert.ErrorIs(t, err, apperr.ErrAlreadyTerminal)

	_, err = f.svc.Cancel(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRescheduleKeepsSerialAndFreesOldSlot(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	conf, err := f.svc.Reserve(ctx, f.request(t, 0, "18:00", ChannelChat))
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, f.request(t, 1, "19:00", ChannelChat))
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, conf.ID, monday, mustTime(t, "18:00"))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = f.svc.Reschedule(ctx, conf.ID, monday, mustTime(t, "19:00"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	moved, err := f.svc.Reschedule(ctx, conf.ID, monday, mustTime(t, "19:30"))
	require.NoError(t, err)
	assert.Equal(t, conf.SerialNumber, moved.SerialNumber)
	assert.Equal(t, mustTime(t, "19:30"), moved.Time)
	assert.Equal(t, slot.StatusFree, f.store.slotStatus(conf.Key()))
	assert.Equal(t, slot.StatusBooked, f.store.slotStatus(moved.Key()))
}

// ---------- Queries ----------

func TestQueries(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	conf, err := f.svc.Reserve(ctx, f.request(t, 0, "18:00", ChannelChat))
	require.NoError(t, err)

	got, err := f.svc.GetBySerial(ctx, " xh001 ")
	require.NoError(t, err)
	assert.Equal(t, conf.ID, got.ID)

	phone := fakePatientsPhone(t, f)
	list, err := f.svc.ListByPatientPhone(ctx, phone, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	day, err := f.svc.ListByProviderDate(ctx, f.rahman, monday)
	require.NoError(t, err)
	assert.Len(t, day, 1)

	_, err = f.svc.ListByProviderDate(ctx, uuid.New(), monday)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.GetBySerial(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestGetBySerialWithLowercasePrefix(t *testing.T) {
	f := newFixture(t, 1)
	f.store.serial = SerialFormat{Prefix: "xh", Width: 3}
	ctx := context.Background()

	conf, err := f.svc.Reserve(ctx, f.request(t, 0, "18:30", ChannelWeb))
	require.NoError(t, err)
	assert.Equal(t, "XH001", conf.SerialNumber)

	got, err := f.svc.GetBySerial(ctx, "xh001")
	require.NoError(t, err)
	assert.Equal(t, conf.ID, got.ID)
}

func fakePatientsPhone(t *testing.T, f *fixture) string {
	t.Helper()
	p, err := f.svc.patients.Get(context.Background(), f.patients[0])
	require.NoError(t, err)
	return p.Phone
}
