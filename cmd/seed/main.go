package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/directory"
	"github.com/hackgods/clinic-appointment-booking/internal/patient"
	"github.com/hackgods/clinic-appointment-booking/internal/slot"
	"github.com/hackgods/clinic-appointment-booking/internal/symptom"
	"github.com/hackgods/clinic-appointment-booking/pkg/logging"
)

type providerSeed struct {
	Name, Specialty, Phone, Email string
	Days                          []time.Weekday
	Start, End                    string
}

var specialties = []directory.Specialty{
	{Name: "Cardiology", Description: "Heart and cardiovascular system",
		PreVisitInstructions: "Please bring previous ECG reports. Fast for 12 hours if blood tests are required."},
	{Name: "Gastroenterology", Description: "Digestive system and stomach",
		PreVisitInstructions: "Fast for 8 hours before the appointment. Bring a list of current medications."},
	{Name: "General Medicine", Description: "General health and routine checkups",
		PreVisitInstructions: "Bring previous medical reports and vaccination records."},
}

var providers = []providerSeed{
	{
		Name: "Dr. Rahman", Specialty: "Cardiology", Phone: "+8801712345001", Email: "rahman@xhospital.com",
		Days:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday},
		Start: "18:00", End: "20:00",
	},
	{
		Name: "Dr. Ayesha", Specialty: "Gastroenterology", Phone: "+8801712345002", Email: "ayesha@xhospital.com",
		Days:  []time.Weekday{time.Saturday, time.Sunday, time.Monday, time.Tuesday},
		Start: "16:00", End: "18:00",
	},
	{
		Name: "Dr. Karim", Specialty: "General Medicine", Phone: "+8801712345003", Email: "karim@xhospital.com",
		Days: []time.Weekday{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
		},
		Start: "10:00", End: "14:00",
	},
}

var mappings = []symptom.Mapping{
	{Specialty: "Cardiology", Priority: 3,
		Keywords: []string{"chest pain", "heart", "cardiac", "palpitation", "chest tightness"}},
	{Specialty: "Gastroenterology", Priority: 2,
		Keywords: []string{"stomach pain", "digestion", "gastric", "stomach", "abdominal", "nausea", "vomiting"}},
	{Specialty: "General Medicine", Priority: 1,
		Keywords: []string{"fever", "headache", "general", "checkup", "routine", "cold", "flu"}},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.Migrate(cfg.PostgresDSN, db.Up); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{ApplicationName: "clinic-seed"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	dir := directory.NewService(directory.NewPgRepository(pool), logging.Component(logger, "directory"))
	symptomRepo := symptom.NewPgRepository(pool)
	symptoms := symptom.NewService(symptomRepo, logging.Component(logger, "symptom"))
	patients := patient.NewService(patient.NewPgRepository(pool), logging.Component(logger, "patient"))

	if err := seedDirectory(ctx, dir, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed directory")
	}
	if err := seedMappings(ctx, symptomRepo, symptoms, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed symptom mappings")
	}

	count := 200
	if v := os.Getenv("SEED_PATIENTS"); v != "" {
		if _, err := fmt.Sscan(v, &count); err != nil {
			logger.Fatal().Str("SEED_PATIENTS", v).Msg("SEED_PATIENTS must be an integer")
		}
	}
	if err := seedPatients(ctx, patients, count, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// seedDirectory is idempotent: existing specialties and providers (matched by name) are kept.
func seedDirectory(ctx context.Context, dir *directory.Service, logger zerolog.Logger) error {
	for _, sp := range specialties {
		_, err := dir.CreateSpecialty(ctx, sp)
		if errors.Is(err, directory.ErrSpecialtyExists) {
			logger.Debug().Str("specialty", sp.Name).Msg("specialty exists")
			continue
		}
		if err != nil {
			return err
		}
	}

	for _, ps := range providers {
		existing, err := dir.ListProviders(ctx, ps.Specialty)
		if err != nil {
			return err
		}
		if hasProvider(existing, ps.Name) {
			logger.Debug().Str("provider", ps.Name).Msg("provider exists")
			continue
		}

		p, err := dir.CreateProvider(ctx, directory.Provider{
			Name: ps.Name, Specialty: ps.Specialty, Phone: ps.Phone, Email: ps.Email,
		})
		if err != nil {
			return err
		}

		start, err := slot.ParseTimeOfDay(ps.Start)
		if err != nil {
			return err
		}
		end, err := slot.ParseTimeOfDay(ps.End)
		if err != nil {
			return err
		}
		for _, day := range ps.Days {
			if _, err := dir.AddRule(ctx, directory.Rule{
				ProviderID: p.ID, DayOfWeek: int(day), Start: start, End: end,
			}); err != nil {
				return fmt.Errorf("rule for %s on %s: %w", ps.Name, day, err)
			}
		}
		logger.Info().Str("provider", ps.Name).Int("rules", len(ps.Days)).Msg("provider seeded")
	}
	return nil
}

func hasProvider(list []directory.Provider, name string) bool {
	for _, p := range list {
		if p.Name == name {
			return true
		}
	}
	return false
}

func seedMappings(ctx context.Context, repo symptom.Repository, svc *symptom.Service, logger zerolog.Logger) error {
	existing, err := repo.ListMappings(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Debug().Int("count", len(existing)).Msg("symptom mappings exist")
		return nil
	}
	for _, m := range mappings {
		if _, err := svc.AddMapping(ctx, m); err != nil {
			return err
		}
	}
	logger.Info().Int("count", len(mappings)).Msg("symptom mappings seeded")
	return nil
}

// seedPatients registers fake patients with Bangladeshi mobile numbers. Re-running enriches
// rather than duplicates, since patients are keyed by phone.
func seedPatients(ctx context.Context, svc *patient.Service, count int, logger zerolog.Logger) error {
	faker := gofakeit.New(0)
	genders := []string{"Male", "Female"}

	for i := 0; i < count; i++ {
		dob := faker.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC))
		dob = slot.Date(dob)

		_, err := svc.FindOrCreate(ctx, patient.Patient{
			Phone:       fmt.Sprintf("+88017%08d", i),
			Name:        faker.Name(),
			Email:       faker.Email(),
			DateOfBirth: &dob,
			Gender:      genders[faker.Number(0, len(genders)-1)],
			Address:     faker.City() + ", Bangladesh",
		})
		if err != nil {
			return err
		}
		if (i+1)%100 == 0 {
			logger.Info().Int("seeded", i+1).Int("total", count).Msg("patients progress")
		}
	}
	logger.Info().Int("count", count).Msg("patients seeded")
	return nil
}
