package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
)

func main() {
	professionals := flag.Int("professionals", 100, "number of medical professionals to create")
	patients := flag.Int("patients", 9000, "number of patients to create")
	blocks := flag.Int("blocks", 4, "availability blocks per professional")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "prod")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "clinic-seed"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := &seeder{pool: pool, faker: faker, logger: logger}

	profIDs, err := s.seedProfessionals(context.Background(), *professionals)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed professionals")
	}
	if err := s.seedAvailability(context.Background(), profIDs, *blocks); err != nil {
		logger.Fatal().Err(err).Msg("seed availability")
	}
	if err := s.seedPatients(context.Background(), *patients); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

type seeder struct {
	pool   *pgxpool.Pool
	faker  *gofakeit.Faker
	logger zerolog.Logger
}

const insertUser = `
	INSERT INTO users (id, email, first_name, last_name, phone_number, is_email_verified)
	VALUES ($1, $2, $3, $4, $5, true)
`

// insertFakeUser creates a user with a unique email. The faker may repeat
// addresses, so the id is folded into the local part.
func (s *seeder) insertFakeUser(ctx context.Context, tx pgx.Tx) (uuid.UUID, error) {
	id := uuid.New()
	first := s.faker.FirstName()
	last := s.faker.LastName()
	email := fmt.Sprintf("%s.%s.%s@%s",
		strings.ToLower(first), strings.ToLower(last), id.String()[:8], s.faker.DomainName())

	if _, err := tx.Exec(ctx, insertUser, id, email, first, last, s.faker.Phone()); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *seeder) seedProfessionals(ctx context.Context, count int) ([]uuid.UUID, error) {
	s.logger.Info().Int("count", count).Msg("seeding medical professionals")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		userID, err := s.insertFakeUser(ctx, tx)
		if err != nil {
			return nil, err
		}

		id := uuid.New()
		spec := specialties[s.faker.Number(0, len(specialties)-1)]
		license := s.faker.Regex("[A-Z]{2}[0-9]{6}")

		_, err = tx.Exec(ctx, `
			INSERT INTO medical_professionals (id, user_id, medical_license_number, specialization, department)
			VALUES ($1, $2, $3, $4, $5)
		`, id, userID, license, spec, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.logger.Info().Msg("medical professionals seeded")
	return ids, nil
}

// seedAvailability gives every professional back-to-back multi-day blocks
// starting tomorrow, so bookings exercise both whole-block and split paths.
func (s *seeder) seedAvailability(ctx context.Context, professionals []uuid.UUID, perProfessional int) error {
	s.logger.Info().Int("per_professional", perProfessional).Msg("seeding availability")

	base := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	rows := make([][]any, 0, len(professionals)*perProfessional)
	for _, pid := range professionals {
		start := base
		for b := 0; b < perProfessional; b++ {
			span := s.faker.Number(1, 5)
			blockStart := start.Add(9 * time.Hour)
			blockEnd := start.Add(time.Duration(span-1)*24*time.Hour + 17*time.Hour)
			rows = append(rows, []any{uuid.New(), pid, blockStart, blockEnd, false})
			start = start.Add(time.Duration(span) * 24 * time.Hour)
		}
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"availabilities"},
		[]string{"id", "professional_id", "start_time", "end_time", "is_booked"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return err
	}

	s.logger.Info().Int64("rows", n).Msg("availability seeded")
	return nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) error {
	s.logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			userID, err := s.insertFakeUser(ctx, tx)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO patients (id, user_id, allergies)
				VALUES ($1, $2, $3)
			`, uuid.New(), userID, s.allergies())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		s.logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func (s *seeder) allergies() *string {
	if s.faker.Bool() {
		return nil
	}
	a := s.faker.RandomString([]string{"Penicillin", "Peanuts", "Latex", "Pollen", "Shellfish"})
	return &a
}
