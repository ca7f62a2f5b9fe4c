package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/booking-assistant/internal/db"
	"github.com/medbook/booking-assistant/internal/logging"
)

// The three default doctors every deployment starts with; extra fake ones
// can be added with -extra.
var defaultDoctors = []struct {
	ID        string
	Name      string
	Specialty string
}{
	{"dr_smith", "Dr. Smith", "General Medicine"},
	{"dr_johnson", "Dr. Johnson", "Cardiology"},
	{"dr_brown", "Dr. Brown", "Dermatology"},
}

var specialties = []string{
	"General Medicine",
	"Cardiology",
	"Dermatology",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	extra := flag.Int("extra", 0, "number of additional fake doctors to seed")
	days := flag.Int("days", 7, "days of slot availability to generate per doctor")
	flag.Parse()

	logger := logging.Default()
	logger.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(ctx, pool, *extra); err != nil {
		logger.Error("seed doctors", "error", err)
		os.Exit(1)
	}
	count, err := seedSlots(ctx, pool, *days)
	if err != nil {
		logger.Error("seed slots", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete", "slots", count)
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, extra int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, d := range defaultDoctors {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, d.ID, d.Name, d.Specialty)
		if err != nil {
			return err
		}
	}

	for i := 0; i < extra; i++ {
		last := gofakeit.LastName()
		id := fmt.Sprintf("dr_%s_%d", strings.ToLower(last), gofakeit.Number(100, 999))
		name := "Dr. " + last
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, id, name, spec)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// seedSlots generates weekday morning/afternoon openings for every doctor.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, days int) (int, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM doctors`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var doctorIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		doctorIDs = append(doctorIDs, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	hours := []int{9, 10, 11, 13, 14, 15}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	count := 0
	day := time.Now().UTC().Truncate(24 * time.Hour)
	for d := 0; d < days; d++ {
		day = day.Add(24 * time.Hour)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		for _, doctorID := range doctorIDs {
			for _, h := range hours {
				// Leave some gaps so availability looks real.
				if gofakeit.Number(0, 2) == 0 {
					continue
				}
				start := day.Add(time.Duration(h) * time.Hour)
				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, doctor_id, start_time, status)
					VALUES ($1, $2, $3, 'open')
					ON CONFLICT (doctor_id, start_time) DO NOTHING
				`, uuid.New(), doctorID, start)
				if err != nil {
					return 0, err
				}
				count++
			}
		}
	}

	return count, tx.Commit(ctx)
}
