package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/auth"
	"github.com/guardportal/booking/internal/db"
	"github.com/guardportal/booking/internal/user"
)

// demoPassword is shared by every seeded account.
const demoPassword = "guardportal-demo"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	users := getInt("SEED_USERS", 50)
	perUser := getInt("SEED_APPOINTMENTS_PER_USER", 3)
	price := int64(getInt("BOOKING_PRICE_CENTS", 22500))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	s := &seeder{
		users:        user.NewPgRepository(pool),
		appointments: appointment.NewPgRepository(pool),
		passwordHash: hash,
		priceCents:   price,
	}

	if _, err := s.seedUser(context.Background(), "admin@guardportal.com", true); err != nil {
		log.Printf("admin user not created: %v", err)
	}

	if err := s.seedCustomers(context.Background(), users, perUser); err != nil {
		log.Fatalf("seed customers: %v", err)
	}

	log.Printf("seed complete, every account uses password %q", demoPassword)
}

type seeder struct {
	users        *user.PgRepository
	appointments *appointment.PgRepository
	passwordHash string
	priceCents   int64
}

func (s *seeder) seedUser(ctx context.Context, email string, admin bool) (*user.User, error) {
	return s.users.CreateUser(ctx, user.NewUser{
		Email:        email,
		FirstName:    gofakeit.FirstName(),
		LastName:     gofakeit.LastName(),
		IsAdmin:      admin,
		PasswordHash: s.passwordHash,
	})
}

func (s *seeder) seedCustomers(ctx context.Context, count, perUser int) error {
	log.Printf("seeding %d customers with %d appointments each", count, perUser)

	created := 0
	for i := 0; i < count; i++ {
		u, err := s.seedUser(ctx, fmt.Sprintf("%d.%s", i, gofakeit.Email()), false)
		if err != nil {
			return err
		}

		for j := 0; j < perUser; j++ {
			if err := s.seedAppointment(ctx, u); err != nil {
				return err
			}
			created++
		}

		if (i+1)%10 == 0 {
			log.Printf("customers seeded: %d/%d", i+1, count)
		}
	}

	log.Printf("appointments seeded: %d", created)
	return nil
}

// seedAppointment books one visit and walks it to a random point of its
// lifecycle.
func (s *seeder) seedAppointment(ctx context.Context, u *user.User) error {
	window := appointment.TimeWindows[gofakeit.Number(0, len(appointment.TimeWindows)-1)]
	date := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, gofakeit.Number(-30, 60))

	appt, err := s.appointments.CreateAppointment(ctx, appointment.NewAppointment{
		UserID:             u.ID,
		FullName:           u.FirstName + " " + u.LastName,
		Email:              u.Email,
		Phone:              gofakeit.Phone(),
		Address:            fmt.Sprintf("%s, %s, %s %s", gofakeit.Street(), gofakeit.City(), gofakeit.StateAbr(), gofakeit.Zip()),
		PreferredDate:      date,
		PreferredTime:      &window,
		IsReady:            gofakeit.Bool(),
		PaymentAmountCents: s.priceCents,
	})
	if err != nil {
		return err
	}

	var upd appointment.Update
	switch roll := gofakeit.Number(0, 9); {
	case roll == 0:
		failed := appointment.PaymentFailed
		upd.PaymentStatus = &failed
	case roll == 1:
		cancelled := appointment.StatusCancelled
		upd.Status = &cancelled
	default:
		paid := appointment.PaymentPaid
		paymentID := "seed_" + uuid.NewString()
		status := appointment.StatusConfirmed
		if date.Before(time.Now()) {
			status = appointment.StatusCompleted
		}
		agreementStatus := []appointment.AgreementStatus{
			appointment.AgreementSent,
			appointment.AgreementSigned,
			appointment.AgreementSigned,
			appointment.AgreementDeclined,
		}[gofakeit.Number(0, 3)]
		envelopeID := uuid.NewString()

		upd.PaymentStatus = &paid
		upd.PaymentID = &paymentID
		upd.Status = &status
		upd.DocusignStatus = &agreementStatus
		upd.DocusignEnvelopeID = &envelopeID
	}

	_, err = s.appointments.UpdateAppointment(ctx, appt.ID, upd)
	return err
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
