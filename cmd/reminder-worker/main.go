package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/config"
	"github.com/guardportal/booking/internal/db"
	"github.com/guardportal/booking/internal/events"
	"github.com/guardportal/booking/internal/logging"
	"github.com/guardportal/booking/internal/notification"
	"github.com/guardportal/booking/internal/reminder"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.Env).With("service", "reminder-worker", "env", cfg.Env)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info(rootCtx, "connected to postgres")

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.Enabled {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatalf("rabbitmq connection error: %v", err)
		}
		publisher = amqpPub
	}
	defer publisher.Close()

	apptRepo := appointment.NewPgRepository(pgPool)

	// only the event log is used here, bookings never run in the worker
	recorder := appointment.NewService(appointment.Dependencies{
		Repo:      apptRepo,
		Publisher: publisher,
		Logger:    logger,
	}, cfg)

	mailer := notification.NewMailer(
		notification.NewSMTPSender(notification.SMTPOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}),
		notification.NewPgLogRepository(pgPool),
		logger,
		cfg.BaseURL,
	)

	worker := reminder.NewWorker(
		reminder.NewPgRepository(pgPool),
		apptRepo,
		mailer,
		recorder,
		logger,
		reminder.WorkerOptions{
			MaxAttempts: cfg.ReminderMaxTry,
			RetryDelay:  cfg.ReminderRetry,
			JobTimeout:  30 * time.Second,
			Location:    cfg.Location(),
		},
	)

	logger.Info(rootCtx, "reminder worker running", "interval", cfg.WorkerInterval.String())

	// Run once at startup
	runOnce(rootCtx, worker, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info(context.Background(), "shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, worker, logger)
		}
	}
}

// runOnce is bounded per job inside the worker; ctx only stops the batch
// between jobs.
func runOnce(ctx context.Context, worker *reminder.Worker, logger logging.Logger) {
	start := time.Now()
	res, err := worker.RunOnce(ctx)
	if err != nil {
		logger.Error(ctx, "reminder run error", "error", err)
		return
	}
	if res.Claimed == 0 {
		logger.Debug(ctx, "reminder run complete, nothing due", "duration_ms", time.Since(start).Milliseconds())
		return
	}
	logger.Info(ctx, "reminder run complete",
		"claimed", res.Claimed,
		"sent", res.Sent,
		"skipped", res.Skipped,
		"retried", res.Retried,
		"failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
