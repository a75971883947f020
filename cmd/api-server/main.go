package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/guardportal/booking/internal/agreement"
	"github.com/guardportal/booking/internal/api"
	"github.com/guardportal/booking/internal/appointment"
	"github.com/guardportal/booking/internal/auth"
	"github.com/guardportal/booking/internal/config"
	"github.com/guardportal/booking/internal/db"
	"github.com/guardportal/booking/internal/events"
	"github.com/guardportal/booking/internal/logging"
	"github.com/guardportal/booking/internal/notification"
	"github.com/guardportal/booking/internal/payment"
	redisclient "github.com/guardportal/booking/internal/redis"
	"github.com/guardportal/booking/internal/reminder"
	"github.com/guardportal/booking/internal/user"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.Env).With("service", "api-server", "env", cfg.Env)

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

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		log.Fatalf("migration error: %v", err)
	}
	logger.Info(rootCtx, "connected to postgres, migrations applied")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn(rootCtx, "error closing redis", "error", err)
		}
	}()
	logger.Info(rootCtx, "connected to redis", "addr", cfg.RedisAddr)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.Enabled {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatalf("rabbitmq connection error: %v", err)
		}
		publisher = amqpPub
		logger.Info(rootCtx, "publishing appointment events", "exchange", cfg.RabbitMQ.Exchange)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn(rootCtx, "error closing event publisher", "error", err)
		}
	}()

	var archive agreement.Archiver
	if cfg.S3.Bucket != "" {
		s3Archive, err := agreement.NewS3Archive(rootCtx, agreement.S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			log.Fatalf("s3 archive error: %v", err)
		}
		archive = s3Archive
		logger.Info(rootCtx, "archiving agreements", "bucket", cfg.S3.Bucket)
	}

	if cfg.DocuSign.ConnectHMACKey == "" {
		logger.Warn(rootCtx, "DOCUSIGN_CONNECT_HMAC_KEY not set, webhook signatures are not verified")
	}

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

	appointments := appointment.NewService(appointment.Dependencies{
		Repo:       appointment.NewPgRepository(pgPool),
		Locker:     redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		Payments:   payment.NewSquareClient(cfg.SquareBaseURL(), cfg.Square.AccessToken, cfg.Square.LocationID, logger),
		Agreements: agreement.NewDocuSignClient(cfg.DocuSign.BaseURL, cfg.DocuSign.AccountID, cfg.DocuSign.AccessToken, archive, logger),
		Notifier:   mailer,
		Reminders:  reminder.NewScheduler(reminder.NewPgRepository(pgPool), logger),
		Publisher:  publisher,
		Logger:     logger,
	}, cfg)

	users := user.NewService(user.NewPgRepository(pgPool), mailer, logger, cfg.Auth.AdminEmails, cfg.Auth.UserCacheTTL)

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Users:        users,
		Issuer:       auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Health:       api.NewHealthHandler(pgPool, api.RedisPinger(rdb), cfg.Env, version),
		Logger:       logger,
		CORSOrigins:  cfg.CORSOrigins,
		CookieName:   cfg.Auth.CookieName,
		CookieSecure: cfg.Auth.CookieSecure,
		WebhookKey:   cfg.DocuSign.ConnectHMACKey,
		TrustProxy:   cfg.TrustProxy,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// booking waits on Square, DocuSign and SMTP in sequence
		WriteTimeout: 90 * time.Second,
	}

	go func() {
		logger.Info(rootCtx, "http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info(context.Background(), "shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "graceful shutdown failed", "error", err)
	}
}
