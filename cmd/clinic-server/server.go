package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/account"
	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/dashboard"
	"github.com/clinic/clinic/internal/domain/doctor"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/sandbox"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/internal/platform/uploads"
	"github.com/clinic/clinic/internal/platform/validation"
	"github.com/clinic/clinic/internal/platform/webhook"
	"github.com/clinic/clinic/internal/platform/websocket"
)

const tokenIssuer = "clinic-server"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// dependencies holds the outbound integrations: tracing, the event bus and
// mail.
type dependencies struct {
	telemetry *telemetry.Provider
	hub       *websocket.Hub
	publisher events.Publisher
	emitter   *events.Emitter
	notifier  *notification.Notifier
	oauth     auth.OAuthProvider
}

func newDependencies(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*dependencies, error) {
	tel, err := telemetry.NewProvider(ctx, cfg.Telemetry(version))
	if err != nil {
		return nil, fmt.Errorf("configure telemetry: %w", err)
	}
	if cfg.OTLPEndpoint != "" {
		logger.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("exporting traces")
	}
	d := &dependencies{telemetry: tel, hub: websocket.NewHub(logger)}

	fan := events.Fanout{d.hub}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect event bus: %w", err)
		}
		fan = append(fan, pub)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing domain events")
	}
	if wh := cfg.Webhooks(); wh.Enabled() {
		pub, err := webhook.NewPublisher(wh, nil, logger)
		if err != nil {
			_ = fan.Close()
			d.Close()
			return nil, fmt.Errorf("configure webhooks: %w", err)
		}
		fan = append(fan, pub)
		logger.Info().Int("endpoints", len(wh.URLs)).Strs("events", wh.Events).Msg("delivering webhooks")
	}
	d.publisher = fan
	d.emitter = events.NewEmitter(d.publisher, logger)

	var sender notification.EmailSender = notification.LogSender{Logger: logger}
	if ses := cfg.SES(); ses.Enabled() {
		s, err := notification.NewSESSender(ctx, ses)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("configure ses: %w", err)
		}
		sender = s
		logger.Info().Str("region", ses.Region).Msg("sending email through ses")
	}
	d.notifier = notification.NewNotifier(sender, logger)

	if g := cfg.Google(); g.Enabled() {
		p, err := auth.NewGoogleProvider(ctx, g)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("configure google sign-in: %w", err)
		}
		d.oauth = p
	}
	return d, nil
}

func (d *dependencies) reminderWorker(src notification.ReminderSource, interval time.Duration, logger zerolog.Logger) *notification.ReminderWorker {
	return notification.NewReminderWorker(src, d.notifier, interval, logger)
}

func (d *dependencies) Close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	} else {
		_ = d.hub.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.telemetry.Shutdown(ctx)
}

// services is the wired domain layer shared by the server and the seeder.
type services struct {
	tokens       *auth.TokenService
	accounts     *account.Service
	patients     *patient.Service
	doctors      *doctor.Service
	appointments *appointment.Service
	invoices     *billing.Service
	dashboard    *dashboard.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, ev appointment.EventEmitter, notifier appointment.Notifier, logger zerolog.Logger) *services {
	s := &services{}
	s.tokens = auth.NewTokenService([]byte(cfg.JWTSecret), cfg.JWTExpiresIn, tokenIssuer)
	s.accounts = account.NewService(account.NewUserRepoPG(pool), s.tokens)
	s.patients = patient.NewService(patient.NewRepoPG(pool))
	s.doctors = doctor.NewService(doctor.NewRepoPG(pool), s.accounts)

	doctors := doctorDirectory{svc: s.doctors}
	patients := patientDirectory{svc: s.patients}

	var billingEvents billing.EventEmitter
	if ev != nil {
		billingEvents = ev
	}
	s.appointments = appointment.NewService(appointment.NewRepoPG(pool), doctors, patients, ev, notifier, logger)
	s.invoices = billing.NewService(billing.NewRepoPG(pool), db.NewTransactor(pool), doctors, billingEvents)
	s.dashboard = dashboard.NewService(dashboard.NewRepoPG(pool), doctors, patients)
	return s
}

func (s *services) seedTargets() sandbox.Services {
	return sandbox.Services{
		Accounts:     s.accounts,
		Doctors:      s.doctors,
		Patients:     s.patients,
		Appointments: s.appointments,
		Invoices:     s.invoices,
	}
}

// doctorDirectory resolves a doctor login to its profile id.
type doctorDirectory struct{ svc *doctor.Service }

func (d doctorDirectory) DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	doc, err := d.svc.GetByUserID(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return doc.ID, nil
}

// patientDirectory resolves a patient login to its record id.
type patientDirectory struct{ svc *patient.Service }

func (p patientDirectory) PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	pat, err := p.svc.GetByUserID(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return pat.ID, nil
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, svc *services, deps *dependencies, logger zerolog.Logger) (*echo.Echo, error) {
	store, err := uploads.NewDiskStore(cfg.UploadPath)
	if err != nil {
		return nil, fmt.Errorf("prepare upload directory: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)
	e.Validator = validation.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(deps.telemetry.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimit("1M", cfg.MaxFileSize))
	e.Use(auth.Authenticate(auth.MiddlewareConfig{
		Tokens:  svc.tokens,
		Users:   svc.accounts,
		Skipper: auth.AuthSkipper,
	}))
	e.Use(middleware.Audit(logger, middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		deps.emitter.Emit(context.Background(), events.RecordAccessed, entry)
		return nil
	})))

	e.GET("/health", db.LivenessHandler())
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", deps.telemetry.Handler())
	deps.telemetry.RegisterGauge("event_stream_clients", "Connected event stream clients.", func() int64 {
		return int64(deps.hub.ClientCount())
	})
	if pool != nil {
		deps.telemetry.RegisterGauge("db_pool_acquired_conns", "Database connections in use.", func() int64 {
			return int64(db.GetPoolStats(pool).AcquiredConns)
		})
		deps.telemetry.RegisterGauge("db_pool_idle_conns", "Idle database connections.", func() int64 {
			return int64(db.GetPoolStats(pool).IdleConns)
		})
	}
	e.Static(uploads.PublicPrefix, cfg.UploadPath)

	api := e.Group("/api/v1")

	account.NewHandler(svc.accounts, account.HandlerConfig{
		OAuth:        deps.oauth,
		FrontendURL:  cfg.FrontendURL,
		CookieSecure: cfg.AuthCookieSecure,
		TokenTTL:     svc.tokens.TTL(),
		RateLimit: middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}),
		Logger: logger,
	}).RegisterRoutes(api)
	patient.NewHandler(svc.patients).RegisterRoutes(api)
	doctor.NewHandler(svc.doctors).RegisterRoutes(api)
	appointment.NewHandler(svc.appointments).RegisterRoutes(api)
	billing.NewHandler(svc.invoices).RegisterRoutes(api)
	dashboard.NewHandler(svc.dashboard).RegisterRoutes(api)
	uploads.NewHandler(store, cfg.MaxFileBytes(), logger).RegisterRoutes(api)
	websocket.NewHandler(deps.hub, cfg.CORSOrigins, logger).RegisterRoutes(api)

	return e, nil
}
