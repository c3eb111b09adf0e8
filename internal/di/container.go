package di

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ticketrush/reservation-core/internal/config"
	"github.com/ticketrush/reservation-core/internal/database"
	"github.com/ticketrush/reservation-core/internal/handler"
	"github.com/ticketrush/reservation-core/internal/kafka"
	"github.com/ticketrush/reservation-core/internal/lockstore"
	"github.com/ticketrush/reservation-core/internal/logger"
	"github.com/ticketrush/reservation-core/internal/middleware"
	"github.com/ticketrush/reservation-core/internal/redis"
	"github.com/ticketrush/reservation-core/internal/repository"
	"github.com/ticketrush/reservation-core/internal/saga"
	"github.com/ticketrush/reservation-core/internal/service"
	"github.com/ticketrush/reservation-core/internal/telemetry"
	"github.com/ticketrush/reservation-core/internal/worker"
)

// Container wires the application's dependencies
type Container struct {
	Config    *config.Config
	Telemetry *telemetry.Telemetry

	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer

	SeatRepo        repository.SeatRepository
	ReservationRepo repository.ReservationRepository
	PaymentRepo     repository.PaymentRepository

	LockStore lockstore.SeatLockStore

	SeatLocks    service.SeatLockService
	Reservations service.ReservationService
	Payments     service.PaymentService
	Tickets      service.TicketService
	Notifier     service.Notifier

	SagaStore    saga.Store
	Orchestrator *saga.Orchestrator
	BookingSteps []saga.Step

	Reconciler *worker.ExpiryReconciler

	ReservationHandler *handler.ReservationHandler
	SeatLockHandler    *handler.SeatLockHandler
	BookingHandler     *handler.BookingHandler
	SagaHandler        *handler.SagaHandler
	HealthHandler      *handler.HealthHandler
}

// NewContainer builds every dependency from configuration
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	tel, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	c.Telemetry = tel

	c.DB, err = database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	c.Redis, err = redis.NewClient(ctx, &redis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	if cfg.Kafka.Enabled {
		c.Producer, err = kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
			LingerMs:      10,
			MaxBuffered:   10000,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
	}

	pool := c.DB.Pool()
	c.SeatRepo = repository.NewPostgresSeatRepository(pool)
	c.ReservationRepo = repository.NewPostgresReservationRepository(pool)
	c.PaymentRepo = repository.NewPostgresPaymentRepository(pool)

	c.LockStore = lockstore.NewRedisLockStore(c.Redis)

	c.SeatLocks = service.NewSeatLockService(c.LockStore, c.SeatRepo, &service.SeatLockServiceConfig{
		LockTTL: cfg.Reservation.LockTTL,
	})
	c.Reservations = service.NewReservationService(c.ReservationRepo, c.SeatLocks, &service.ReservationServiceConfig{
		ReservationTTL: cfg.Reservation.ReservationTTL,
	})
	c.Payments = service.NewPaymentService(c.PaymentRepo)
	c.Tickets = service.NewTicketService(c.Producer, &service.TicketServiceConfig{
		BaseURL: cfg.Ticket.ServiceURL,
		Timeout: cfg.Ticket.Timeout,
	})
	if c.Producer != nil {
		c.Notifier = service.NewKafkaNotifier(c.Producer)
	} else {
		c.Notifier = service.NewNoOpNotifier()
	}

	c.SagaStore = saga.NewPostgresStore(pool)
	c.Orchestrator = saga.NewOrchestrator(&saga.OrchestratorConfig{
		Store:       c.SagaStore,
		BackoffBase: cfg.Saga.BackoffBase,
		BackoffMax:  cfg.Saga.BackoffMax,
		StepTimeout: cfg.Saga.StepTimeout,
	})
	c.BookingSteps = saga.NewPaymentBookingSteps(saga.PaymentBookingDeps{
		Payments:     c.Payments,
		Reservations: c.Reservations,
		SeatLocks:    c.SeatLocks,
		Tickets:      c.Tickets,
		Notifier:     c.Notifier,
	})

	c.Reconciler = worker.NewExpiryReconciler(c.SeatRepo, c.Reservations, c.LockStore, &worker.ExpiryReconcilerConfig{
		Interval:  cfg.Reconciler.Interval,
		BatchSize: cfg.Reconciler.BatchSize,
	})

	c.ReservationHandler = handler.NewReservationHandler(c.Reservations)
	c.SeatLockHandler = handler.NewSeatLockHandler(c.SeatLocks)
	c.BookingHandler = handler.NewBookingHandler(c.Reservations, c.Orchestrator, c.BookingSteps, "USD")
	c.SagaHandler = handler.NewSagaHandler(c.Orchestrator)
	c.HealthHandler = handler.NewHealthHandler(map[string]handler.HealthChecker{
		"postgres": c.DB,
		"redis":    c.Redis,
	})

	return c, nil
}

// Router builds the HTTP router with middleware and routes
func (c *Container) Router() *gin.Engine {
	if c.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware(c.Config.OTel.ServiceName))

	r.GET("/health", c.HealthHandler.Liveness)
	r.GET("/health/ready", c.HealthHandler.Readiness)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Idempotency(&middleware.IdempotencyConfig{Redis: c.Redis}))
	{
		v1.POST("/seats/acquire", c.SeatLockHandler.AcquireSeats)
		v1.POST("/seats/release", c.SeatLockHandler.ReleaseSeats)
		v1.POST("/seats/extend", c.SeatLockHandler.ExtendSeats)

		v1.POST("/reservations", c.ReservationHandler.Create)
		v1.GET("/reservations/:id", c.ReservationHandler.Get)
		v1.POST("/reservations/:id/cancel", c.ReservationHandler.Cancel)

		v1.POST("/bookings/confirm", c.BookingHandler.Confirm)

		v1.GET("/sagas/:id", c.SagaHandler.Get)
	}

	return r
}

// Close releases every resource the container owns
func (c *Container) Close() {
	log := logger.Get()

	if c.Producer != nil {
		c.Producer.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("closing redis client failed")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Telemetry != nil {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed")
		}
	}
}
