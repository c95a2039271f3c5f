package routes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/khata-app/khata_backend/internal/business"
	"github.com/khata-app/khata_backend/internal/config"
	"github.com/khata-app/khata_backend/internal/customer"
	"github.com/khata-app/khata_backend/internal/fault"
	"github.com/khata-app/khata_backend/internal/identity"
	"github.com/khata-app/khata_backend/internal/ledger"
	"github.com/khata-app/khata_backend/internal/linker"
	"github.com/khata-app/khata_backend/internal/middleware"
	"github.com/khata-app/khata_backend/internal/notification"
	"github.com/khata-app/khata_backend/internal/session"
	"github.com/khata-app/khata_backend/internal/upload"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

const (
	idempotencyTTL = 24 * time.Hour
	loginPerMinute = 5
)

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Cache == nil {
		return fmt.Errorf("redis is required for sessions")
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		businessRepo business.Repository
		customerRepo customer.Repository
		identityRepo identity.Repository
		store        ledger.Store
	)
	if d.DB != nil {
		businessRepo = business.NewPostgresRepository(d.DB)
		customerRepo = customer.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
		store = ledger.NewPostgresStore(d.DB)
	} else {
		d.Logger.Warn("no database configured, running on in-memory stores")
		businessRepo = business.NewMemoryRepository()
		customerRepo = customer.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository(businessRepo, customerRepo)
		store = ledger.NewMemoryStore()
	}

	businesses := business.NewService(businessRepo)
	customers := customer.NewService(customerRepo)
	identities := identity.NewService(identityRepo, businesses, customers, d.Logger)
	book := ledger.NewService(store, identityRepo, d.Logger)
	links := linker.NewService(businesses, customers, identityRepo, book, d.Logger)
	sessions := session.NewStore(d.Cache, d.Cfg.SessionTTL)
	notifier := notification.NewLoggerNotifier(d.Logger)

	receipts, err := upload.NewSaver(d.Cfg.UploadDir, d.Cfg.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}

	authH := &authHandler{identities: identities, sessions: sessions}
	RegisterAuthRoutes(app, authH, middleware.LoginRateLimit(d.Cache, loginPerMinute))

	requireSession := middleware.RequireSession(sessions)
	dedup := middleware.Idempotency(d.Cache, idempotencyTTL, d.Logger)

	bh := &businessHandler{
		identities: identities,
		businesses: businesses,
		customers:  customers,
		book:       book,
		links:      links,
		receipts:   receipts,
		notifier:   notifier,
		logger:     d.Logger,
	}
	bg := app.Group("/business", requireSession, middleware.RequireBusiness())
	RegisterBusinessRoutes(bg, bh, dedup)

	ch := &customerHandler{
		identities: identities,
		businesses: businesses,
		book:       book,
		links:      links,
		logger:     d.Logger,
	}
	cg := app.Group("/customer", requireSession, middleware.RequireCustomer())
	RegisterCustomerRoutes(cg, ch, dedup)
	app.Get("/scan_qr", requireSession, middleware.RequireCustomer(), ch.ScanQR)

	return nil
}

// httpError translates a service error into fiber's error type so the default
// error handler renders the right status code.
func httpError(err error) error {
	return fiber.NewError(fault.HTTPStatus(err), err.Error())
}
