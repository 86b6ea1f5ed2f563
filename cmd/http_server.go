package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/approval"
	"github.com/approvalflow/approval-gateway/internal/audit"
	auditpostgres "github.com/approvalflow/approval-gateway/internal/audit/postgres"
	"github.com/approvalflow/approval-gateway/internal/auth"
	"github.com/approvalflow/approval-gateway/internal/core/events"
	"github.com/approvalflow/approval-gateway/internal/obs"
	"github.com/approvalflow/approval-gateway/internal/profile"
	"github.com/approvalflow/approval-gateway/internal/refdata"
	"github.com/approvalflow/approval-gateway/internal/session"
	sessionpostgres "github.com/approvalflow/approval-gateway/internal/session/postgres"
	"github.com/approvalflow/approval-gateway/internal/transport"
	"github.com/approvalflow/approval-gateway/internal/transport/middleware"
	"github.com/approvalflow/approval-gateway/internal/transport/rest"
	"github.com/approvalflow/approval-gateway/internal/transport/swagger"
	"github.com/approvalflow/approval-gateway/internal/upstream"
	"github.com/approvalflow/approval-gateway/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the session gateway and begin serving browser requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Router  *chi.Mux
	Monitor *session.Monitor
	Sweeper *session.Sweeper
	Logger  *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	deps.Monitor.Start()
	if err := deps.Sweeper.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start session sweeper: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.Monitor.Stop()
		deps.Sweeper.Stop()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	if config.Observability.Metrics.Enabled {
		obs.Init()
	}

	if err := swagger.ValidateSpec("./api/openapi.yml"); err != nil {
		return nil, fmt.Errorf("openapi spec check failed: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over database: %w", err)
	}

	box, err := session.NewBox(config.Security.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to build session box: %w", err)
	}
	sessionStore := sessionpostgres.NewSessionStore(gormDB, box)

	bus := events.NewEventBus(lg)

	auditRepo := auditpostgres.NewAuditRepository(gormDB)
	auditService := audit.NewService(auditRepo, lg)
	auditService.Register(bus)

	api := upstream.NewClient(config.Upstream, lg)

	authService := auth.NewService(api, sessionStore, bus, config.Session, lg)
	approvalService := approval.NewService(api, config.Cache, bus, lg)
	refdataService := refdata.NewService(api, config.Cache, lg)
	profileService := profile.NewService(api, refdataService, lg)

	hooks := session.Hooks{
		ForceLogout: func(ctx context.Context, sessionID, reason string) {
			if err := authService.ForceLogout(ctx, sessionID, reason); err != nil {
				lg.Error("forced logout failed", "session_id", sessionID, "error", err)
			}
		},
		Refresh: func(ctx context.Context, sessionID string) error {
			_, err := authService.Refresh(ctx, sessionID)
			return err
		},
	}
	monitor := session.NewMonitor(sessionStore, hooks, config.Session, lg)

	sweeper := session.NewSweeper(sessionStore, hooks, config.Session.SweepSchedule, config.Session.IdleCutoff, lg)

	base := transport.NewBaseHandler(lg)
	cookies := auth.NewCookieManager(config.Security)
	handlers := rest.Handlers{
		Auth:     auth.NewHandler(base, authService, cookies),
		Approval: approval.NewHandler(base, approvalService),
		RefData:  refdata.NewHandler(base, refdataService),
		Profile:  profile.NewHandler(base, profileService),
		Audit:    audit.NewHandler(base, auditService),
		Pages:    rest.NewPagesHandler(lg),
	}

	loginLimiter := middleware.NewLoginRateLimiter(config.Security.LoginRatePerIP, config.Security.LoginBurst)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, config, db.DB, api, handlers, loginLimiter, lg)

	return &Dependencies{
		Config:  config,
		DB:      db,
		Router:  router,
		Monitor: monitor,
		Sweeper: sweeper,
		Logger:  lg,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
