// Package app wires the identity service: configuration, storage, services
// and lifecycle.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgecoder/identity/internal/identity/service"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/internal/identity/store/drivers/sqlite"
	"github.com/edgecoder/identity/pkg/nodetoken"
	"github.com/edgecoder/identity/pkg/ratex"
	"github.com/edgecoder/identity/pkg/slogx"
)

// BuildVersion is set at build time via ldflags.
var BuildVersion = "dev"

// Application holds the wired identity service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	Identity     *service.IdentityService
	Sessions     *service.SessionService
	OAuth        *service.OAuthService
	Enrollment   *service.EnrollmentService
	Wallets      *service.WalletService
	Passkeys     *service.PasskeyService
	MFA          *service.MFAService
	Housekeeping *service.HousekeepingService
}

// New initializes storage, applies migrations and wires every service.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	db, err := sqlite.NewStore(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	app.db = db

	app.initServices()
	return app, nil
}

func (app *Application) initServices() {
	loginLimiter := ratex.New(ratex.Strict)

	app.Identity = &service.IdentityService{
		Store:           app.db,
		Limiter:         loginLimiter,
		VerificationTTL: app.cfg.VerificationTTL,
	}
	app.Sessions = &service.SessionService{
		Store: app.db,
		TTL:   app.cfg.SessionTTL,
	}
	app.OAuth = &service.OAuthService{
		Store:    app.db,
		StateTTL: app.cfg.OAuthStateTTL,
	}
	app.Enrollment = &service.EnrollmentService{
		Store: app.db,
		Minter: &nodetoken.Minter{
			Key:    []byte(app.cfg.NodeTokenKey),
			Issuer: app.cfg.NodeTokenIssuer,
			TTL:    app.cfg.NodeTokenTTL,
		},
	}
	app.Wallets = &service.WalletService{
		Store:  app.db,
		Pepper: app.cfg.WalletPepper,
	}
	app.Passkeys = &service.PasskeyService{
		Store:        app.db,
		ChallengeTTL: app.cfg.PasskeyChallengeTTL,
	}
	app.MFA = &service.MFAService{
		Store:   app.db,
		Issuer:  app.cfg.MFAIssuer,
		Limiter: ratex.New(ratex.Strict),
	}
	app.Housekeeping = service.NewHousekeepingService(
		app.db, app.logger, app.cfg.HousekeepingInterval)
}

// Run starts background work and blocks until a shutdown signal arrives.
func (app *Application) Run() error {
	app.Housekeeping.Start()
	app.logger.Info("identity service started", "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig.String())

	return app.Shutdown()
}

// Shutdown stops background work and closes storage.
func (app *Application) Shutdown() error {
	app.Housekeeping.Stop()

	if err := app.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	app.logger.Info("identity service stopped")
	return nil
}
