package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flyashdesk/dashboard/internal/accounting"
	"github.com/flyashdesk/dashboard/internal/billing"
	"github.com/flyashdesk/dashboard/internal/config"
	"github.com/flyashdesk/dashboard/internal/db"
	"github.com/flyashdesk/dashboard/internal/http/api/dashboard"
	"github.com/flyashdesk/dashboard/internal/logging"
	"github.com/flyashdesk/dashboard/internal/models"
	"github.com/flyashdesk/dashboard/internal/permissions"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/flyashdesk/dashboard/internal/settings"
	"github.com/flyashdesk/dashboard/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// settingsRefreshInterval keeps the settings snapshot in step with writes made
// by other instances.
const settingsRefreshInterval = time.Minute

// generatedPasswordLength is used when no superadmin password is configured.
const generatedPasswordLength = 20

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	c, err := config.Load(config.ResolveConfigPath(cfg.ConfigPath))
	if err != nil {
		return err
	}
	conn, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer closeDatabase(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	log.Info("migrations applied")
	return nil
}

// RunServer boots the dashboard API and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(c.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	conn, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer closeDatabase(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		return fmt.Errorf("load settings: %w", errRefresh)
	}
	if errBootstrap := bootstrapSuperAdmin(ctx, conn, c.Bootstrap); errBootstrap != nil {
		return errBootstrap
	}

	fallbackRate, err := c.Billing.Rate()
	if err != nil {
		return err
	}
	service := accounting.NewService(store.NewGormStore(conn), billing.NewResolver(fallbackRate))

	revocations, closeRevocations := newRevocationStore(ctx, c.Redis, conn)
	defer closeRevocations()
	security.NewRevocationCleaner(conn).Start(ctx)
	go syncSettings(ctx, conn)

	if strings.EqualFold(c.Logging.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := dashboard.NewEngine(dashboard.Deps{
		DB:          conn,
		Service:     service,
		JWT:         c.JWT,
		CORS:        c.CORS,
		Revocations: revocations,
		PendingTOTP: security.NewPendingSecrets(),
		Passkeys:    security.NewPasskeySessions(),
	})

	srv := &http.Server{
		Addr:         c.Server.Addr(),
		Handler:      engine,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("dashboard listening on %s (config=%s, rate=%s)", srv.Addr, configPath, service.RatePerTon())
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case errServe, ok := <-errCh:
		if ok {
			return errServe
		}
		return nil
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Server.ShutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

func openDatabase(ctx context.Context, c *config.Config) (*gorm.DB, error) {
	return db.OpenWithRetry(ctx, db.Options{
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		TimeZone:        c.Database.TimeZone,
		SlowQuery:       200 * time.Millisecond,
	}, c.Database.ConnectTimeout)
}

func closeDatabase(conn *gorm.DB) {
	if conn == nil {
		return
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		_ = sqlDB.Close()
	}
}

// newRevocationStore prefers redis when configured and reachable, falling
// back to the revoked_tokens table.
func newRevocationStore(ctx context.Context, cfg config.RedisConfig, conn *gorm.DB) (security.RevocationStore, func()) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return security.NewDBRevocationStore(conn), func() {}
	}
	client, errClient := security.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if errClient != nil {
		log.WithError(errClient).Warnf("redis %s unavailable, revocations stored in database", cfg.Addr)
		return security.NewDBRevocationStore(conn), func() {}
	}
	log.Infof("revocations stored in redis %s", cfg.Addr)
	return security.NewRedisRevocationStore(client), func() { _ = client.Close() }
}

// bootstrapSuperAdmin creates the configured superadmin when none exists.
func bootstrapSuperAdmin(ctx context.Context, conn *gorm.DB, cfg config.BootstrapConfig) error {
	var count int64
	if errCount := conn.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", permissions.RoleSuperAdmin.String()).
		Count(&count).Error; errCount != nil {
		return fmt.Errorf("count superadmins: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(cfg.SuperAdminEmail))
	if email == "" {
		log.Warn("no superadmin exists and bootstrap.superadmin_email is not set")
		return nil
	}

	password := cfg.SuperAdminPassword
	generated := password == ""
	if generated {
		var errGenerate error
		password, errGenerate = security.GenerateRandomString(generatedPasswordLength)
		if errGenerate != nil {
			return fmt.Errorf("generate superadmin password: %w", errGenerate)
		}
	} else if errWeak := security.ValidatePassword(password); errWeak != nil {
		return fmt.Errorf("bootstrap.superadmin_password: %w", errWeak)
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash superadmin password: %w", errHash)
	}

	user := models.User{
		Name:     cfg.SuperAdminName,
		Email:    email,
		Password: hash,
		Role:     permissions.RoleSuperAdmin.String(),
		IsActive: true,
	}
	if errCreate := conn.WithContext(ctx).Create(&user).Error; errCreate != nil {
		return fmt.Errorf("create superadmin: %w", errCreate)
	}
	entry := log.WithFields(log.Fields{"user_id": user.ID, "email": email})
	if generated {
		entry.Warnf("superadmin created with generated password %s; change it after first login", password)
		return nil
	}
	entry.Info("superadmin created")
	return nil
}

func syncSettings(ctx context.Context, conn *gorm.DB) {
	ticker := time.NewTicker(settingsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil && ctx.Err() == nil {
				log.WithError(errRefresh).Warn("refresh settings failed")
			}
		}
	}
}
