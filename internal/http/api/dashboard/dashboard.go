package dashboard

import (
	"github.com/flyashdesk/dashboard/internal/accounting"
	"github.com/flyashdesk/dashboard/internal/config"
	"github.com/flyashdesk/dashboard/internal/http/api/dashboard/handlers"
	"github.com/flyashdesk/dashboard/internal/logging"
	"github.com/flyashdesk/dashboard/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries everything the dashboard routes need.
type Deps struct {
	DB          *gorm.DB
	Service     *accounting.Service
	JWT         config.JWTConfig
	CORS        config.CORSConfig
	Revocations security.RevocationStore
	// PendingTOTP holds unconfirmed enrollments; nil creates a fresh store.
	PendingTOTP *security.PendingSecrets
	// Passkeys holds in-flight WebAuthn ceremonies; nil creates a fresh store.
	Passkeys *security.PasskeySessions
}

// NewEngine builds a gin engine with the request middlewares and every route.
func NewEngine(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(logging.RequestID(), logging.RequestLogger(), logging.Recovery(), corsMiddleware(deps.CORS))
	RegisterRoutes(r, deps)
	return r
}

// RegisterRoutes registers the public and authenticated API routes.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Service == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	passkeys := deps.Passkeys
	if passkeys == nil {
		passkeys = security.NewPasskeySessions()
	}

	v0 := r.Group("/v0")
	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Revocations, passkeys)
	v0.POST("/auth/login", authHandler.Login)
	v0.POST("/auth/passkey/options", authHandler.LoginPasskeyOptions)
	v0.POST("/auth/passkey/verify", authHandler.LoginPasskeyVerify)

	authed := v0.Group("")
	authed.Use(authMiddleware(deps.DB, deps.JWT, deps.Revocations), roleMiddleware())

	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/logout", authHandler.Logout)
	authed.PUT("/auth/password", authHandler.ChangePassword)
	authed.POST("/auth/register", authHandler.Register)

	mfaHandler := handlers.NewMFAHandler(deps.DB, deps.PendingTOTP, passkeys)
	authed.POST("/auth/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/auth/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/auth/mfa/totp/disable", mfaHandler.DisableTOTP)
	authed.POST("/auth/mfa/passkey/begin", mfaHandler.BeginPasskeyRegistration)
	authed.POST("/auth/mfa/passkey/finish", mfaHandler.FinishPasskeyRegistration)
	authed.POST("/auth/mfa/passkey/disable", mfaHandler.DisablePasskey)

	userHandler := handlers.NewUserHandler(deps.DB, deps.Service)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id", userHandler.Update)
	authed.DELETE("/users/:id", userHandler.Delete)

	balanceHandler := handlers.NewBalanceHandler(deps.Service)
	authed.POST("/balances", balanceHandler.Purchase)
	authed.GET("/balances", balanceHandler.Report)
	authed.GET("/balances/:userId", balanceHandler.Get)
	authed.GET("/balances/:userId/transactions", balanceHandler.Transactions)
	authed.PUT("/balances/transactions/:id", balanceHandler.EditTransaction)
	authed.DELETE("/balances/transactions/:id", balanceHandler.DeleteTransaction)

	tokenHandler := handlers.NewTokenHandler(deps.Service)
	authed.POST("/tokens", tokenHandler.Create)
	authed.GET("/tokens", tokenHandler.List)
	authed.PUT("/tokens/confirm", tokenHandler.Confirm)
	authed.GET("/tokens/user/:userId", tokenHandler.ListByUser)
	authed.PUT("/tokens/:id", tokenHandler.Update)
	authed.DELETE("/tokens/:id", tokenHandler.Delete)

	bedashHandler := handlers.NewBedashHandler(deps.DB)
	authed.POST("/bedash", bedashHandler.Create)
	authed.GET("/bedash", bedashHandler.List)
	authed.PUT("/bedash/:id/complete", bedashHandler.Complete)

	settingsHandler := handlers.NewSettingsHandler(deps.DB)
	authed.GET("/settings", settingsHandler.List)
	authed.PUT("/settings/:key", settingsHandler.Update)
}
