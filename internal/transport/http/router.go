package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/go-vault-api/internal/application/mfa"
	"github.com/go-vault-api/internal/application/session"
	"github.com/go-vault-api/internal/application/user"
	"github.com/go-vault-api/internal/application/vault"
	"github.com/go-vault-api/internal/config"
	"github.com/go-vault-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-vault-api/internal/infrastructure/jwt"
	"github.com/go-vault-api/internal/infrastructure/oidc"
	"github.com/go-vault-api/internal/infrastructure/qr"
	s3infra "github.com/go-vault-api/internal/infrastructure/s3"
	"github.com/go-vault-api/internal/infrastructure/smtp"
	"github.com/go-vault-api/internal/infrastructure/sns"
	"github.com/go-vault-api/internal/transport/http/handler"
	appmiddleware "github.com/go-vault-api/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	SessionRepo      *dynamo.SessionRepo
	VaultItemRepo    *dynamo.VaultItemRepo
	VaultHistoryRepo *dynamo.VaultHistoryRepo
	BlobStore        *s3infra.BlobStore
	Mailer           smtp.Mailer
	SMSSender        sns.SMSSender
	JWTProvider      *jwtinfra.Provider
	OIDCValidator    *oidc.Validator
	QRRenderer       qr.Renderer
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}
	identityMw := appmiddleware.LoadIdentity(deps.SessionRepo, deps.UserRepo)

	// 5 requests/second, burst of 10 — applied to credential and code endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	sessionDeps := session.ServiceDeps{
		UserRepo:        deps.UserRepo,
		SessionRepo:     deps.SessionRepo,
		JWTProvider:     deps.JWTProvider,
		RefreshTokenDur: cfg.RefreshTokenDur,
	}
	// A typed nil validator must not end up inside the interface field.
	if deps.OIDCValidator != nil {
		sessionDeps.OIDCValidator = deps.OIDCValidator
	}
	sessionSvc := session.NewService(sessionDeps)
	userSvc := user.NewService(deps.UserRepo)
	vaultSvc := vault.NewService(deps.VaultItemRepo, deps.VaultHistoryRepo, deps.BlobStore)
	challengeEngine := mfa.NewChallengeEngine(deps.SessionRepo, deps.Mailer, deps.SMSSender, cfg.MFAIssuer)
	enrollmentSvc := mfa.NewEnrollmentService(
		deps.UserRepo,
		deps.SessionRepo,
		challengeEngine,
		deps.Mailer,
		deps.QRRenderer,
		cfg.EnrollmentTokenSecret,
		cfg.EnrollmentTokenTTL,
		cfg.MFAIssuer,
		cfg.FrontendURL,
	)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(userSvc)
	vaultH := handler.NewVaultHandler(vaultSvc)
	mfaH := handler.NewMFAHandler(challengeEngine, enrollmentSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/sessions/login/oidc", sessionH.LoginOIDC)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.Get("/users/availability", userH.Availability)
		// Confirmed from the email client, so no session token is present.
		r.With(sensitiveRL.Limit).Post("/mfa/email/confirm", mfaH.ConfirmEmailEnrollment)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(identityMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Get("/users/me", userH.Me)
			r.Post("/users/me/password", userH.ChangePassword)
			r.Post("/users/me/deactivate", userH.Deactivate)

			r.Post("/mfa/challenge", mfaH.StartChallenge)
			r.With(sensitiveRL.Limit).Post("/mfa/verify", mfaH.VerifyChallenge)
			r.Post("/mfa/email/start", mfaH.StartEmailEnrollment)
			r.Post("/mfa/sms/start", mfaH.StartSmsEnrollment)
			r.With(sensitiveRL.Limit).Post("/mfa/sms/confirm", mfaH.ConfirmSmsEnrollment)
			r.Post("/mfa/totp/start", mfaH.StartTotpEnrollment)
			r.With(sensitiveRL.Limit).Post("/mfa/totp/verify", mfaH.VerifyTotp)

			// Vault routes additionally require a verified MFA session.
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireMFA)

				r.Post("/vault", vaultH.Create)
				r.Get("/vault", vaultH.List)
				r.Get("/vault/deleted", vaultH.ListDeleted)
				r.Get("/vault/{id}", vaultH.Get)
				r.Put("/vault/{id}", vaultH.Update)
				r.Delete("/vault/{id}", vaultH.Delete)
				r.Post("/vault/{id}/restore", vaultH.Restore)
				r.Delete("/vault/{id}/purge", vaultH.Purge)
				r.Get("/vault/{id}/history", vaultH.History)
			})
		})
	})

	return r
}
