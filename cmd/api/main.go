package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-vault-api/internal/config"
	"github.com/go-vault-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-vault-api/internal/infrastructure/jwt"
	"github.com/go-vault-api/internal/infrastructure/oidc"
	"github.com/go-vault-api/internal/infrastructure/qr"
	s3infra "github.com/go-vault-api/internal/infrastructure/s3"
	"github.com/go-vault-api/internal/infrastructure/smtp"
	"github.com/go-vault-api/internal/infrastructure/sns"
	transporthttp "github.com/go-vault-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// OIDC validator (optional — federated login is disabled without it).
	var oidcValidator *oidc.Validator
	if cfg.OIDCJwksURL != "" {
		keySet := oidc.NewKeySet(oidc.HTTPFetch(cfg.OIDCJwksURL), oidc.DefaultKeySetTTL)
		oidcValidator = oidc.NewValidator(keySet, cfg.OIDCIssuer, cfg.OIDCAudience)
	} else {
		log.Println("WARN: OIDC_JWKS_URL not set, OIDC login disabled")
	}

	// S3 blob store for vault ciphertext.
	s3Client := s3infra.NewClient(cfg)
	blobStore := s3infra.NewBlobStore(s3Client, cfg.S3BucketName)

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	deps := &transporthttp.Deps{
		UserRepo:         dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		SessionRepo:      dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		VaultItemRepo:    dynamo.NewVaultItemRepo(dynamoClient, cfg.DynamoTables.VaultItems),
		VaultHistoryRepo: dynamo.NewVaultHistoryRepo(dynamoClient, cfg.DynamoTables.VaultHistory),
		BlobStore:        blobStore,
		Mailer:           mailer,
		SMSSender:        smsSender,
		JWTProvider:      jwtProvider,
		OIDCValidator:    oidcValidator,
		QRRenderer:       qr.NewRenderer(),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
