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

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/database"
	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/logging"
	"github.com/agng-dev/montron/internal/secrets"
	"github.com/agng-dev/montron/internal/server"
	"github.com/agng-dev/montron/internal/storage"
	"github.com/agng-dev/montron/internal/store"
)

func main() {
	godotenv.Load()
	logger := logging.Setup(os.Getenv("MONTRON_LOG_LEVEL"))

	port := os.Getenv("MONTRON_PORT")
	if port == "" {
		port = "8080"
	}
	dbPath := os.Getenv("MONTRON_DB_PATH")
	if dbPath == "" {
		dbPath = "montron.db"
	}

	secretKey := os.Getenv("MONTRON_SECRET_KEY")
	if secretKey == "" {
		log.Fatal("MONTRON_SECRET_KEY is required")
	}
	jwtSecret := os.Getenv("MONTRON_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = secretKey
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	box, err := secrets.NewBox(secretKey)
	if err != nil {
		log.Fatalf("failed to initialize secrets: %v", err)
	}

	// The Form Builder binding usually comes from the setup flow; env vars
	// override it for development.
	configStore := store.NewConfigStore(db)
	formCfg := formapi.Config{
		BaseURL:      os.Getenv("MONTRON_FORM_API_URL"),
		ServiceToken: os.Getenv("MONTRON_FORM_API_TOKEN"),
	}
	if formCfg.BaseURL == "" {
		if baseURL, err := configStore.FormAPIBaseURL(); err == nil && baseURL != "" {
			formCfg.BaseURL = baseURL
			if encrypted, err := configStore.FormAPIToken(); err == nil && encrypted != "" {
				if token, err := box.Decrypt(encrypted); err == nil {
					formCfg.ServiceToken = token
				} else {
					logger.Error("decrypt form api token", "error", err)
				}
			}
		}
	}
	formClient := formapi.NewClient(formCfg)

	var firebase *auth.FirebaseVerifier
	if projectID := os.Getenv("MONTRON_FIREBASE_PROJECT"); projectID != "" {
		firebase, err = auth.NewFirebaseVerifier(context.Background(), projectID, os.Getenv("MONTRON_FIREBASE_CREDENTIALS"))
		if err != nil {
			log.Fatalf("failed to initialize firebase: %v", err)
		}
	}

	srv := server.New(db, formClient, box, firebase, server.Config{
		JWTSecret: jwtSecret,
		Storage: storage.Config{
			Endpoint:  os.Getenv("MONTRON_S3_ENDPOINT"),
			Bucket:    os.Getenv("MONTRON_S3_BUCKET"),
			Region:    os.Getenv("MONTRON_S3_REGION"),
			AccessKey: os.Getenv("MONTRON_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("MONTRON_S3_SECRET_KEY"),
		},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Syncer().Start(ctx)

	// Hourly cleanup of expired sessions and stale rate-limit buckets.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("cleanup sessions", "error", err)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Montron running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	srv.Syncer().Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
