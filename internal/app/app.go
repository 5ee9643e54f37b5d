package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/db"
	"github.com/robolist/robolist/internal/service"
	"github.com/robolist/robolist/internal/storage"
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/validation"
)

type App struct {
	Cfg               *config.Config
	Store             store.Store
	Storage           storage.Storage
	Cognito           *service.CognitoVerifier
	EmailService      *service.EmailService
	UserService       *service.UserService
	AuthService       *service.AuthService
	ArtifactService   *service.ArtifactService
	ListingService    *service.ListingService
	RobotClassService *service.RobotClassService
	RobotService      *service.RobotService
	SitemapService    *service.SitemapService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	s, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := NewStorage(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	cognito, err := service.NewCognitoVerifier(ctx, cfg.CognitoJWKSURL, cfg.CognitoIssuer)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize cognito verifier: %w", err)
	}

	return Wire(cfg, s, blobs, cognito), nil
}

// Wire builds the services over already opened adapters.
func Wire(cfg *config.Config, s store.Store, blobs storage.Storage, cognito *service.CognitoVerifier) *App {
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		!cfg.IsProduction(),
	)
	userService := service.NewUserService(s, emailService)
	authService := service.NewAuthService(s, userService, emailService, cognito, service.AuthConfig{
		JWTSecret:  cfg.JWTSecret,
		APIKeyTTL:  cfg.APIKeyTTL,
		MaxAPIKeys: cfg.MaxAPIKeys,
	})
	artifactService := service.NewArtifactService(s, blobs, service.ArtifactConfig{
		BaseURL:       cfg.ArtifactBaseURL,
		PresignExpiry: cfg.S3PresignExpiry,
		Limits: validation.UploadLimits{
			MinBytes: cfg.ArtifactMinBytes,
			MaxBytes: cfg.ArtifactMaxBytes,
		},
	})
	listingService := service.NewListingService(s, artifactService, userService)
	robotClassService := service.NewRobotClassService(s, blobs, cfg.S3PresignExpiry)

	return &App{
		Cfg:               cfg,
		Store:             s,
		Storage:           blobs,
		Cognito:           cognito,
		EmailService:      emailService,
		UserService:       userService,
		AuthService:       authService,
		ArtifactService:   artifactService,
		ListingService:    listingService,
		RobotClassService: robotClassService,
		RobotService:      service.NewRobotService(s, robotClassService),
		SitemapService:    service.NewSitemapService(listingService, cfg.AppURL),
	}
}

// NewStore opens the configured key-value store backend.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreDynamo:
		s, err := store.NewDynamoStore(ctx, store.DynamoConfig{
			Region:             cfg.AWSRegion,
			AccessKey:          cfg.AWSAccessKeyID,
			SecretKey:          cfg.AWSSecretAccessKey,
			Endpoint:           cfg.DynamoEndpoint,
			Table:              cfg.DynamoTable,
			DeletionProtection: cfg.DynamoDeletionProtection,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize dynamodb store: %w", err)
		}
		return s, nil

	case config.StoreSQL:
		database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		s := store.NewSQLStore(database, cfg.DBDriver)
		err = s.EnsureTable(ctx)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewStorage opens S3, or an in-process store when no S3 endpoint or
// credentials are configured outside production.
func NewStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if !cfg.HasS3() {
		slog.Warn("no S3 configuration, keeping blobs in memory", "env", cfg.AppEnv)
		return storage.NewMemoryStorage(""), nil
	}
	blobs, err := storage.NewS3Storage(ctx, storage.S3Config{
		Region:    cfg.AWSRegion,
		Bucket:    cfg.S3Bucket,
		Prefix:    cfg.S3Prefix,
		AccessKey: cfg.AWSAccessKeyID,
		SecretKey: cfg.AWSSecretAccessKey,
		Endpoint:  cfg.S3Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return blobs, nil
}

func (a *App) Close() error {
	if a.Cognito != nil {
		a.Cognito.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
