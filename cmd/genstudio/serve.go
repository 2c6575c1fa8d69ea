package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/digkill/GenStudio/internal/admin"
	"github.com/digkill/GenStudio/internal/api"
	"github.com/digkill/GenStudio/internal/cache"
	"github.com/digkill/GenStudio/internal/config"
	"github.com/digkill/GenStudio/internal/database"
	"github.com/digkill/GenStudio/internal/gemini"
	"github.com/digkill/GenStudio/internal/i18n"
	"github.com/digkill/GenStudio/internal/identity"
	"github.com/digkill/GenStudio/internal/metrics"
	"github.com/digkill/GenStudio/internal/repository"
	"github.com/digkill/GenStudio/internal/service"
	"github.com/digkill/GenStudio/internal/storage"
	"github.com/digkill/GenStudio/internal/telegram"
	"github.com/digkill/GenStudio/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var migrateOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the public API and the admin console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrateOnStart)
		},
	}
	cmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrateOnStart bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(ctx, cfg.MySQLDSN)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	defer db.Close()

	if migrateOnStart {
		if err := database.MigrateUp(db, log); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
	}

	accountRepo := repository.NewAccountRepository(db)
	guestRepo := repository.NewGuestRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	toolRepo := repository.NewToolRepository(db)
	configRepo := repository.NewSystemConfigRepository(db)
	packageRepo := repository.NewPackageRepository(db)

	configService := service.NewSystemConfigService(configRepo, log)
	pipelineCfg := service.PipelineConfig{
		RequestTimeout:      cfg.RequestTimeout,
		GuestDefaultCredits: configService.GuestDefaultCredits(ctx, cfg.GuestDefaultCredits),
	}
	log.Info("pipeline configured",
		zap.Duration("request_timeout", pipelineCfg.RequestTimeout),
		zap.Int("guest_default_credits", pipelineCfg.GuestDefaultCredits),
	)

	var accountLookup service.AccountLookup = accountRepo
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		if err := cache.Ping(ctx, rdb); err != nil {
			log.Warn("redis unavailable, identity cache will fall through", zap.Error(err))
		}
		accountLookup = cache.NewCachedAccountLookup(accountRepo, rdb, cfg.IdentityCacheTTL, log)
	}

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		PublicRead:    cfg.S3PublicRead,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		return fmt.Errorf("storage uploader: %w", err)
	}

	var alerter service.Alerter
	tg, err := telegram.NewAlerter(cfg.TelegramAlertBotToken, cfg.TelegramAlertChatID, telegram.NewThrottle(5*time.Minute), log)
	if err != nil {
		log.Warn("telegram alerts disabled", zap.Error(err))
	} else if tg != nil {
		alerter = tg
	}

	registry := metrics.New()
	translator, err := i18n.NewManager(cfg.DefaultLanguage, log)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	geminiClient := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiHTTPTimeout, log)

	ledger := service.NewLedger(accountRepo, guestRepo, pipelineCfg.GuestDefaultCredits)
	resolver := service.NewIdentityResolver(identity.NewSessionVerifier(cfg.SessionJWTSecret), accountLookup, log)
	orchestrator := service.NewOrchestrator(
		pipelineCfg,
		resolver,
		ledger,
		service.NewInvoker(geminiClient, cfg.GeminiDefaultModel, registry, log),
		service.NewResultPersister(uploader, ledger, alerter, registry, log),
		service.NewAuditLogger(generationRepo, toolRepo, log),
		registry,
		log,
	)

	apiServer := api.NewServer(cfg.HTTPListenAddr, cfg.IsProduction(), cfg.RequestTimeout, api.Deps{
		Generator: orchestrator,
		Caller:    service.NewCallerService(resolver, ledger, generationRepo),
		Packages:  service.NewPackageService(packageRepo),
		DB:        db,
		I18n:      translator,
		Metrics:   registry,
		Limiter:   api.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Log:       log,
	})
	adminServer := admin.NewServer(
		cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, log,
		service.NewAccountService(accountRepo),
		service.NewPackageService(packageRepo),
		configService,
		generationRepo,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return apiServer.Run(gctx) })
	g.Go(func() error { return adminServer.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
