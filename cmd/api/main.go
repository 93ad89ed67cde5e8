package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hoasen-edu/preschool-api/internal/handler"
	"github.com/hoasen-edu/preschool-api/internal/mail"
	"github.com/hoasen-edu/preschool-api/internal/middleware"
	"github.com/hoasen-edu/preschool-api/internal/repository"
	"github.com/hoasen-edu/preschool-api/internal/service"
	"github.com/hoasen-edu/preschool-api/pkg/cache"
	"github.com/hoasen-edu/preschool-api/pkg/config"
	"github.com/hoasen-edu/preschool-api/pkg/database"
	"github.com/hoasen-edu/preschool-api/pkg/logger"
	"github.com/hoasen-edu/preschool-api/pkg/mailer"
	corsmiddleware "github.com/hoasen-edu/preschool-api/pkg/middleware/cors"
	reqidmiddleware "github.com/hoasen-edu/preschool-api/pkg/middleware/requestid"
	"github.com/hoasen-edu/preschool-api/pkg/retry"
	"github.com/hoasen-edu/preschool-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The scan lock degrades to unlocked operation without Redis; the
		// pipeline stays correct through the database claim.
		logr.Sugar().Warnw("redis unavailable, scan lock disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	photos, err := storage.NewPhotoStore(cfg.Storage.PhotoDir, cfg.Storage.PublicBaseURL, signer)
	if err != nil {
		logr.Sugar().Fatalw("failed to init photo store", "error", err)
	}

	enrollments := repository.NewEnrollmentRepository(db)
	students := repository.NewStudentRepository(db)
	guardians := repository.NewGuardianRepository(db)
	sequences := repository.NewSequenceRepository(db)

	metricsSvc := service.NewMetricsService()
	codes := service.NewCodeService(sequences)

	sender := mailer.NewSMTPSender(cfg.Mail.SMTP)
	mailQueue := service.NewMailQueue(sender, cfg.Enroll.MailWorkers, cfg.Enroll.MailRetries, logr)
	queueCtx, stopQueue := context.WithCancel(context.Background())
	mailQueue.Start(queueCtx)

	notifications, err := service.NewNotificationService(mailQueue, cfg.Enroll.ConfirmKeyword, metricsSvc, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init notifications", "error", err)
	}

	intake := service.NewIntakeService(enrollments, students, codes, notifications, cfg.Enroll, nil, logr)
	provisioning := service.NewProvisioningService(students, guardians, photos, codes, notifications, cfg.Enroll.DefaultPassword, logr)

	reader := mail.NewReader(retry.Policy{
		MaxAttempts: cfg.Enroll.ReadRetryAttempts,
		Interval:    cfg.Enroll.ReadRetryInterval,
	}, logr)
	mailbox := mailer.NewIMAPMailbox(cfg.Mail.IMAP)
	scanLock := cache.NewScanLock(redisClient, "enrollment:scan:lock", cfg.Enroll.ScanLockTTL)
	confirmation := service.NewConfirmationService(enrollments, mailbox, reader, provisioning, notifications, scanLock, cfg.Enroll.ConfirmKeyword, metricsSvc, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(intake, confirmation)
	photoHandler := handler.NewPhotoHandler(photos, cfg.Storage.SignedURLSecret != "")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	r.GET("/photos/:filename", photoHandler.Download)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/enrollments", enrollmentHandler.Submit)
		api.GET("/enrollments", enrollmentHandler.List)
		api.GET("/enrollments/:code", enrollmentHandler.Get)
		api.POST("/enrollments/scan", enrollmentHandler.Scan)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown", "error", err)
	}

	// Drain queued emails before exit so success notifications are not lost.
	mailQueue.Stop()
	stopQueue()
}
