// Package app wires the attendance service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/api/handlers"
	"face-attendance-go/internal/api/middleware"
	"face-attendance-go/internal/attendance"
	"face-attendance-go/internal/cleanup"
	"face-attendance-go/internal/core/processor"
	"face-attendance-go/internal/db"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/enrollment"
	"face-attendance-go/internal/gallery"
	"face-attendance-go/internal/integrations/mqtt"
	"face-attendance-go/internal/integrations/opencv"
	"face-attendance-go/internal/locale"
	"face-attendance-go/internal/logger"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/server/sse"
	"face-attendance-go/internal/video"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// App holds the long-lived components of the service.
type App struct {
	Config     *config.Config
	Repo       *repository.SQLiteRepository
	Catalog    *locale.Catalog
	Vision     *opencv.Service
	Gallery    *gallery.DirGallery
	Attendance *attendance.Service
	Enroller   *enrollment.Enroller
	Pool       *processor.WorkerPool
	Hub        *sse.Hub
	MQTT       *mqtt.Client
	Cleanup    *cleanup.Service

	cancel context.CancelFunc
}

// Build opens the database, loads the models and wires every component. The
// caller must call Close.
func Build(cfg *config.Config) (*App, error) {
	if err := db.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &App{Config: cfg, Repo: repository.NewSQLiteRepository(db.DB)}

	catalog, err := locale.New(cfg.I18n.DefaultLanguage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Catalog = catalog

	vision, err := opencv.NewService(&cfg.OpenCV)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Vision = vision

	a.Gallery = gallery.New(cfg.Gallery.Dir, cfg.Gallery.CacheSize)
	if err := a.Gallery.Reload(); err != nil {
		logger.Component("gallery").Warnf("Gallery not loaded: %v", err)
	}
	persons, samples := a.Gallery.Counts()
	logger.Component("gallery").Infof("Gallery %s: %d persons, %d samples", cfg.Gallery.Dir, persons, samples)

	selector := recognition.NewMatchSelector(a.Gallery, vision, cfg.Recognition.MatchDistanceThreshold, cfg.Recognition.ParallelComparisons)
	images := recognition.NewImageRecognizer(vision, selector, cfg.Recognition.CropSize)
	videos := video.NewRecognizer(vision, images)

	settings, err := attendance.SettingsFromConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Hub = sse.NewHub()
	a.MQTT = mqtt.NewClient(cfg.MQTT)
	a.MQTT.RegisterHandler(mqtt.CommandHandlerFunc(a.handleCommand))

	a.Attendance = attendance.NewService(a.Repo, images, videos, catalog, settings, a.Hub, a.MQTT)
	a.Enroller = enrollment.New(vision, a.Gallery, a.Repo, cfg.Gallery.RegisterMinConfidence, cfg.Recognition.CropSize)
	a.Pool = processor.NewWorkerPool(cfg.Worker.Count, cfg.Worker.QueueSize)
	a.Cleanup = cleanup.NewService(a.Repo, cfg.Cleanup.RetentionDays, cfg.Server.UploadDir,
		time.Duration(cfg.Cleanup.UploadMaxAgeMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute)
	return a, nil
}

// Start launches the background components.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Hub.Run(ctx)
	if err := a.MQTT.Start(); err != nil {
		log.Warnf("MQTT unavailable, continuing without it: %v", err)
	}
	a.Cleanup.StartBackgroundCleanup()
}

// Router builds the HTTP router.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.Config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept-Language"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(sessions.Sessions("attendance", cookie.NewStore([]byte(a.Config.Server.SessionSecret))))
	r.Use(middleware.I18n(a.Catalog))
	r.MaxMultipartMemory = 8 << 20

	api := r.Group("/api")
	handlers.NewAPIHandler(handlers.Options{
		Repo:           a.Repo,
		Recognizer:     a.Attendance,
		Enroller:       a.Enroller,
		Gallery:        a.Gallery,
		Messages:       a.Catalog,
		Pool:           a.Pool,
		UploadDir:      a.Config.Server.UploadDir,
		MaxUploadBytes: int64(a.Config.Server.MaxUploadMB) << 20,
		Checks: map[string]func() bool{
			"opencv": a.Vision.Ready,
			"mqtt":   func() bool { return !a.MQTT.Enabled() || a.MQTT.IsConnected() },
		},
	}).RegisterRoutes(api)
	api.GET("/events", a.Hub.Handler)

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Face recognition attendance API"})
	})
	return r
}

// handleCommand serves commands received over MQTT.
func (a *App) handleCommand(_ context.Context, cmd mqtt.Command) error {
	switch cmd.Action {
	case "reload_gallery":
		if err := a.Gallery.Reload(); err != nil {
			return err
		}
		persons, samples := a.Gallery.Counts()
		logger.Component("gallery").WithField("source", "mqtt").
			Infof("Gallery reloaded: %d persons, %d samples", persons, samples)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Action)
	}
}

// Close stops background work and releases the models and the database.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.Cleanup.StopBackgroundCleanup()
	if a.Pool != nil {
		a.Pool.Shutdown()
	}
	if a.MQTT != nil {
		a.MQTT.Stop()
	}
	var errs []error
	if a.Vision != nil {
		errs = append(errs, a.Vision.Close())
	}
	errs = append(errs, db.Close())
	return errors.Join(errs...)
}
