package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/middlewares"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/utils"
	"github.com/mmdatafocus/glrecon_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App is everything a request handler needs. The workflow service is set once
// the store is connected; until then the readiness gate answers 503.
type App struct {
	Settings *config.Settings
	Logger   *logrus.Logger
	Access   *models.AccessTable

	svc atomic.Pointer[workflow.Service]
}

func (a *App) Service() *workflow.Service { return a.svc.Load() }

func (a *App) SetService(s *workflow.Service) { a.svc.Store(s) }

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func newRouter(app *App, rdb *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if app.Service() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service is starting"})
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", app.readyHandler)

	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS.
	corsConfig := cors.DefaultConfig()
	if app.Settings.IsProduction() {
		corsConfig.AllowOrigins = app.Settings.CORSAllowedOrigins
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOrigins = []string{}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	r.Use(cors.New(corsConfig))

	if app.Settings.RateLimitEnabled && rdb != nil {
		r.Use(NewRateLimiter(rdb, int64(app.Settings.RateLimitMaxRequests), app.Settings.RateLimitWindow).RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(app.Logger))
	r.Use(gin.Recovery())

	r.POST("/login", app.loginHandler)

	authed := r.Group("/", middlewares.RequireSession())
	authed.GET("/records", app.listRecordsHandler)
	authed.POST("/records", app.createRecordHandler)
	authed.GET("/records/:id", app.getRecordHandler)
	authed.DELETE("/records/:id", app.deleteRecordHandler)
	authed.PATCH("/records/:id/completion", app.setCompletionHandler)
	authed.PATCH("/records/:id/review", app.setReviewHandler)
	authed.GET("/records/:id/comments", app.listCommentsHandler)
	authed.POST("/records/:id/comments", app.addCommentHandler)
	authed.GET("/records/:id/attachments", app.listAttachmentsHandler)
	authed.POST("/records/:id/attachments", app.uploadAttachmentHandler)

	admin := authed.Group("/admin")
	admin.POST("/import/records", app.importRecordsHandler)
	admin.POST("/import/mappings", app.importMappingsHandler)
	admin.GET("/deadline-policy", app.getPolicyHandler)
	admin.PUT("/deadline-policy", app.setPolicyHandler)
	admin.POST("/sweeps/recompute", app.recomputeHandler)
	admin.POST("/sweeps/reset", app.resetHandler)
	admin.GET("/upload-log", app.uploadLogHandler)

	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	logger := config.GetLogger()
	settings, err := config.LoadSettings()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err.Error())
	}
	access, err := models.LoadAccessTable(settings.AccessTablePath)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "access table"}).Fatal(err.Error())
	}
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Shutdown coordination: SIGTERM on revision shutdown drains gracefully.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	app := &App{Settings: settings, Logger: logger, Access: access}
	rdb, locker := config.ConnectRedis(sigCtx, settings.RedisAddress, 3)
	r := newRouter(app, rdb)

	// Start listening immediately; the readiness gate answers 503 until the store is up.
	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	svc, closeDeps, err := workflow.Bootstrap(sigCtx, settings, logger, rdb, locker)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Fatal(err.Error())
	}
	defer closeDeps()
	app.SetService(svc)

	schedulerCtx, cancelScheduler := context.WithCancel(sigCtx)
	defer cancelScheduler()
	if settings.SchedulerEnabled {
		sched := workflow.NewPeriodScheduler(svc, logger)
		sched.Interval = settings.SchedulerInterval
		go sched.Run(schedulerCtx)
	}

	log.Printf("Server started successfully on :%s", settings.Port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background work first so nothing new starts while draining.
	cancelScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			ctx := c.Request.Context()
			cid, _ := utils.GetCorrelationIdFromContext(ctx)
			username, _ := utils.GetUsernameFromContext(ctx)
			role, _ := utils.GetRoleFromContext(ctx)
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": cid,
				"username":       username,
				"token_role":     role,
			}).Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP in a fixed window. When
// redis errors the request is let through.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		_ = c.Error(err)
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}
