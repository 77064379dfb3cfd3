package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/threepl_backend/config"
	"github.com/mmdatafocus/threepl_backend/middlewares"
	"github.com/mmdatafocus/threepl_backend/models"
	"github.com/mmdatafocus/threepl_backend/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

// server holds what the handlers need; tests build one around an in-memory database.
type server struct {
	db     *gorm.DB
	logger *logrus.Logger
	policy models.PalletPatternPolicy
}

func newServer(db *gorm.DB, logger *logrus.Logger) *server {
	policy, err := models.ParsePalletPatternPolicy(config.PalletPatternPolicy())
	if err != nil {
		policy = models.PalletPatternWarn
	}
	return &server{db: db, logger: logger, policy: policy}
}

// RateLimiter is a fixed-window per-IP limiter kept in Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// limiter unavailable; let the request through
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

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = config.CorsAllowedOrigins()
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	r.Use(cors.New(corsConfig))

	if rdb := config.GetRedisDB(); rdb != nil && strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		r.Use(NewRateLimiter(rdb, limit, time.Minute).RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.LoaderMiddleware(s.db))
	r.Use(customErrorLogger(s.logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	read := api.Group("")
	write := api.Group("", middlewares.RequireActor())

	read.GET("/customers", s.listCustomers)
	read.GET("/customers/:id", s.getCustomer)
	write.POST("/customers", s.createCustomer)
	write.PUT("/customers/:id", s.updateCustomer)
	write.DELETE("/customers/:id", s.deleteCustomer)
	write.POST("/customers/:id/activate", s.toggleCustomer(true))
	write.POST("/customers/:id/deactivate", s.toggleCustomer(false))

	read.GET("/service-types", s.listServiceTypes)
	read.GET("/service-types/:id", s.getServiceType)

	read.GET("/customers/:id/rates", s.listRates)
	read.GET("/customers/:id/rates/resolve", s.resolveRate)
	write.POST("/customers/:id/rates", s.createRate)
	write.PUT("/rates/:id", s.updateRate)
	write.POST("/rates/:id/deactivate", s.deactivateRate)

	read.GET("/service-records", s.listServiceRecords)
	write.POST("/service-records", s.createServiceRecord)
	write.PUT("/service-records/:id", s.updateServiceRecord)
	write.DELETE("/service-records/:id", s.deleteServiceRecord)

	read.GET("/invoices", s.listInvoices)
	read.GET("/invoices/:id", s.getInvoice)
	read.GET("/invoices/:id/export", s.exportInvoice)
	write.POST("/invoices/generate", s.generateInvoice)
	write.POST("/invoices/:id/status", s.updateInvoiceStatus)
	write.POST("/invoices/mark-overdue", s.markOverdueInvoices)
	write.POST("/billing/run", s.runBilling)

	read.GET("/warehouses", s.listWarehouses)
	read.GET("/warehouses/occupancy", s.warehouseOccupancy)
	write.POST("/warehouses", s.createWarehouse)

	read.GET("/products", s.listProducts)
	read.GET("/products/:id", s.getProduct)
	write.POST("/products", s.createProduct)
	write.PUT("/products/:id", s.updateProduct)
	write.DELETE("/products/:id", s.deleteProduct)
	write.POST("/products/import", s.importProducts)

	read.GET("/products/:id/inventory", s.getInventory)
	read.GET("/inventory/transactions", s.listInventoryTransactions)
	write.POST("/inventory/transactions", s.postInventoryTransaction)
	write.POST("/inventory/rebuild", s.rebuildInventory)

	write.POST("/internal/ops/outbox/replay", s.outboxReplay)

	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "not_found"})
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 && logger != nil {
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": c.Writer.Header().Get(middlewares.CorrelationHeader),
			}).Error(c.Errors.String())
		}
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db := config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(5)
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate can lock tables for a long time; run it as a separate job when SKIP_MIGRATIONS=true.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			log.Fatal(err)
		}
		if err := models.SeedReferenceData(db); err != nil {
			log.Fatal(err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	if config.PubSubEnabled() {
		go workflow.NewOutboxDispatcher(db, logger, config.NewPubSubPublisher()).Run(dispatcherCtx)
	} else {
		logger.WithFields(logrus.Fields{"field": "outbox"}).Warn("PUBSUB_PROJECT_ID/PUBSUB_TOPIC not set; outbox events stay pending")
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newServer(db, logger).routes(),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{"port": port, "driver": config.DatabaseDriver()}).Info("server started")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
