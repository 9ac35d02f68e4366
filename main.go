package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"kitchenledger/server/internal/api"
	"kitchenledger/server/internal/config"
	"kitchenledger/server/internal/database"
	"kitchenledger/server/internal/events"
	"kitchenledger/server/internal/metrics"
	"kitchenledger/server/internal/repositories"
	"kitchenledger/server/internal/services"
	"kitchenledger/server/internal/utils"
)

func main() {
	// Загружаем переменные окружения из .env файла (если существует)
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Некорректная конфигурация")
	}
	utils.InitLogger(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Info().Msg("ℹ️ .env файл не найден, используем переменные окружения системы")
	}
	log.Info().Str("database_url", maskDatabaseURL(cfg.DatabaseURL)).Msg("📋 Конфигурация загружена")

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ PostgreSQL connection failed")
	}
	defer database.ClosePostgres(db)

	collector := metrics.NewCollector()

	var ingredientRepo repositories.IngredientRepository = repositories.NewGormIngredientRepository(db)
	var locker utils.Locker = utils.NoopLocker{}
	if cfg.RedisURL != "" || len(cfg.RedisSentinelAddrs) > 0 {
		rdb, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Redis недоступен, работаем без кэша и распределенных блокировок")
		} else {
			defer database.CloseRedis(rdb)
			ingredientRepo = repositories.NewCachedIngredientRepository(ingredientRepo, utils.NewRedisClient(rdb), cfg.IngredientCacheTTL)
			locker = utils.NewRedisLocker(rdb, cfg.LockTTL)
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if brokers := events.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaStockTopic, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaStockTopic).Msg("📡 События склада публикуются в Kafka")
	}
	defer publisher.Close()

	inventoryRepo := repositories.NewGormInventoryRepository(db)
	movementRepo := repositories.NewGormStockMovementRepository(db)
	eventRepo := repositories.NewGormEventRepository(db)
	menuRepo := repositories.NewGormMenuRepository(db)
	recipeRepo := repositories.NewGormRecipeRepository(db)

	catalog := services.NewIngredientCatalog(ingredientRepo, cfg.Costing.BulkLookupLimit, collector)
	costEngine := services.NewCostEngine(catalog)
	ledger := services.NewBatchLedger(cfg.Costing.DefaultShelfLifeDays, nil)

	deductionService := services.NewStockDeductionService(services.StockDeductionDeps{
		Events:    eventRepo,
		Menus:     menuRepo,
		Recipes:   recipeRepo,
		Inventory: inventoryRepo,
		Movements: movementRepo,
		Catalog:   catalog,
		Ledger:    ledger,
		Locker:    locker,
		Publisher: publisher,
		Metrics:   collector,
	})
	countService := services.NewPhysicalCountService(inventoryRepo, movementRepo, ledger, locker, publisher, collector, nil)
	migrationService := services.NewStockMigrationService(ingredientRepo, inventoryRepo, movementRepo, ledger, locker, publisher, nil)
	demandAggregator := services.NewDemandAggregator(eventRepo, menuRepo, recipeRepo, inventoryRepo, catalog, costEngine, nil)
	sheetService := services.NewTechnicalSheetService(
		repositories.NewGormTechnicalSheetRepository(db),
		repositories.NewGormVersionSnapshotRepository(db),
		recipeRepo,
		costEngine,
		cfg.Costing,
		collector,
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.GinLogger())
	corsConfig := cors.DefaultConfig()
	if len(cfg.CorsOrigins) == 0 || (len(cfg.CorsOrigins) == 1 && cfg.CorsOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CorsOrigins
	}
	corsConfig.AddAllowMethods("PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Authorization", "X-User-ID")
	corsConfig.AddExposeHeaders("Content-Disposition")
	r.Use(cors.New(corsConfig))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{})))

	api.RegisterRoutes(r.Group("/api/v1"), api.Controllers{
		Inventory:       api.NewInventoryController(deductionService, countService, migrationService, cfg.Costing.ExpiringSoonDays),
		Demand:          api.NewDemandController(demandAggregator),
		TechnicalSheets: api.NewTechnicalSheetController(sheetService),
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Остановка сервера")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Сервер остановлен с ошибкой")
	}
}

// maskDatabaseURL скрывает учетные данные в строке подключения
func maskDatabaseURL(url string) string {
	idx := strings.Index(url, "@")
	schemeIdx := strings.Index(url, "://")
	if idx > 0 && schemeIdx > 0 && schemeIdx < idx {
		return url[:schemeIdx+3] + "***@" + url[idx+1:]
	}
	return url
}
