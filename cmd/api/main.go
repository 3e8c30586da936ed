package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/placement-api/internal/config"
	"github.com/yourusername/placement-api/internal/handler"
	"github.com/yourusername/placement-api/internal/middleware"
	pgRepo "github.com/yourusername/placement-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/placement-api/internal/repository/redis"
	"github.com/yourusername/placement-api/internal/service"
	"github.com/yourusername/placement-api/internal/service/examsession"
	ws "github.com/yourusername/placement-api/internal/websocket"
	"github.com/yourusername/placement-api/pkg/auth"
	"github.com/yourusername/placement-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	isProduction := gin.Mode() == gin.ReleaseMode

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), !isProduction)
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db, cfg.Database.MigrationsPath); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	testRepo := pgRepo.NewTestRepo(db)
	resultRepo := pgRepo.NewResultRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs, cfg.JWT.WSTicketExpirySec)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Уведомления о результатах
	var notifier service.NotificationService = &service.NoopNotificationService{}
	if cfg.Notifications.Enabled {
		resendNotifier, err := service.NewResendNotificationService(cfg.Notifications.ResendAPIKey, cfg.Notifications.From)
		if err != nil {
			log.Printf("Failed to initialize notification service: %v", err)
			os.Exit(1)
		}
		notifier = resendNotifier
		log.Println("Email-уведомления о результатах включены (Resend)")
	}

	// Создаем контекст с отменой для фоновых горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket
	wsHub := ws.NewHub()
	go wsHub.Run()
	wsManager := ws.NewManager(wsHub)

	// Инициализируем сервисы
	authService, err := service.NewAuthService(userRepo, jwtService, cfg.JWT.StaffInviteCode)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}
	userService := service.NewUserService(userRepo)
	testService := service.NewTestService(testRepo, cacheRepo, cfg.Exam.AvailableCacheTTL())
	testService.SetBroadcaster(wsManager)
	resultService := service.NewResultService(resultRepo, testRepo, userRepo, testService, notifier)

	sessionConfig := examsession.DefaultConfig()
	sessionConfig.TickInterval = cfg.Exam.TickInterval()
	if cfg.Exam.SaveTimeoutSec > 0 {
		sessionConfig.SaveTimeout = cfg.Exam.SaveTimeout()
	}
	if cfg.Exam.RetainFinishedMin > 0 {
		sessionConfig.RetainFinished = cfg.Exam.RetainFinished()
	}
	sessionManager := examsession.NewManager(&examsession.Dependencies{
		Tests:    testService,
		Results:  resultService,
		Cache:    cacheRepo,
		Notifier: wsManager,
		Config:   sessionConfig,
	})
	go sessionManager.RunJanitor(ctx)

	// Инициализируем обработчики
	authHandler := handler.NewAuthHandler(authService, userService)
	testHandler := handler.NewTestHandler(testService, resultService)
	sessionHandler := handler.NewSessionHandler(sessionManager, userService)
	resultHandler := handler.NewResultHandler(resultService)
	exportHandler := handler.NewExportHandler(resultService)
	reportHandler := handler.NewReportHandler(resultService)
	wsHandler := handler.NewWSHandler(wsHub, wsManager, sessionManager, jwtService, cfg.CORS.AllowedOrigins)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)
	authLimit := middleware.AuthRateLimitConfig(cfg.RateLimit.AuthMaxRequests, time.Duration(cfg.RateLimit.AuthWindowSec)*time.Second)
	sessionLimit := middleware.RateLimitConfig{MaxRequests: 240, Window: time.Minute, KeyPrefix: "rl:session"}

	// Инициализируем роутер Gin
	router := gin.Default()

	// В production не доверяем прокси-заголовкам (защита от IP spoofing)
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS (тот же список используется для WebSocket)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "active_sessions": sessionManager.Count()})
	})

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		// Аутентификация
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", rateLimiter.Limit(authLimit), authHandler.Register)
			authGroup.POST("/login", rateLimiter.Limit(authLimit), authHandler.Login)
			authGroup.POST("/ws-ticket", authMiddleware.RequireAuth(), authHandler.GetWSTicket)
		}

		// Пользователи
		users := api.Group("/users")
		users.Use(authMiddleware.RequireAuth())
		{
			users.GET("/me", authHandler.GetMe)
			users.PUT("/me", authHandler.UpdateMe)
		}

		// Тесты для студентов
		tests := api.Group("/tests")
		tests.Use(authMiddleware.RequireAuth(), authMiddleware.StudentOnly())
		{
			tests.GET("/available", testHandler.GetAvailableTests)
			tests.GET("/:id", middleware.ExtractUintParam("id", "testID"), testHandler.GetTestForStudent)
		}

		// Прохождение тестов
		sessions := api.Group("/sessions")
		sessions.Use(authMiddleware.RequireAuth(), authMiddleware.StudentOnly(), rateLimiter.LimitByUser(sessionLimit))
		{
			sessions.POST("", sessionHandler.StartSession)
			sessions.GET("/active", sessionHandler.ListActive)

			sessionWithID := sessions.Group("/:sessionID")
			sessionWithID.Use(middleware.ExtractUUIDParam("sessionID", "sessionID"))
			{
				sessionWithID.GET("", sessionHandler.GetSession)
				sessionWithID.POST("/answer", sessionHandler.SelectAnswer)
				sessionWithID.POST("/advance", sessionHandler.Advance)
				sessionWithID.POST("/submit", sessionHandler.Submit)
				sessionWithID.POST("/retry-save", sessionHandler.RetrySave)
				sessionWithID.POST("/cancel", sessionHandler.Cancel)
			}
		}

		// Результаты
		results := api.Group("/results")
		results.Use(authMiddleware.RequireAuth())
		{
			results.GET("/me", authMiddleware.StudentOnly(), resultHandler.GetMyResults)
			results.GET("/me/stats", authMiddleware.StudentOnly(), resultHandler.GetMyStats)
			results.GET("/me/report", authMiddleware.StudentOnly(), reportHandler.GetMyReport)
			results.GET("/user/:username", resultHandler.GetResultsByUsername)
			results.GET("/:id", middleware.ExtractUintParam("id", "resultID"), resultHandler.GetResult)
		}

		// Панель сотрудника
		staff := api.Group("/staff")
		staff.Use(authMiddleware.RequireAuth(), authMiddleware.StaffOnly())
		{
			staff.GET("/dashboard", resultHandler.GetDashboard)
			staff.GET("/results", resultHandler.ListResults)
			staff.GET("/results/export", exportHandler.ExportResults)
			staff.GET("/users/:id/report", middleware.ExtractUintParam("id", "userID"), reportHandler.GetStudentReport)
			staff.GET("/ws/metrics", wsHandler.GetMetrics)

			staff.POST("/tests", testHandler.CreateTest)
			staff.GET("/tests", testHandler.ListTests)

			testWithID := staff.Group("/tests/:id")
			testWithID.Use(middleware.ExtractUintParam("id", "testID"))
			{
				testWithID.GET("", testHandler.GetTest)
				testWithID.PUT("", testHandler.UpdateTest)
				testWithID.PATCH("/status", testHandler.UpdateStatus)
				testWithID.POST("/duplicate", testHandler.DuplicateTest)
				testWithID.DELETE("", testHandler.DeleteTest)
				testWithID.GET("/statistics", testHandler.GetTestStatistics)
			}
		}
	}

	// WebSocket маршрут
	router.GET("/ws", wsHandler.HandleConnection)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Сессии останавливаем после HTTP, чтобы не принимать новые ответы
	sessionManager.Shutdown()
	wsHub.Close()
	resultService.WaitNotifications()

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}
	if sqlDB, err := database.GetSQLDB(db); err == nil {
		sqlDB.Close()
	}

	log.Println("Server exited properly")
}
