package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Exam          ExamConfig
	Notifications NotificationsConfig
	CORS          CORSConfig      `mapstructure:"cors"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	Addrs []string `mapstructure:"addrs"`

	// Addr: Адрес для режима 'single', используется если Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"` // мс
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"` // мс
}

// JWTConfig содержит настройки JWT
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	ExpirationHrs     int    `mapstructure:"expirationHrs"`
	WSTicketExpirySec int    `mapstructure:"wsTicketExpirySec"`
	// StaffInviteCode требуется при регистрации сотрудника. Пустое значение отключает проверку.
	StaffInviteCode string `mapstructure:"staff_invite_code"`
}

// ExamConfig содержит настройки сессий прохождения тестов
type ExamConfig struct {
	TickIntervalMs       int `mapstructure:"tick_interval_ms"`
	SaveTimeoutSec       int `mapstructure:"save_timeout_sec"`
	RetainFinishedMin    int `mapstructure:"retain_finished_min"`
	AvailableCacheTTLSec int `mapstructure:"available_cache_ttl_sec"`
}

// TickInterval возвращает период тика обратного отсчета
func (e ExamConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalMs) * time.Millisecond
}

// SaveTimeout возвращает таймаут сохранения результата
func (e ExamConfig) SaveTimeout() time.Duration {
	return time.Duration(e.SaveTimeoutSec) * time.Second
}

// RetainFinished возвращает, сколько завершенная сессия хранится в памяти
func (e ExamConfig) RetainFinished() time.Duration {
	return time.Duration(e.RetainFinishedMin) * time.Minute
}

// AvailableCacheTTL возвращает TTL кеша доступных тестов
func (e ExamConfig) AvailableCacheTTL() time.Duration {
	return time.Duration(e.AvailableCacheTTLSec) * time.Second
}

// NotificationsConfig содержит настройки email-уведомлений о результатах
type NotificationsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// CORSConfig содержит список разрешенных origin (используется и для WebSocket)
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig содержит настройки ограничения запросов к auth endpoints
type RateLimitConfig struct {
	AuthMaxRequests int `mapstructure:"auth_max_requests"`
	AuthWindowSec   int `mapstructure:"auth_window_sec"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Отдельный экземпляр, без глобального состояния

	setDefaults(vip)

	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")
	vip.BindEnv("database.migrations_path", "DATABASE_MIGRATIONS_PATH")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции JWT
	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.expirationHrs", "JWT_EXPIRATIONHRS")
	vip.BindEnv("jwt.wsTicketExpirySec", "JWT_WSTICKETEXPIRYSEC")
	vip.BindEnv("jwt.staff_invite_code", "STAFF_INVITE_CODE")

	// Привязка для секции Exam
	vip.BindEnv("exam.tick_interval_ms", "EXAM_TICK_INTERVAL_MS")
	vip.BindEnv("exam.save_timeout_sec", "EXAM_SAVE_TIMEOUT_SEC")

	// Уведомления
	vip.BindEnv("notifications.enabled", "NOTIFICATIONS_ENABLED")
	vip.BindEnv("notifications.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("notifications.from", "NOTIFICATIONS_FROM")

	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("GIN_MODE", "GIN_MODE")
	vip.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Отсутствие файла не критично: значения могут прийти из env
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Port: %s", cfg.Database.Port)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("JWT Expiration Hours: %d", cfg.JWT.ExpirationHrs)
		log.Printf("Exam Tick Interval: %v", cfg.Exam.TickInterval())
		log.Printf("Notifications Enabled: %t", cfg.Notifications.Enabled)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	if err := cfg.validate(vip.GetString("GIN_MODE")); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readtimeout", 15)
	vip.SetDefault("server.writetimeout", 30)
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrations_path", "file://migrations")
	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("jwt.expirationHrs", 24)
	vip.SetDefault("jwt.wsTicketExpirySec", 60)
	vip.SetDefault("exam.tick_interval_ms", 1000)
	vip.SetDefault("exam.save_timeout_sec", 10)
	vip.SetDefault("exam.retain_finished_min", 30)
	vip.SetDefault("exam.available_cache_ttl_sec", 60)
	vip.SetDefault("notifications.from", "JMC-TEST <noreply@jmc-test.local>")
	vip.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	vip.SetDefault("rate_limit.auth_max_requests", 10)
	vip.SetDefault("rate_limit.auth_window_sec", 60)
}

// validate проверяет обязательные параметры
func (cfg *Config) validate(ginMode string) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required in config (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Exam.TickIntervalMs <= 0 {
		return fmt.Errorf("exam.tick_interval_ms must be positive, got %d", cfg.Exam.TickIntervalMs)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.ResendAPIKey == "" {
		return fmt.Errorf("notifications are enabled but RESEND_API_KEY is not set")
	}
	// Не debug считаем production-like
	if ginMode != "debug" && cfg.Database.Password == "" {
		return fmt.Errorf("database password is required in production mode (check DATABASE_PASSWORD env var)")
	}
	return nil
}
