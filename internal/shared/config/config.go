package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Vault     VaultConfig
	Provider  ProviderConfig
	Sync      SyncConfig
	Exchange  ExchangeConfig
	Scheduler SchedulerConfig
	TLS       TLSConfig
	Firebase  FirebaseConfig
	Telemetry TelemetryConfig
	Listener  ListenerConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// MigrateOnStartup runs the idempotent schema bootstrap before serving.
	MigrateOnStartup bool
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

type VaultConfig struct {
	MasterKey  string
	Iterations int
}

type ProviderConfig struct {
	BaseURL   string
	ClientID  string
	Secret    string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	MaxPages  int
}

type SyncConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	OwnerParallel   int
}

type ExchangeConfig struct {
	TTL time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type FirebaseConfig struct {
	CredentialsFile string
	// MessagesFile overrides the built-in notification texts.
	MessagesFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

type ListenerConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	sessionTTL, err := getDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	vaultIterations, err := getIntEnv("VAULT_ITERATIONS", 100_000)
	if err != nil {
		return nil, err
	}

	providerTimeout, err := getDurationEnv("PROVIDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	providerRPS, err := strconv.ParseFloat(getEnv("PROVIDER_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_RPS: %w", err)
	}
	providerBurst, err := getIntEnv("PROVIDER_BURST", 5)
	if err != nil {
		return nil, err
	}
	providerMaxPages, err := getIntEnv("PROVIDER_MAX_PAGES", 500)
	if err != nil {
		return nil, err
	}

	syncMaxAttempts, err := getIntEnv("SYNC_MAX_ATTEMPTS", 4)
	if err != nil {
		return nil, err
	}
	syncInitial, err := getDurationEnv("SYNC_INITIAL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	syncMax, err := getDurationEnv("SYNC_MAX_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	syncOwnerParallel, err := getIntEnv("SYNC_OWNER_PARALLEL", 3)
	if err != nil {
		return nil, err
	}

	exchangeTTL, err := getDurationEnv("EXCHANGE_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	// Parse scheduler configuration
	schedulerTimes := strings.Split(getEnv("SCHEDULER_TIMES", "05:00,10:00,14:00,20:00"), ",")
	schedulerWorkers, err := getIntEnv("SCHEDULER_WORKERS", 5)
	if err != nil {
		return nil, err
	}
	schedulerJobDelay, err := getDurationEnv("SCHEDULER_JOB_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	schedulerQueueSize, err := getIntEnv("SCHEDULER_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: splitList(getEnv("ALLOWED_HOSTS", "")),
		},
		Database: DatabaseConfig{
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             dbPort,
			User:             getEnv("DB_USER", "ledgersync"),
			Password:         getEnv("DB_PASSWORD", ""),
			DBName:           getEnv("DB_NAME", "ledgersync"),
			SSLMode:          getEnv("DB_SSLMODE", "disable"),
			MigrateOnStartup: getBoolEnv("DB_MIGRATE_ON_STARTUP", true),
		},
		Session: SessionConfig{
			Secret: getEnv("SESSION_SECRET", ""),
			TTL:    sessionTTL,
		},
		Vault: VaultConfig{
			MasterKey:  getEnv("VAULT_MASTER_KEY", ""),
			Iterations: vaultIterations,
		},
		Provider: ProviderConfig{
			BaseURL:   getEnv("PROVIDER_BASE_URL", "https://sandbox.plaid.com"),
			ClientID:  getEnv("PROVIDER_CLIENT_ID", ""),
			Secret:    getEnv("PROVIDER_SECRET", ""),
			Timeout:   providerTimeout,
			RateLimit: providerRPS,
			Burst:     providerBurst,
			MaxPages:  providerMaxPages,
		},
		Sync: SyncConfig{
			MaxAttempts:     syncMaxAttempts,
			InitialInterval: syncInitial,
			MaxInterval:     syncMax,
			OwnerParallel:   syncOwnerParallel,
		},
		Exchange: ExchangeConfig{
			TTL: exchangeTTL,
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			ScheduleTimes: schedulerTimes,
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		TLS: TLSConfig{
			Enabled:      getBoolEnv("TLS_ENABLED", false),
			CertPath:     getEnv("TLS_CERT_PATH", ""),
			KeyPath:      getEnv("TLS_KEY_PATH", ""),
			RedirectHTTP: getBoolEnv("TLS_REDIRECT_HTTP", false),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			MessagesFile:    getEnv("NOTIFICATION_MESSAGES_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "ledgersync"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		},
		Listener: ListenerConfig{
			Enabled: getBoolEnv("LEDGER_LISTENER_ENABLED", true),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.Vault.MasterKey == "" {
		return fmt.Errorf("VAULT_MASTER_KEY is required")
	}
	if len(c.Vault.MasterKey) < 32 {
		return fmt.Errorf("VAULT_MASTER_KEY must be at least 32 bytes for AES-256")
	}
	if c.Vault.Iterations < 1 {
		return fmt.Errorf("VAULT_ITERATIONS must be positive")
	}
	if c.Provider.RateLimit <= 0 {
		return fmt.Errorf("PROVIDER_RPS must be positive")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1")
	}
	if c.Exchange.TTL <= 0 {
		return fmt.Errorf("EXCHANGE_TTL must be positive")
	}

	if c.TLS.Enabled {
		if c.TLS.CertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if c.TLS.KeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
