package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "test-session-secret")
	t.Setenv("VAULT_MASTER_KEY", "01234567890123456789012345678901") // 32 bytes
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Session.Secret != "test-session-secret" {
		t.Errorf("Session.Secret = %q, want %q", cfg.Session.Secret, "test-session-secret")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.Vault.Iterations != 100_000 {
		t.Errorf("Vault.Iterations = %d, want 100000", cfg.Vault.Iterations)
	}
	if cfg.Sync.MaxAttempts != 4 {
		t.Errorf("Sync.MaxAttempts = %d, want 4", cfg.Sync.MaxAttempts)
	}
	if cfg.Exchange.TTL != 30*time.Minute {
		t.Errorf("Exchange.TTL = %v, want 30m", cfg.Exchange.TTL)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing session secret", map[string]string{"SESSION_SECRET": ""}},
		{"missing master key", map[string]string{"VAULT_MASTER_KEY": ""}},
		{"short master key", map[string]string{"VAULT_MASTER_KEY": "too-short"}},
		{"bad db port", map[string]string{"DB_PORT": "not-a-number"}},
		{"bad attempts", map[string]string{"SYNC_MAX_ATTEMPTS": "many"}},
		{"zero attempts", map[string]string{"SYNC_MAX_ATTEMPTS": "0"}},
		{"bad rps", map[string]string{"PROVIDER_RPS": "fast"}},
		{"zero rps", map[string]string{"PROVIDER_RPS": "0"}},
		{"bad exchange ttl", map[string]string{"EXCHANGE_TTL": "soon"}},
		{"negative exchange ttl", map[string]string{"EXCHANGE_TTL": "-1m"}},
		{"bad session ttl", map[string]string{"SESSION_TTL": "1 day"}},
		{"negative iterations", map[string]string{"VAULT_ITERATIONS": "-1"}},
		{"tls without cert", map[string]string{"TLS_ENABLED": "true", "TLS_KEY_PATH": "/k"}},
		{"tls without key", map[string]string{"TLS_ENABLED": "true", "TLS_CERT_PATH": "/c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnvVars(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := Load(); err == nil {
				t.Errorf("Load() accepted %v", tt.env)
			}
		})
	}
}

func TestLoad_LongMasterKeyAccepted(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("VAULT_MASTER_KEY", "0123456789012345678901234567890123456789")

	if _, err := Load(); err != nil {
		t.Errorf("Load() rejected a 40 byte master key: %v", err)
	}
}

func TestLoad_ProviderAndSync(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("PROVIDER_BASE_URL", "https://provider.test")
	t.Setenv("PROVIDER_RPS", "2.5")
	t.Setenv("PROVIDER_MAX_PAGES", "50")
	t.Setenv("SYNC_INITIAL_INTERVAL", "250ms")
	t.Setenv("SYNC_OWNER_PARALLEL", "8")
	t.Setenv("LEDGER_LISTENER_ENABLED", "no")
	t.Setenv("NOTIFICATION_MESSAGES_FILE", "/etc/ledgersync/messages.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Provider.BaseURL != "https://provider.test" || cfg.Provider.RateLimit != 2.5 || cfg.Provider.MaxPages != 50 {
		t.Errorf("Unexpected provider config %+v", cfg.Provider)
	}
	if cfg.Sync.InitialInterval != 250*time.Millisecond || cfg.Sync.OwnerParallel != 8 {
		t.Errorf("Unexpected sync config %+v", cfg.Sync)
	}
	if cfg.Listener.Enabled {
		t.Error("Listener should be disabled")
	}
	if cfg.Firebase.MessagesFile != "/etc/ledgersync/messages.json" {
		t.Errorf("MessagesFile = %q", cfg.Firebase.MessagesFile)
	}
}

func TestLoad_AllowedHosts(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("ALLOWED_HOSTS", "example.com, api.example.com, localhost:3000,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Server.AllowedHosts) != 3 {
		t.Errorf("AllowedHosts length = %d, want 3", len(cfg.Server.AllowedHosts))
	}
}

func TestLoad_SchedulerConfig(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_WORKERS", "10")
	t.Setenv("SCHEDULER_RUN_ON_STARTUP", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scheduler.Enabled != false {
		t.Error("Scheduler.Enabled should be false")
	}
	if cfg.Scheduler.WorkerCount != 10 {
		t.Errorf("Scheduler.WorkerCount = %d, want 10", cfg.Scheduler.WorkerCount)
	}
	if cfg.Scheduler.RunOnStartup != true {
		t.Error("Scheduler.RunOnStartup should be true")
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"NO", true, false},
		{"invalid", true, true},
		{"invalid", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			key := "TEST_BOOL_ENV"
			if tt.value == "" {
				os.Unsetenv(key)
			} else {
				t.Setenv(key, tt.value)
			}

			got := getBoolEnv(key, tt.defVal)
			if got != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defVal, got, tt.expected)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	got := cfg.ConnectionString()
	if got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}
