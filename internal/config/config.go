package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory    = "memory"
	BackendMySQL     = "mysql"
	BackendFirestore = "firestore"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Firestore FirestoreConfig
	Ledger    LedgerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Backend string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// MinRetryAttempts is the smallest attempt budget: a conflict always gets
// at least one retry before it reaches the caller.
const MinRetryAttempts = 2

type LedgerConfig struct {
	MaxRetryAttempts int
	TxTimeout        time.Duration
	BaseBackoff      time.Duration
}

type LogConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from the environment, optionally layered over a
// YAML file. Environment variables win over file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "stockledger")
	v.SetDefault("DB_PASSWORD", "secret")
	v.SetDefault("DB_NAME", "stockledger")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DB_MIGRATE", true)
	v.SetDefault("FIRESTORE_PROJECT_ID", "")
	v.SetDefault("FIRESTORE_CREDENTIALS_FILE", "")
	v.SetDefault("LEDGER_MAX_RETRY_ATTEMPTS", 3)
	v.SetDefault("LEDGER_TX_TIMEOUT", "5s")
	v.SetDefault("LEDGER_BASE_BACKOFF", "100ms")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	durations := make(map[string]time.Duration)
	for _, key := range []string{
		"SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_SHUTDOWN_TIMEOUT",
		"DB_CONN_MAX_LIFETIME", "LEDGER_TX_TIMEOUT", "LEDGER_BASE_BACKOFF",
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", key, err)
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     durations["SERVER_READ_TIMEOUT"],
			WriteTimeout:    durations["SERVER_WRITE_TIMEOUT"],
			ShutdownTimeout: durations["SERVER_SHUTDOWN_TIMEOUT"],
		},
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("STORE_BACKEND")),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: durations["DB_CONN_MAX_LIFETIME"],
			Migrate:         v.GetBool("DB_MIGRATE"),
		},
		Firestore: FirestoreConfig{
			ProjectID:       v.GetString("FIRESTORE_PROJECT_ID"),
			CredentialsFile: v.GetString("FIRESTORE_CREDENTIALS_FILE"),
		},
		Ledger: LedgerConfig{
			MaxRetryAttempts: v.GetInt("LEDGER_MAX_RETRY_ATTEMPTS"),
			TxTimeout:        durations["LEDGER_TX_TIMEOUT"],
			BaseBackoff:      durations["LEDGER_BASE_BACKOFF"],
		},
		Log: LogConfig{
			Level:    v.GetString("LOG_LEVEL"),
			Encoding: v.GetString("LOG_ENCODING"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendMySQL:
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if c.Ledger.MaxRetryAttempts < MinRetryAttempts {
		return fmt.Errorf("LEDGER_MAX_RETRY_ATTEMPTS must be at least %d", MinRetryAttempts)
	}

	return nil
}
