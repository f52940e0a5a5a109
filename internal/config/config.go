package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "BETTERNOTES"
	defaultStorageDir   = "notes"
	defaultDatabasePath = "betternotes.db"
	defaultHTTPAddress  = "127.0.0.1:1420"
	defaultLogLevel     = "info"
	defaultLogEncoding  = "console"
)

const (
	// StorageDriverFiles keeps one JSON file per note in a directory.
	StorageDriverFiles = "files"
	// StorageDriverSQLite keeps notes in a SQLite database.
	StorageDriverSQLite = "sqlite"

	// IDStrategyTimestamp issues millisecond wall-clock ids.
	IDStrategyTimestamp = "timestamp"
	// IDStrategyUUID issues UUIDv7 ids.
	IDStrategyUUID = "uuid"
)

// AppConfig captures runtime configuration for the notes application.
type AppConfig struct {
	StorageDriver      string
	StoragePath        string
	DatabasePath       string
	IDStrategy         string
	HTTPAddress        string
	HTTPAllowedOrigins []string
	LogLevel           string
	LogEncoding        string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetConfigName("betternotes")
	configViper.AddConfigPath(".")

	configViper.SetDefault("storage.driver", StorageDriverFiles)
	configViper.SetDefault("storage.path", defaultStorageDir)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("notes.id_strategy", IDStrategyTimestamp)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		StorageDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("storage.driver"))),
		StoragePath:        configViper.GetString("storage.path"),
		DatabasePath:       configViper.GetString("database.path"),
		IDStrategy:         strings.ToLower(strings.TrimSpace(configViper.GetString("notes.id_strategy"))),
		HTTPAddress:        configViper.GetString("http.address"),
		HTTPAllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
		LogLevel:           configViper.GetString("log.level"),
		LogEncoding:        configViper.GetString("log.encoding"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.StorageDriver {
	case StorageDriverFiles:
		if strings.TrimSpace(c.StoragePath) == "" {
			return fmt.Errorf("storage.path is required for the %s driver", StorageDriverFiles)
		}
	case StorageDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the %s driver", StorageDriverSQLite)
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.StorageDriver)
	}

	switch c.IDStrategy {
	case IDStrategyTimestamp, IDStrategyUUID:
	default:
		return fmt.Errorf("notes.id_strategy %q is not supported", c.IDStrategy)
	}

	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	return nil
}
