package main

import (
	"fmt"
	"os"

	"github.com/algorank/algorank-node/config"
	"github.com/algorank/algorank-node/db"
	"github.com/algorank/algorank-node/log"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the ledger node configuration
type Config struct {
	App      AppConfig
	API      APIConfig
	DB       DBConfig
	Registry RegistryConfig
	Log      LogConfig
	Datadir  string
}

// AppConfig selects the application served
type AppConfig struct {
	ID uint64 `mapstructure:"id"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	NoRequestLog bool   `mapstructure:"norequestlog"`
}

// DBConfig selects the storage backend
type DBConfig struct {
	Type string `mapstructure:"type"`
}

// RegistryConfig holds the ballot registry policies
type RegistryConfig struct {
	LockVerifier bool `mapstructure:"lockverifier"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*Config, error) {
	v := viper.New()
	defaultDatadirPath := config.DefaultDatadir()

	v.SetDefault("app.id", config.DefaultAppID)
	v.SetDefault("api.host", config.DefaultAPIHost)
	v.SetDefault("api.port", config.DefaultAPIPort)
	v.SetDefault("api.norequestlog", false)
	v.SetDefault("db.type", config.DefaultDBType)
	v.SetDefault("registry.lockverifier", true)
	v.SetDefault("log.level", config.DefaultLogLevel)
	v.SetDefault("log.output", config.DefaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	fs := flag.NewFlagSet("algorank-ledger", flag.ContinueOnError)
	fs.Uint64("app.id", config.DefaultAppID, "application id served by the node")
	fs.StringP("api.host", "a", config.DefaultAPIHost, "API host")
	fs.IntP("api.port", "p", config.DefaultAPIPort, "API port")
	fs.Bool("api.norequestlog", false, "do not log API requests")
	fs.String("db.type", config.DefaultDBType,
		fmt.Sprintf("database backend (%s, %s or %s)", db.TypePebble, db.TypeLevelDB, db.TypeInMemory))
	fs.Bool("registry.lockverifier", true, "the first set_verifier call locks the verifier identity")
	fs.StringP("log.level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error, fatal)")
	fs.StringP("log.output", "o", config.DefaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.StringP("datadir", "d", defaultDatadirPath, "data directory for the database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "algorank-ledger v%s\n\n", config.Version)
		fmt.Fprintf(os.Stderr, "Usage: algorank-ledger [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, %s_API_PORT or %s_DB_TYPE\n", config.EnvPrefix, config.EnvPrefix)
	}

	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(config.EnvKeyReplacer())
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.App.ID == 0 {
		return fmt.Errorf("app id must not be zero")
	}
	switch cfg.DB.Type {
	case db.TypePebble, db.TypeLevelDB, db.TypeInMemory:
	default:
		return fmt.Errorf("invalid db type %q", cfg.DB.Type)
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", cfg.API.Port)
	}
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	return nil
}
