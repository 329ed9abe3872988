package server

import (
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"maintenance/internal/domain/errors"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultJWTSecret is the signing secret used when none is configured. It is
// public, so tokens signed with it can be forged.
const DefaultJWTSecret = "shouldbeinVaultsecret"

type Config struct {
	Addr            string        `yaml:"addr" json:"addr" env:"ADDR" env-default:"0.0.0.0"`
	Port            int           `yaml:"port" json:"port" env:"PORT" env-default:"8080"`
	DBStr           string        `yaml:"db_str" json:"db_str" env:"DB_STR"`
	MigratePath     string        `yaml:"migrate_path" json:"migrate_path" env:"MIGRATE_PATH" env-default:"migrations"`
	JWTSecret       string        `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET" env-default:"shouldbeinVaultsecret"`
	TokenTTL        time.Duration `yaml:"token_ttl" json:"token_ttl" env:"TOKEN_TTL" env-default:"1h"`
	BcryptCost      int           `yaml:"bcrypt_cost" json:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
	LogLevel        string        `yaml:"log_level" json:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

func (c *Config) UsesDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// ReadConfig loads configuration for the running process from os.Args.
func ReadConfig() (*Config, error) {
	return LoadConfig(os.Args[1:])
}

// LoadConfig resolves configuration in increasing priority: defaults,
// config file (-c or CONFIG), environment, DB_* parts, command-line flags.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configFile  = fs.String("c", "", "path to a YAML or JSON config file")
		addr        = fs.String("addr", "", "listen address")
		port        = fs.Int("port", 0, "listen port")
		dbstr       = fs.String("dbstr", "", "database connection string")
		dbDsn       = fs.String("dbdsn", "", "database DSN (takes precedence over -dbstr)")
		migratePath = fs.String("migratepath", "", "migrations directory")
		logLevel    = fs.String("loglevel", "", "log level: DEBUG, INFO, WARN, ERROR")
	)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrConfigInvalidFormat, err)
	}

	cfg := &Config{}
	path := *configFile
	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if err := readConfigSource(path, cfg); err != nil {
		return nil, err
	}

	applyDBParts(cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "port":
			cfg.Port = *port
		case "dbstr":
			if *dbDsn == "" {
				cfg.DBStr = *dbstr
			}
		case "dbdsn":
			cfg.DBStr = *dbDsn
		case "migratepath":
			cfg.MigratePath = *migratePath
		case "loglevel":
			cfg.LogLevel = *logLevel
		}
	})

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port must be between 1 and 65535, got %d", errors.ErrConfigInvalidFormat, cfg.Port)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("%w: token_ttl must be positive", errors.ErrConfigInvalidFormat)
	}
	return cfg, nil
}

// readConfigSource reads the file when one is named; a missing file falls
// back to the environment alone.
func readConfigSource(path string, cfg *Config) error {
	if path != "" {
		err := cleanenv.ReadConfig(path, cfg)
		if err == nil {
			return nil
		}
		var pe *os.PathError
		if !stderrors.As(err, &pe) {
			return fmt.Errorf("%w %s: %v", errors.ErrConfigFileReadFailed, path, err)
		}
		*cfg = Config{}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigInvalidFormat, err)
	}
	return nil
}

func applyDBParts(cfg *Config) {
	if cfg.DBStr != "" {
		return
	}
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	if dbUser != "" && dbPassword != "" && dbName != "" && dbHost != "" && dbPort != "" {
		cfg.DBStr = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, dbHost, dbPort, dbName)
	}
}
