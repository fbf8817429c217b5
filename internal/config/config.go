package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env         string `yaml:"env" env:"APP_ENV"`
	BaseURL     string `yaml:"base_url" env:"BASE_URL"`
	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL"`
	HTTPServer  `yaml:"http_server" envPrefix:"HTTP_SERVER_"`
	Storage     Storage `yaml:"storage" envPrefix:"STORAGE_"`
	Postgres    `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite      SQLite    `yaml:"sqlite" envPrefix:"SQLITE_"`
	Cache       Cache     `yaml:"cache" envPrefix:"CACHE_"`
	Slug        Slug      `yaml:"slug" envPrefix:"SLUG_"`
	Resolver    Resolver  `yaml:"resolver" envPrefix:"RESOLVER_"`
	Analytics   Analytics `yaml:"analytics" envPrefix:"ANALYTICS_"`
	Log         Log       `yaml:"log" envPrefix:"LOG_"`
}

type HTTPServer struct {
	Port           int           `yaml:"port" env:"PORT"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`
	CertFile       string        `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile        string        `yaml:"key_file" env:"KEY_FILE"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Storage struct {
	Driver string `yaml:"driver" env:"DRIVER"`
}

type Postgres struct {
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	DB              string        `yaml:"db" env:"DB"`
	SSLMode         string        `yaml:"sslmode" env:"SSLMODE"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	ConnectAttempts int           `yaml:"connect_attempts" env:"CONNECT_ATTEMPTS"`
	MigrationsPath  string        `yaml:"migrations_path" env:"MIGRATIONS_PATH"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
	ConnectAttempts: 5,
	MigrationsPath:  "file://migrations",
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type SQLite struct {
	Path string `yaml:"path" env:"PATH"`
}

type Cache struct {
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
}

type Slug struct {
	Length      int `yaml:"length" env:"LENGTH"`
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

type Resolver struct {
	StoreTimeout time.Duration `yaml:"store_timeout" env:"STORE_TIMEOUT"`
}

type Analytics struct {
	Workers     int           `yaml:"workers" env:"WORKERS"`
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
}

type Log struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// Load reads the YAML config file at path on top of the defaults and then
// applies environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	var cfg Config
	setDefaults(&cfg)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to parse environment: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.BaseURL == "" {
		problems = append(problems, "base_url is required")
	}

	if c.Slug.Length <= 0 {
		problems = append(problems, "slug.length must be positive")
	}

	if c.Cache.MaxEntries <= 0 {
		problems = append(problems, "cache.max_entries must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.BaseURL = "http://localhost:8080"
	cfg.FrontendURL = "http://localhost:5173"
	cfg.HTTPServer = defaultHTTPServer
	cfg.Storage = Storage{Driver: DriverPostgres}
	cfg.Postgres = defaultPostgres
	cfg.SQLite = SQLite{Path: "shortlink.db"}
	cfg.Cache = Cache{DefaultTTL: 5 * time.Minute, MaxEntries: 1000}
	cfg.Slug = Slug{Length: 8, MaxAttempts: 10}
	cfg.Resolver = Resolver{StoreTimeout: 2 * time.Second}
	cfg.Analytics = Analytics{Workers: 4, QueueSize: 1024, TaskTimeout: 5 * time.Second}
	cfg.Log = Log{Level: "info"}
}
