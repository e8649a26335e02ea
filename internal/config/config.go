package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is read when Load is given an empty path. It may be absent.
const ConfigPath = "config.yaml"

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	Port     string        `yaml:"port"`
	LogLevel string        `yaml:"logLevel"`
	Storage  StorageConfig `yaml:"storage"`
	Valkey   ValkeyConfig  `yaml:"valkey"`
	Auth     AuthConfig    `yaml:"auth"`
	CORS     CORSConfig    `yaml:"cors"`
	Socket   SocketConfig  `yaml:"socket"`
	Users    []SeedUser    `yaml:"users"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"databaseURL"`
	SQLitePath  string `yaml:"sqlitePath"`
}

// ValkeyConfig enables last-seen tracking when Addr is set.
type ValkeyConfig struct {
	Addr        string `yaml:"addr"`
	LastSeenTTL string `yaml:"lastSeenTTL"`
}

type AuthConfig struct {
	JWTKey string `yaml:"jwtKey"`
	// RequireSocketToken disables the userId query fallback on the socket handshake.
	// It defaults to true and only applies when JWTKey is set.
	RequireSocketToken bool `yaml:"requireSocketToken"`
}

type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// SeedUser is provisioned at startup. A non-empty Role replaces the stored one.
type SeedUser struct {
	ID        string `yaml:"id"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
	Role      string `yaml:"role"`
}

type SocketConfig struct {
	EventTimeout string `yaml:"eventTimeout"`
	SendBuffer   int    `yaml:"sendBuffer"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:     "4000",
		LogLevel: "info",
		Storage:  StorageConfig{Driver: DriverMemory, SQLitePath: "scenyx.db"},
		Auth:     AuthConfig{RequireSocketToken: true},
		CORS: CORSConfig{Origins: []string{
			"http://localhost:5173",
			"http://localhost:5174",
			"http://localhost:3000",
		}},
		Socket: SocketConfig{EventTimeout: "10s", SendBuffer: 128},
	}
}

// Load reads .env, then the YAML file at path (defaults to config.yaml), then
// environment overrides, and validates the result.
func Load(path string) (FileConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return FileConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		cfg.Valkey.Addr = v
	}
	if v := os.Getenv("JWT_KEY"); v != "" {
		cfg.Auth.JWTKey = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.Origins = origins
	}
	if v := os.Getenv("SOCKET_REQUIRE_TOKEN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SOCKET_REQUIRE_TOKEN: %w", err)
		}
		cfg.Auth.RequireSocketToken = b
	}
	if v := os.Getenv("SOCKET_EVENT_TIMEOUT"); v != "" {
		cfg.Socket.EventTimeout = v
	}
	return nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.Storage.DatabaseURL == "" {
			return errors.New("config: storage.databaseURL is required for postgres (set in config.yaml or DATABASE_URL)")
		}
	case DriverSQLite:
		if cfg.Storage.SQLitePath == "" {
			return errors.New("config: storage.sqlitePath is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", cfg.Storage.Driver)
	}
	if _, err := time.ParseDuration(cfg.Socket.EventTimeout); err != nil {
		return fmt.Errorf("config: socket.eventTimeout: %w", err)
	}
	if cfg.Valkey.LastSeenTTL != "" {
		ttl, err := time.ParseDuration(cfg.Valkey.LastSeenTTL)
		if err != nil {
			return fmt.Errorf("config: valkey.lastSeenTTL: %w", err)
		}
		// Expiry is set in whole seconds.
		if ttl < 0 || (ttl > 0 && ttl < time.Second) {
			return fmt.Errorf("config: valkey.lastSeenTTL must be 0 or at least 1s, got %s", ttl)
		}
	}
	if cfg.Socket.SendBuffer < 0 {
		return errors.New("config: socket.sendBuffer must not be negative")
	}
	for i, u := range cfg.Users {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("config: users[%d].id is required", i)
		}
		if u.Role != "" && !models.Role(u.Role).Valid() {
			return fmt.Errorf("config: users[%d].role: unknown role %q", i, u.Role)
		}
	}
	return nil
}

// EventTimeoutDuration is the per-event deadline for socket handlers.
func (c SocketConfig) EventTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.EventTimeout)
	return d
}

// LastSeenTTLDuration is zero when unset.
func (c ValkeyConfig) LastSeenTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.LastSeenTTL)
	return d
}
