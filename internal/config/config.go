package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"flood-platform/internal/boundary"
)

// Config holds the full runtime configuration, loaded from environment
// variables (with .env support) plus a YAML boundary definitions file.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Simulation SimulationConfig
	Domain     DomainConfig
	Device     DeviceConfig
	Boundary   BoundaryConfig
}

// ServerConfig configures the monitoring HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig configures the raster archive connection.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string
}

// SimulationConfig configures the simulation clock.
type SimulationConfig struct {
	LengthSeconds   float64
	TimestepSeconds float64
	Start           time.Time
}

// DomainConfig describes the simulation cell grid.
type DomainConfig struct {
	Rows        uint64
	Cols        uint64
	Resolution  float64
	ExtentNorth float64
	ExtentEast  float64
	ExtentSouth float64
	ExtentWest  float64
}

// DeviceConfig selects the compute backend.
type DeviceConfig struct {
	// Backend is "opencl" or "memory".
	Backend string
	// Precision is "single" or "double".
	Precision string
	// KernelSourcePath points at the OpenCL program source.
	KernelSourcePath string
}

// BoundaryConfig locates the boundary forcing inputs.
type BoundaryConfig struct {
	// Source is "file" or "archive".
	Source string
	// SourceDir is the raster directory for the file source.
	SourceDir string
	// DefinitionsPath is the YAML file listing boundary definitions.
	DefinitionsPath string
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is honored when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "flood"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "flood_platform"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Simulation: SimulationConfig{
			LengthSeconds:   getEnvFloat("SIM_LENGTH_SECONDS", 3600),
			TimestepSeconds: getEnvFloat("SIM_TIMESTEP_SECONDS", 1),
		},
		Domain: DomainConfig{
			Rows:        uint64(getEnvInt("DOMAIN_ROWS", 100)),
			Cols:        uint64(getEnvInt("DOMAIN_COLS", 100)),
			Resolution:  getEnvFloat("DOMAIN_RESOLUTION", 2),
			ExtentNorth: getEnvFloat("DOMAIN_EXTENT_NORTH", 200),
			ExtentEast:  getEnvFloat("DOMAIN_EXTENT_EAST", 200),
			ExtentSouth: getEnvFloat("DOMAIN_EXTENT_SOUTH", 0),
			ExtentWest:  getEnvFloat("DOMAIN_EXTENT_WEST", 0),
		},
		Device: DeviceConfig{
			Backend:          getEnv("DEVICE_BACKEND", "opencl"),
			Precision:        getEnv("DEVICE_PRECISION", "double"),
			KernelSourcePath: getEnv("DEVICE_KERNEL_SOURCE", "kernels/boundaries.cl"),
		},
		Boundary: BoundaryConfig{
			Source:          getEnv("BOUNDARY_SOURCE", "file"),
			SourceDir:       getEnv("BOUNDARY_SOURCE_DIR", "./rasters"),
			DefinitionsPath: getEnv("BOUNDARY_DEFINITIONS", "boundaries.yaml"),
		},
	}

	start := getEnv("SIM_START", "")
	if start == "" {
		cfg.Simulation.Start = time.Now().UTC().Truncate(time.Second)
	} else {
		ts, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, fmt.Errorf("invalid SIM_START %q: %w", start, err)
		}
		cfg.Simulation.Start = ts.UTC()
	}

	return cfg, nil
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Simulation.LengthSeconds <= 0 {
		return fmt.Errorf("simulation length must be positive, got %v", c.Simulation.LengthSeconds)
	}
	if c.Simulation.TimestepSeconds <= 0 {
		return fmt.Errorf("simulation timestep must be positive, got %v", c.Simulation.TimestepSeconds)
	}
	if c.Domain.Rows == 0 || c.Domain.Cols == 0 {
		return fmt.Errorf("domain dimensions must be positive, got %dx%d", c.Domain.Rows, c.Domain.Cols)
	}
	switch c.Device.Backend {
	case "opencl", "memory":
	default:
		return fmt.Errorf("unknown device backend %q, supported are: opencl, memory", c.Device.Backend)
	}
	switch c.Device.Precision {
	case "single", "double":
	default:
		return fmt.Errorf("unknown device precision %q, supported are: single, double", c.Device.Precision)
	}
	switch c.Boundary.Source {
	case "file", "archive":
	default:
		return fmt.Errorf("unknown boundary source %q, supported are: file, archive", c.Boundary.Source)
	}
	return nil
}

// boundaryFile mirrors the YAML boundary definitions document.
type boundaryFile struct {
	Boundaries []boundary.Definition `yaml:"boundaries"`
}

// LoadBoundaryDefinitions reads the boundary definitions YAML file.
func LoadBoundaryDefinitions(path string) ([]boundary.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boundary definitions: %w", err)
	}

	var doc boundaryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse boundary definitions: %w", err)
	}

	for i, def := range doc.Boundaries {
		if def.Name == "" {
			// Boundaries need unique names for buffer labels; autoname.
			doc.Boundaries[i].Name = fmt.Sprintf("boundary_%d", i)
		}
	}
	return doc.Boundaries, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback.
func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback.
func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration retrieves a duration environment variable with a fallback.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
