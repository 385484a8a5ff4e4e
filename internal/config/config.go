package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/scenario-resimulator/internal/logging"
	"github.com/signalsfoundry/scenario-resimulator/internal/observability"
)

// Store backends.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the scenario server configuration.
type Config struct {
	HTTPAddr    string `env:"SCENARIO_HTTP_ADDR" envDefault:":5000"`
	MetricsAddr string `env:"SCENARIO_METRICS_ADDR" envDefault:":9090"`

	StoreBackend string `env:"SCENARIO_STORE_BACKEND" envDefault:"fs"`
	StoreRoot    string `env:"SCENARIO_STORE_ROOT" envDefault:"uploaded_models"`
	SQLitePath   string `env:"SCENARIO_SQLITE_PATH" envDefault:"uploaded_models/scenarios.db"`

	MaxUploadBytes int64  `env:"SCENARIO_MAX_UPLOAD_BYTES" envDefault:"33554432"`
	MaxSavePoints  int    `env:"SCENARIO_MAX_SAVE_POINTS" envDefault:"1000000"`
	CORSOrigin     string `env:"SCENARIO_CORS_ORIGIN" envDefault:"*"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Tracing Tracing
}

// Tracing holds the OpenTelemetry settings.
type Tracing struct {
	Enabled     bool    `env:"SCENARIO_TRACING_ENABLED" envDefault:"false"`
	Exporter    string  `env:"SCENARIO_TRACING_EXPORTER" envDefault:"stdout"`
	ServiceName string  `env:"SCENARIO_TRACING_SERVICE_NAME" envDefault:"scenario-server"`
	SampleRatio float64 `env:"SCENARIO_TRACING_SAMPLE_RATIO" envDefault:"1"`
	Endpoint    string  `env:"SCENARIO_OTLP_ENDPOINT"`
}

// Load reads the environment, then applies command-line flags from args on
// top of it. Usage output goes to errOut.
func Load(name string, args []string, errOut io.Writer) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "TCP address the HTTP API listens on")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "scenario store backend: fs, sqlite or memory")
	fs.StringVar(&cfg.StoreRoot, "store-root", cfg.StoreRoot, "directory holding uploaded models (fs backend)")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "database file (sqlite backend)")
	fs.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", cfg.MaxUploadBytes, "largest accepted multipart upload")
	fs.IntVar(&cfg.MaxSavePoints, "max-save-points", cfg.MaxSavePoints, "largest number of rows a run may record (0 = unlimited)")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "Access-Control-Allow-Origin value (empty disables CORS)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	switch c.StoreBackend {
	case BackendFS:
		if c.StoreRoot == "" {
			errs = append(errs, errors.New("store root is required for the fs backend"))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required for the sqlite backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.MaxSavePoints < 0 {
		errs = append(errs, fmt.Errorf("max save points must not be negative, got %d", c.MaxSavePoints))
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("tracing sample ratio must be within [0,1], got %v", r))
	}
	return errors.Join(errs...)
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat, AddSource: true}
}

// TracingConfig returns the tracer provider settings.
func (c Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    strings.ToLower(c.Tracing.Exporter),
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
