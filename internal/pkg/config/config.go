package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Patrol     PatrolConfig     `mapstructure:"patrol"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Imagery    ImageryConfig    `mapstructure:"imagery"`
	Detections DetectionsConfig `mapstructure:"detections"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	CORSOrigins  string `mapstructure:"cors_origins"`
	RateLimit    int    `mapstructure:"rate_limit"` // requests per minute per IP
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PatrolConfig describes the corridor and the scheduler cadences.
type PatrolConfig struct {
	StartLat           float64 `mapstructure:"start_lat"`
	StartLng           float64 `mapstructure:"start_lng"`
	EndLat             float64 `mapstructure:"end_lat"`
	EndLng             float64 `mapstructure:"end_lng"`
	ForwardHeading     float64 `mapstructure:"forward_heading"`
	SpeedKmh           float64 `mapstructure:"speed_kmh"`
	TickIntervalMs     int     `mapstructure:"tick_interval_ms"`
	AnalysisPeriod     int     `mapstructure:"analysis_period"`
	ImageRefreshPeriod int     `mapstructure:"image_refresh_period"`
	FootprintKm        float64 `mapstructure:"footprint_km"`
	RegionMinLat       float64 `mapstructure:"region_min_lat"`
	RegionMinLng       float64 `mapstructure:"region_min_lng"`
	RegionMaxLat       float64 `mapstructure:"region_max_lat"`
	RegionMaxLng       float64 `mapstructure:"region_max_lng"`
	DataRateBaseline   float64 `mapstructure:"data_rate_baseline"`
	DataRateJitter     float64 `mapstructure:"data_rate_jitter"`
	Autostart          bool    `mapstructure:"autostart"`
}

func (p PatrolConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalMs) * time.Millisecond
}

// ClassifierConfig selects and tunes the classification backend.
type ClassifierConfig struct {
	Mode           string  `mapstructure:"mode"` // http or synthetic
	Endpoint       string  `mapstructure:"endpoint"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	TimeoutSec     int     `mapstructure:"timeout_sec"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	BaseDelayMs    int     `mapstructure:"base_delay_ms"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"`
	EmptyChance    float64 `mapstructure:"empty_chance"` // synthetic only
	MaxPerScan     int     `mapstructure:"max_per_scan"` // synthetic only
	UseDefaultLand bool    `mapstructure:"use_default_land"`
}

type ImageryConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	Format     string `mapstructure:"format"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

type DetectionsConfig struct {
	HorizonSec  int `mapstructure:"horizon_sec"` // 0 keeps everything
	LogCapacity int `mapstructure:"log_capacity"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type ValkeyConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// ArchiveConfig configures the write-only detection archive.
type ArchiveConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Mode     string `mapstructure:"mode"` // direct or stream
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (a ArchiveConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		a.User, a.Password, a.Host, a.Port, a.DBName, a.SSLMode,
	)
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from .env, an optional config file and
// environment variables, in increasing order of precedence.
func Load(service string) (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: PATROLSCAN_CLASSIFIER_API_KEY → classifier.api_key
	v.SetEnvPrefix("PATROLSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("log.level", "PATROLSCAN_LOG_LEVEL", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.cors_origins", "http://localhost:3000, http://localhost:5173")
	v.SetDefault("server.rate_limit", 120)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Arctic corridor from Ellesmere Island to the Greenland Sea.
	v.SetDefault("patrol.start_lat", 83.0)
	v.SetDefault("patrol.start_lng", -70.0)
	v.SetDefault("patrol.end_lat", 70.0)
	v.SetDefault("patrol.end_lng", -20.0)
	v.SetDefault("patrol.forward_heading", 135.0)
	v.SetDefault("patrol.speed_kmh", 700.0)
	v.SetDefault("patrol.tick_interval_ms", 1000)
	v.SetDefault("patrol.analysis_period", 15)
	v.SetDefault("patrol.image_refresh_period", 5)
	v.SetDefault("patrol.footprint_km", 25.0)
	v.SetDefault("patrol.region_min_lat", 60.0)
	v.SetDefault("patrol.region_min_lng", -80.0)
	v.SetDefault("patrol.region_max_lat", 84.0)
	v.SetDefault("patrol.region_max_lng", -10.0)
	v.SetDefault("patrol.data_rate_baseline", 120.0)
	v.SetDefault("patrol.data_rate_jitter", 5.0)
	v.SetDefault("patrol.autostart", true)

	v.SetDefault("classifier.mode", "synthetic")
	v.SetDefault("classifier.endpoint", "")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.model", "vision-pollution-1")
	v.SetDefault("classifier.timeout_sec", 60)
	v.SetDefault("classifier.max_attempts", 3)
	v.SetDefault("classifier.base_delay_ms", 10000)
	v.SetDefault("classifier.max_delay_ms", 120000)
	v.SetDefault("classifier.empty_chance", 0.6)
	v.SetDefault("classifier.max_per_scan", 3)
	v.SetDefault("classifier.use_default_land", true)

	v.SetDefault("imagery.base_url", "https://services.arcgisonline.com/arcgis/rest/services/World_Imagery/MapServer/export")
	v.SetDefault("imagery.width", 512)
	v.SetDefault("imagery.height", 512)
	v.SetDefault("imagery.format", "jpg")
	v.SetDefault("imagery.timeout_sec", 15)

	v.SetDefault("detections.horizon_sec", 600)
	v.SetDefault("detections.log_capacity", 100)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.enabled", false)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.mode", "direct")
	v.SetDefault("archive.host", "localhost")
	v.SetDefault("archive.port", 5432)
	v.SetDefault("archive.user", "patrol")
	v.SetDefault("archive.password", "")
	v.SetDefault("archive.dbname", "patrolscan")
	v.SetDefault("archive.sslmode", "disable")
	v.SetDefault("archive.max_conns", 10)

	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	p := c.Patrol
	if !validLat(p.StartLat) || !validLat(p.EndLat) {
		errs = append(errs, "patrol start/end latitude must be within [-90, 90]")
	}
	if !validLng(p.StartLng) || !validLng(p.EndLng) {
		errs = append(errs, "patrol start/end longitude must be within [-180, 180]")
	}
	if p.SpeedKmh <= 0 {
		errs = append(errs, fmt.Sprintf("patrol.speed_kmh must be positive, got %v", p.SpeedKmh))
	}
	if p.TickIntervalMs <= 0 {
		errs = append(errs, "patrol.tick_interval_ms must be positive")
	}
	if p.AnalysisPeriod <= 0 {
		errs = append(errs, "patrol.analysis_period must be positive")
	}
	if p.ImageRefreshPeriod <= 0 {
		errs = append(errs, "patrol.image_refresh_period must be positive")
	}
	if p.FootprintKm <= 0 {
		errs = append(errs, "patrol.footprint_km must be positive")
	}
	if p.RegionMaxLat <= p.RegionMinLat || p.RegionMaxLng <= p.RegionMinLng {
		errs = append(errs, "patrol region bounds are empty")
	} else if !p.inRegion(p.StartLat, p.StartLng) || !p.inRegion(p.EndLat, p.EndLng) {
		errs = append(errs, "patrol start/end must lie inside the region bounds")
	}

	switch c.Classifier.Mode {
	case "synthetic":
	case "http":
		if c.Classifier.Endpoint == "" {
			errs = append(errs, "classifier.endpoint is required in http mode")
		}
		// A missing API key is reported per scan as a fatal classification
		// error so the patrol itself can still run.
	default:
		errs = append(errs, fmt.Sprintf("classifier.mode must be http or synthetic, got %q", c.Classifier.Mode))
	}
	if c.Classifier.MaxAttempts <= 0 {
		errs = append(errs, "classifier.max_attempts must be positive")
	}
	if c.Classifier.EmptyChance < 0 || c.Classifier.EmptyChance > 1 {
		errs = append(errs, "classifier.empty_chance must be within [0, 1]")
	}

	if c.Detections.HorizonSec < 0 {
		errs = append(errs, "detections.horizon_sec must not be negative")
	}
	if c.Detections.LogCapacity <= 0 {
		errs = append(errs, "detections.log_capacity must be positive")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Archive.Enabled {
		if c.Archive.Host == "" {
			errs = append(errs, "archive.host is required")
		}
		if c.Archive.DBName == "" {
			errs = append(errs, "archive.dbname is required")
		}
		if c.Archive.Mode != "direct" && c.Archive.Mode != "stream" {
			errs = append(errs, fmt.Sprintf("archive.mode must be direct or stream, got %q", c.Archive.Mode))
		}
		if c.Archive.Mode == "stream" && !c.NATS.Enabled {
			errs = append(errs, "archive.mode=stream requires nats.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (p PatrolConfig) inRegion(lat, lng float64) bool {
	return lat >= p.RegionMinLat && lat <= p.RegionMaxLat && lng >= p.RegionMinLng && lng <= p.RegionMaxLng
}

func validLat(v float64) bool { return v >= -90 && v <= 90 }
func validLng(v float64) bool { return v >= -180 && v <= 180 }
