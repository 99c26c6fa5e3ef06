package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config holds the full application configuration. It is built once in main
// and passed by reference; there is no package-level instance.
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Browser  BrowserConfig  `json:"browser"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig holds pipeline and server settings.
type AppConfig struct {
	Env      string `json:"env"`       // local / prod
	LogLevel string `json:"log_level"` // debug / info / warn / error
	HTTPAddr string `json:"http_addr"` // tracking + admin server listen address

	PipelineInterval time.Duration `json:"pipeline_interval"` // scrape/match/alert cadence
	OutcomeInterval  time.Duration `json:"outcome_interval"`  // expiry sweep cadence
	LearningInterval time.Duration `json:"learning_interval"` // learning loop cadence

	WorkerPoolSize int `json:"worker_pool_size"` // concurrent scrape/score jobs
	QueueCapacity  int `json:"queue_capacity"`
	DedupWindow    int `json:"dedup_window"` // seen-listing TTL (seconds)

	StatsWindowDays    int `json:"stats_window_days"`
	LearningWindowDays int `json:"learning_window_days"`

	// TrackingBaseURL is the public base URL of the click server. Empty means
	// alert emails link to the listing directly instead of the tracker.
	TrackingBaseURL string `json:"tracking_base_url"`

	// Reference point for the default intent when no user intents exist.
	ReferenceLat float64 `json:"reference_lat"`
	ReferenceLng float64 `json:"reference_lng"`

	RequestTimeout time.Duration `json:"request_timeout"` // per scrape request
	RequestDelay   time.Duration `json:"request_delay"`   // politeness delay between pages

	RateLimit float64 `json:"rate_limit"` // per-source fetch rate (token/s)
	RateBurst float64 `json:"rate_burst"` // per-source bucket capacity
}

// MySQLConfig holds the database connection settings.
type MySQLConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig holds the cache connection settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
}

// BrowserConfig configures the headless browser used for client-rendered
// sources.
type BrowserConfig struct {
	BinPath     string        `json:"bin_path"`
	Headless    bool          `json:"headless"`
	PageTimeout time.Duration `json:"page_timeout"`
}

// EmailConfig holds SMTP settings for alert delivery.
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// SecurityConfig holds admin API credentials.
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// Load reads configuration from a JSON file, fills unset fields with
// defaults, then applies environment overrides. A missing file is not an
// error; defaults plus environment are used.
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault loads configuration, falling back to defaults on any error.
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":8080",

			PipelineInterval: 4 * time.Hour,
			OutcomeInterval:  24 * time.Hour,
			LearningInterval: 24 * time.Hour,

			WorkerPoolSize: 8,
			QueueCapacity:  64,
			DedupWindow:    3600,

			StatsWindowDays:    14,
			LearningWindowDays: 7,

			TrackingBaseURL: "",

			// Miami
			ReferenceLat: 25.7617,
			ReferenceLng: -80.1918,

			RequestTimeout: 30 * time.Second,
			RequestDelay:   2 * time.Second,

			RateLimit: 1,
			RateBurst: 3,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/auctionhunter?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Browser: BrowserConfig{
			BinPath:     "",
			Headless:    true,
			PageTimeout: 60 * time.Second,
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
			FromName:  "Auction Alerts",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.PipelineInterval == 0 {
		cfg.App.PipelineInterval = defaults.App.PipelineInterval
	}
	if cfg.App.OutcomeInterval == 0 {
		cfg.App.OutcomeInterval = defaults.App.OutcomeInterval
	}
	if cfg.App.LearningInterval == 0 {
		cfg.App.LearningInterval = defaults.App.LearningInterval
	}
	if cfg.App.WorkerPoolSize == 0 {
		cfg.App.WorkerPoolSize = defaults.App.WorkerPoolSize
	}
	if cfg.App.QueueCapacity == 0 {
		cfg.App.QueueCapacity = defaults.App.QueueCapacity
	}
	if cfg.App.DedupWindow == 0 {
		cfg.App.DedupWindow = defaults.App.DedupWindow
	}
	if cfg.App.StatsWindowDays == 0 {
		cfg.App.StatsWindowDays = defaults.App.StatsWindowDays
	}
	if cfg.App.LearningWindowDays == 0 {
		cfg.App.LearningWindowDays = defaults.App.LearningWindowDays
	}
	if cfg.App.ReferenceLat == 0 && cfg.App.ReferenceLng == 0 {
		cfg.App.ReferenceLat = defaults.App.ReferenceLat
		cfg.App.ReferenceLng = defaults.App.ReferenceLng
	}
	if cfg.App.RequestTimeout == 0 {
		cfg.App.RequestTimeout = defaults.App.RequestTimeout
	}
	if cfg.App.RequestDelay == 0 {
		cfg.App.RequestDelay = defaults.App.RequestDelay
	}
	if cfg.App.RateLimit == 0 {
		cfg.App.RateLimit = defaults.App.RateLimit
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Browser.PageTimeout == 0 {
		cfg.Browser.PageTimeout = defaults.Browser.PageTimeout
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = defaults.Email.SMTPHost
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = defaults.Email.FromName
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
}

// applyEnvOverrides lets the environment win over file values. Secrets go
// through viper BindEnv so they never have to live in the config file.
func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("chrome_bin", "CHROME_BIN")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_PIPELINE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.PipelineInterval = d
		}
	}
	if v := os.Getenv("APP_OUTCOME_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.OutcomeInterval = d
		}
	}
	if v := os.Getenv("APP_LEARNING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.LearningInterval = d
		}
	}
	if v := os.Getenv("APP_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("APP_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.QueueCapacity = i
		}
	}
	if v := os.Getenv("APP_DEDUP_WINDOW"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.DedupWindow = i
		}
	}
	if v := os.Getenv("APP_STATS_WINDOW_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.StatsWindowDays = i
		}
	}
	if v := os.Getenv("APP_LEARNING_WINDOW_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.LearningWindowDays = i
		}
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.App.TrackingBaseURL = v
	}
	if v := os.Getenv("REFERENCE_LAT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.ReferenceLat = f
		}
	}
	if v := os.Getenv("REFERENCE_LNG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.ReferenceLng = f
		}
	}
	if v := os.Getenv("APP_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.RequestTimeout = d
		}
	}
	if v := os.Getenv("APP_REQUEST_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.RequestDelay = d
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		if _, err := mysql.ParseDSN(v); err == nil {
			cfg.MySQL.DSN = v
		}
	} else if v := viper.GetString("db_password"); v != "" {
		// Override only the password inside the configured DSN.
		if parsed, err := mysql.ParseDSN(cfg.MySQL.DSN); err == nil {
			parsed.Passwd = v
			cfg.MySQL.DSN = parsed.FormatDSN()
		}
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := viper.GetString("chrome_bin"); v != "" {
		cfg.Browser.BinPath = v
	}
	if v := os.Getenv("BROWSER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Browser.Headless = b
		}
	}
	if v := os.Getenv("BROWSER_PAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Browser.PageTimeout = d
		}
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("SMTP_FROM_NAME"); v != "" {
		cfg.Email.FromName = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

// UnmarshalJSON accepts durations as strings like "4h" or "30s".
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		PipelineInterval string `json:"pipeline_interval"`
		OutcomeInterval  string `json:"outcome_interval"`
		LearningInterval string `json:"learning_interval"`
		RequestTimeout   string `json:"request_timeout"`
		RequestDelay     string `json:"request_delay"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	set := func(dst *time.Duration, raw, field string) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", field, err)
		}
		*dst = d
		return nil
	}

	if err := set(&a.PipelineInterval, aux.PipelineInterval, "pipeline_interval"); err != nil {
		return err
	}
	if err := set(&a.OutcomeInterval, aux.OutcomeInterval, "outcome_interval"); err != nil {
		return err
	}
	if err := set(&a.LearningInterval, aux.LearningInterval, "learning_interval"); err != nil {
		return err
	}
	if err := set(&a.RequestTimeout, aux.RequestTimeout, "request_timeout"); err != nil {
		return err
	}
	return set(&a.RequestDelay, aux.RequestDelay, "request_delay")
}

// UnmarshalJSON accepts page_timeout as a string like "60s".
func (b *BrowserConfig) UnmarshalJSON(data []byte) error {
	type Alias BrowserConfig
	aux := &struct {
		PageTimeout string `json:"page_timeout"`
		*Alias
	}{
		Alias: (*Alias)(b),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.PageTimeout == "" {
		return nil
	}
	d, err := time.ParseDuration(aux.PageTimeout)
	if err != nil {
		return fmt.Errorf("invalid page_timeout format: %w", err)
	}
	b.PageTimeout = d
	return nil
}

// MarshalJSON writes durations back out as strings.
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		PipelineInterval string `json:"pipeline_interval"`
		OutcomeInterval  string `json:"outcome_interval"`
		LearningInterval string `json:"learning_interval"`
		RequestTimeout   string `json:"request_timeout"`
		RequestDelay     string `json:"request_delay"`
		*Alias
	}{
		PipelineInterval: a.PipelineInterval.String(),
		OutcomeInterval:  a.OutcomeInterval.String(),
		LearningInterval: a.LearningInterval.String(),
		RequestTimeout:   a.RequestTimeout.String(),
		RequestDelay:     a.RequestDelay.String(),
		Alias:            (*Alias)(&a),
	})
}

// MarshalJSON writes page_timeout back out as a string.
func (b BrowserConfig) MarshalJSON() ([]byte, error) {
	type Alias BrowserConfig
	return json.Marshal(&struct {
		PageTimeout string `json:"page_timeout"`
		*Alias
	}{
		PageTimeout: b.PageTimeout.String(),
		Alias:       (*Alias)(&b),
	})
}
