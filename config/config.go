package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Facility local time, minutes east of UTC (540 = JST)
	TimezoneOffsetMinutes int
	DefaultSiteID         string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver    string // mysql | postgres | sqlite
	DBPath      string // sqlite file path
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching/token revocation
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	RedisDisabled bool
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Kiosk devices
	KioskAPIKeys            []string
	KioskAllowedCIDRs       []string
	KioskRateLimitPerMinute int
	// Auto-exit sweep
	AutoExitEnabled     bool
	AutoExitIntervalSec int
	CronSecret          string
	// LINE Messaging API
	LineChannelID     string
	LineChannelSecret string
	LineAPIBase       string
	LineEntryTemplate string
	LineExitTemplate  string
	// Settings cache (0 disables; reads always hit the database)
	SettingsCacheTTLSeconds int
	// Bootstrap admin, created only when no admin exists
	AdminUsername string
	AdminPassword string
}

var cfg AppConfig
var loaded bool

// DefaultTimezoneOffsetMinutes is the facility offset when none is configured (JST).
const DefaultTimezoneOffsetMinutes = 9 * 60

// Load loads the application configuration from environment variables. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides.
	// A .env file only fills variables the process environment does not already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf(".env ignored: %v", err)
	}

	// an explicit 0 in JSON or env means UTC, so the offset is seeded rather than defaulted
	cfg.TimezoneOffsetMinutes = DefaultTimezoneOffsetMinutes
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("config.json ignored: %v", err)
	}

	applyDefaults(&cfg)

	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Used by tests and tools that build config in code.
// TimezoneOffsetMinutes is taken as given; zero means UTC.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped JSON sections into out if the file is present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		if _, ok := app["TimezoneOffsetMinutes"]; ok {
			out.TimezoneOffsetMinutes = getInt(app, "TimezoneOffsetMinutes")
		}
		out.DefaultSiteID = getString(app, "DefaultSiteID")
		out.AdminUsername = getString(app, "AdminUsername")
		out.AdminPassword = getString(app, "AdminPassword")
	}

	if g, ok := raw["gin"].(map[string]any); ok {
		out.GinMode = getString(g, "Mode")
		out.GinPath = getString(g, "LogPath")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DBPath = getString(dbs, "Path")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
		out.RedisDisabled = getBool(rds, "Disabled")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if k, ok := raw["kiosk"].(map[string]any); ok {
		out.KioskAPIKeys = getStringSlice(k, "APIKeys")
		out.KioskAllowedCIDRs = getStringSlice(k, "AllowedCIDRs")
		out.KioskRateLimitPerMinute = getInt(k, "RateLimitPerMinute")
	}

	if ae, ok := raw["autoexit"].(map[string]any); ok {
		out.AutoExitEnabled = getBool(ae, "Enabled")
		out.AutoExitIntervalSec = getInt(ae, "IntervalSec")
		out.CronSecret = getString(ae, "CronSecret")
	}

	if ln, ok := raw["line"].(map[string]any); ok {
		out.LineChannelID = getString(ln, "ChannelID")
		out.LineChannelSecret = getString(ln, "ChannelSecret")
		out.LineAPIBase = getString(ln, "APIBase")
		out.LineEntryTemplate = getString(ln, "EntryTemplate")
		out.LineExitTemplate = getString(ln, "ExitTemplate")
	}

	if st, ok := raw["settings"].(map[string]any); ok {
		out.SettingsCacheTTLSeconds = getInt(st, "CacheTTLSeconds")
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DefaultSiteID == "" {
		c.DefaultSiteID = "default"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBPath == "" {
		c.DBPath = "data/schoolgate.db"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "schoolgate"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.KioskRateLimitPerMinute == 0 {
		c.KioskRateLimitPerMinute = 120
	}
	if c.AutoExitIntervalSec == 0 {
		c.AutoExitIntervalSec = 300
	}
	if c.LineAPIBase == "" {
		c.LineAPIBase = "https://api.line.me"
	}
	if c.LineEntryTemplate == "" {
		c.LineEntryTemplate = "{name}さんが{time}に入室しました。"
	}
	if c.LineExitTemplate == "" {
		c.LineExitTemplate = "{name}さんが{time}に退室しました。"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("TZ_OFFSET_MINUTES", ""); v != "" {
		c.TimezoneOffsetMinutes = mustParseInt(v)
	}
	if v := getEnv("DEFAULT_SITE_ID", ""); v != "" {
		c.DefaultSiteID = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DB_PATH", ""); v != "" {
		c.DBPath = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("REDIS_DISABLED", ""); v != "" {
		c.RedisDisabled = v == "true"
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("KIOSK_API_KEYS", ""); v != "" {
		c.KioskAPIKeys = readListEnv("KIOSK_API_KEYS", c.KioskAPIKeys)
	}
	if v := getEnv("KIOSK_ALLOWED_CIDRS", ""); v != "" {
		c.KioskAllowedCIDRs = readListEnv("KIOSK_ALLOWED_CIDRS", c.KioskAllowedCIDRs)
	}
	if v := getEnv("KIOSK_RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.KioskRateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("AUTO_EXIT_ENABLED", ""); v != "" {
		c.AutoExitEnabled = v == "true"
	}
	if v := getEnv("AUTO_EXIT_INTERVAL_SEC", ""); v != "" {
		c.AutoExitIntervalSec = mustParseInt(v)
	}
	if v := getEnv("CRON_SECRET", ""); v != "" {
		c.CronSecret = v
	}
	if v := getEnv("LINE_CHANNEL_ID", ""); v != "" {
		c.LineChannelID = v
	}
	if v := getEnv("LINE_CHANNEL_SECRET", ""); v != "" {
		c.LineChannelSecret = v
	}
	if v := getEnv("LINE_API_BASE", ""); v != "" {
		c.LineAPIBase = v
	}
	if v := getEnv("SETTINGS_CACHE_TTL_SECONDS", ""); v != "" {
		c.SettingsCacheTTLSeconds = mustParseInt(v)
	}
	if v := getEnv("ADMIN_USERNAME", ""); v != "" {
		c.AdminUsername = v
	}
	if v := getEnv("ADMIN_PASSWORD", ""); v != "" {
		c.AdminPassword = v
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
