package studiocms

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/eringen/studiocms/assethost"
	"github.com/eringen/studiocms/backend"
)

const (
	EnvDev  = "dev"
	EnvTest = "test"
	EnvProd = "prod"
)

const (
	DriverSupabase = "supabase"
	DriverSQLite   = backend.DriverSQLite
	DriverPostgres = backend.DriverPostgres
)

// SiteConfig describes the public site the API serves.
type SiteConfig struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	Description string `mapstructure:"description"`
}

// DatabaseConfig selects the backend. The supabase driver talks to the
// hosted PostgREST API; sqlite and postgres open DSN directly.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// SupabaseConfig holds the server-side credentials of the hosted platform.
type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	JWTSecret      string `mapstructure:"jwt_secret"`
}

// PublicConfig is handed to the front end through /config.json.
type PublicConfig struct {
	SupabaseURL     string `mapstructure:"supabase_url" json:"supabase_url"`
	SupabaseAnonKey string `mapstructure:"supabase_anon_key" json:"supabase_anon_key"`
}

// CloudinaryConfig holds the asset host credentials.
type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

// Asset converts c to the asset host client configuration.
func (c CloudinaryConfig) Asset() assethost.Config {
	return assethost.Config{
		CloudName: c.CloudName,
		APIKey:    c.APIKey,
		APISecret: c.APISecret,
		Folder:    c.Folder,
	}
}

// RedisConfig enables the shared cache and rate limiter when URL is set.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// Config holds all configuration for a studiocms server.
type Config struct {
	Environment string   `mapstructure:"environment"`
	LogLevel    string   `mapstructure:"log_level"`
	Port        int      `mapstructure:"port"`
	APIPrefix   string   `mapstructure:"api_prefix"`
	StaticDir   string   `mapstructure:"static_dir"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	AdminEmails []string `mapstructure:"admin_emails"`

	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	LeadRateLimit  int           `mapstructure:"lead_rate_limit"`
	LeadRateWindow time.Duration `mapstructure:"lead_rate_window"`
	BodyLimit      string        `mapstructure:"body_limit"`

	Site       SiteConfig       `mapstructure:"site"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Public     PublicConfig     `mapstructure:"public"`
	Cloudinary CloudinaryConfig `mapstructure:"cloudinary"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Keys without a default still need binding so Unmarshal sees them.
var envKeys = []string{
	"static_dir",
	"admin_emails",
	"site.description",
	"database.dsn",
	"supabase.url",
	"supabase.service_role_key",
	"supabase.jwt_secret",
	"public.supabase_url",
	"public.supabase_anon_key",
	"cloudinary.cloud_name",
	"cloudinary.api_key",
	"cloudinary.api_secret",
	"redis.url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDev)
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 3000)
	v.SetDefault("api_prefix", "/api")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("cache_ttl", time.Minute)
	v.SetDefault("lead_rate_limit", 5)
	v.SetDefault("lead_rate_window", 10*time.Minute)
	v.SetDefault("body_limit", "12M")
	v.SetDefault("site.name", "Studio")
	v.SetDefault("site.url", "http://localhost:3000")
	v.SetDefault("database.driver", DriverSupabase)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("cloudinary.folder", "portfolio")
	v.SetDefault("redis.prefix", "studiocms:")
}

// LoadConfig reads configuration from the environment and, when present, a
// studiocms.yaml file in . or ./config. A non-empty path names the file
// explicitly. The result is not validated; call Validate.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}
	if err := v.BindEnv("port", "PORT", "SERVER_PORT"); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("studiocms")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.CORSOrigins = FilterEmpty(c.CORSOrigins)
	c.AdminEmails = FilterEmpty(c.AdminEmails)
	c.APIPrefix = "/" + strings.Trim(c.APIPrefix, "/")
	c.Site.URL = strings.TrimRight(c.Site.URL, "/")
	if c.Database.Driver == DriverSQLite && c.Database.DSN == "" {
		c.Database.DSN = "data/studio.db"
	}
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.APIPrefix == "" {
		c.APIPrefix = "/api"
	}
	if c.Site.Name == "" {
		c.Site.Name = "Studio"
	}
	if c.Site.URL == "" {
		c.Site.URL = "http://localhost:3000"
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Minute
	}
	if c.LeadRateLimit <= 0 {
		c.LeadRateLimit = 5
	}
	if c.LeadRateWindow <= 0 {
		c.LeadRateWindow = 10 * time.Minute
	}
	if c.BodyLimit == "" {
		c.BodyLimit = "12M"
	}
	c.normalize()
}

var prefixRe = regexp.MustCompile(`^/[A-Za-z0-9_\-/]*[A-Za-z0-9_\-]$`)

// Validate checks that the configuration can start a server. Missing
// database credentials are reported here.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Environment, validation.Required, validation.In(EnvDev, EnvTest, EnvProd)),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.APIPrefix, validation.Required, validation.Match(prefixRe)),
		validation.Field(&c.LeadRateLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.LeadRateWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Site, validation.By(func(value interface{}) error {
			sc, ok := value.(SiteConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a SiteConfig")
			}
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.URL, validation.Required, is.URL),
			)
		})),
		validation.Field(&c.Database, validation.By(func(value interface{}) error {
			dc, ok := value.(DatabaseConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a DatabaseConfig")
			}
			return validation.ValidateStruct(&dc,
				validation.Field(&dc.Driver, validation.Required, validation.In(DriverSupabase, DriverSQLite, DriverPostgres)),
				validation.Field(&dc.DSN, validation.When(dc.Driver != DriverSupabase, validation.Required)),
			)
		})),
		validation.Field(&c.Supabase, validation.By(func(value interface{}) error {
			sc, ok := value.(SupabaseConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a SupabaseConfig")
			}
			hosted := c.Database.Driver == DriverSupabase
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.URL, validation.When(hosted, validation.Required), is.URL),
				validation.Field(&sc.ServiceRoleKey, validation.When(hosted, validation.Required)),
				validation.Field(&sc.JWTSecret, validation.When(sc.URL == "",
					validation.Required.Error("is required when no supabase url is set"))),
			)
		})),
	)
}
