package studiocms

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "PORT", "SERVER_PORT", "API_PREFIX", "STATIC_DIR",
		"CORS_ORIGINS", "ADMIN_EMAILS", "CACHE_TTL", "LEAD_RATE_LIMIT", "LEAD_RATE_WINDOW",
		"BODY_LIMIT", "SITE_NAME", "SITE_URL", "SITE_DESCRIPTION", "DATABASE_DRIVER",
		"DATABASE_DSN", "DATABASE_AUTO_MIGRATE", "SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY",
		"SUPABASE_JWT_SECRET", "PUBLIC_SUPABASE_URL", "PUBLIC_SUPABASE_ANON_KEY",
		"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET",
		"CLOUDINARY_FOLDER", "REDIS_URL", "REDIS_PREFIX",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Environment)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.LeadRateLimit)
	assert.Equal(t, 10*time.Minute, cfg.LeadRateWindow)
	assert.Equal(t, DriverSupabase, cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "portfolio", cfg.Cloudinary.Folder)
	assert.Equal(t, "http://localhost:3000", cfg.Site.URL)
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("API_PREFIX", "cms/v1/")
	t.Setenv("ADMIN_EMAILS", "owner@studio.test, ,dev@studio.test")
	t.Setenv("LEAD_RATE_WINDOW", "30s")
	t.Setenv("SITE_URL", "https://studio.test/")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SUPABASE_JWT_SECRET", "shh")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/cms/v1", cfg.APIPrefix)
	assert.Equal(t, []string{"owner@studio.test", "dev@studio.test"}, cfg.AdminEmails)
	assert.Equal(t, 30*time.Second, cfg.LeadRateWindow)
	assert.Equal(t, "https://studio.test", cfg.Site.URL)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/studio.db", cfg.Database.DSN)
	assert.Equal(t, "shh", cfg.Supabase.JWTSecret)
	assert.Equal(t, "demo", cfg.Cloudinary.Asset().CloudName)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigServerPortAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "studiocms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: prod
site:
  name: Acme Studio
  url: https://acme.test
database:
  driver: postgres
  dsn: postgres://localhost/studio
supabase:
  jwt_secret: file-secret
redis:
  url: redis://localhost:6379/0
cors_origins:
  - https://acme.test
`), 0o644))
	t.Setenv("SITE_NAME", "Env Wins")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Environment)
	assert.Equal(t, "Env Wins", cfg.Site.Name)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/studio", cfg.Database.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, []string{"https://acme.test"}, cfg.CORSOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() Config {
	cfg := Config{
		Environment: EnvTest,
		LogLevel:    "info",
		Database:    DatabaseConfig{Driver: DriverSQLite, DSN: "studio.db"},
		Supabase:    SupabaseConfig{JWTSecret: "shh"},
	}
	cfg.setDefaults()
	return cfg
}

func TestConfigValidate(t *testing.T) {
	base := validConfig()
	require.NoError(t, base.Validate())

	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"unknown environment", func(c *Config) { c.Environment = "staging" }, "Environment"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "Port"},
		{"root prefix", func(c *Config) { c.APIPrefix = "/" }, "APIPrefix"},
		{"site url", func(c *Config) { c.Site.URL = "not a url" }, "Site"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "Database"},
		{"sql without dsn", func(c *Config) { c.Database.DSN = "" }, "Database"},
		{"no auth at all", func(c *Config) { c.Supabase.JWTSecret = "" }, "Supabase"},
		{"hosted without credentials", func(c *Config) { c.Database.Driver = DriverSupabase }, "Supabase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.edit(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errs, ok := err.(validation.Errors)
			require.True(t, ok, err.Error())
			assert.Contains(t, errs, tt.field)
		})
	}
}

func TestHostedConfigValid(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{Driver: DriverSupabase}
	cfg.Supabase = SupabaseConfig{URL: "https://abc.supabase.co", ServiceRoleKey: "service"}
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(EnvProd, "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger(EnvDev, "chatty")
	assert.Error(t, err)
}

func TestSetDefaultsReplacesNonPositiveRateLimit(t *testing.T) {
	cfg := Config{LeadRateLimit: -1, LeadRateWindow: -time.Minute}
	cfg.setDefaults()
	assert.Equal(t, 5, cfg.LeadRateLimit)
	assert.Equal(t, 10*time.Minute, cfg.LeadRateWindow)
}

func TestNewWithNegativeRateWindow(t *testing.T) {
	store := openTestStore(t, true)
	app, err := New(Config{LeadRateWindow: -time.Second}, WithBackend(store))
	require.NoError(t, err)
	defer app.Close()
	assert.Equal(t, 10*time.Minute, app.Config.LeadRateWindow)
}
