package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthSecret string `mapstructure:"AUTH_SECRET"`

	AMQPURL        string `mapstructure:"AMQP_URL"`
	NotifyExchange string `mapstructure:"NOTIFY_EXCHANGE"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Adjudication thresholds.
	ClaimMaxAgeDays         int     `mapstructure:"CLAIM_MAX_AGE_DAYS"`
	HighValueThreshold      float64 `mapstructure:"HIGH_VALUE_THRESHOLD"`
	ProviderDailyClaimLimit int     `mapstructure:"PROVIDER_DAILY_CLAIM_LIMIT"`
	SameDayClaimLimit       int     `mapstructure:"SAME_DAY_CLAIM_LIMIT"`
	AnomalyMultiplier       int64   `mapstructure:"ANOMALY_MULTIPLIER"`
	AuthExpiryDays          int     `mapstructure:"AUTH_EXPIRY_DAYS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("NOTIFY_EXCHANGE", "claims.outcomes")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CLAIM_MAX_AGE_DAYS", 365)
	v.SetDefault("HIGH_VALUE_THRESHOLD", 10000)
	v.SetDefault("PROVIDER_DAILY_CLAIM_LIMIT", 50)
	v.SetDefault("SAME_DAY_CLAIM_LIMIT", 3)
	v.SetDefault("ANOMALY_MULTIPLIER", 5)
	v.SetDefault("AUTH_EXPIRY_DAYS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AMQP_URL")
	v.BindEnv("NOTIFY_EXCHANGE")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("CLAIM_MAX_AGE_DAYS")
	v.BindEnv("HIGH_VALUE_THRESHOLD")
	v.BindEnv("PROVIDER_DAILY_CLAIM_LIMIT")
	v.BindEnv("SAME_DAY_CLAIM_LIMIT")
	v.BindEnv("ANOMALY_MULTIPLIER")
	v.BindEnv("AUTH_EXPIRY_DAYS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; all requests get full access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SECRET must be set so that real JWT authentication is enforced, and the
// adjudication thresholds must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf(
			"AUTH_SECRET must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.ClaimMaxAgeDays <= 0 {
		return fmt.Errorf("CLAIM_MAX_AGE_DAYS must be positive, got %d", c.ClaimMaxAgeDays)
	}
	if c.HighValueThreshold < 0 {
		return fmt.Errorf("HIGH_VALUE_THRESHOLD must not be negative, got %v", c.HighValueThreshold)
	}
	if c.ProviderDailyClaimLimit <= 0 {
		return fmt.Errorf("PROVIDER_DAILY_CLAIM_LIMIT must be positive, got %d", c.ProviderDailyClaimLimit)
	}
	if c.AnomalyMultiplier <= 0 {
		return fmt.Errorf("ANOMALY_MULTIPLIER must be positive, got %d", c.AnomalyMultiplier)
	}
	if c.AuthExpiryDays <= 0 {
		return fmt.Errorf("AUTH_EXPIRY_DAYS must be positive, got %d", c.AuthExpiryDays)
	}
	return nil
}
