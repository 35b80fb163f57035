package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Odds      OddsConfig      `yaml:"odds"`
	Storage   StorageConfig   `yaml:"storage"`
	Discord   DiscordConfig   `yaml:"discord"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
}

// SchedulerConfig controla el lock de apuestas vencidas.
type SchedulerConfig struct {
	IntervalSeconds     int `yaml:"interval_seconds"`
	WagerTimeoutSeconds int `yaml:"wager_timeout_seconds"` // tope de llamadas a la plataforma por apuesta
	LeaseTTLSeconds     int `yaml:"lease_ttl_seconds"`
}

// OddsConfig parametriza la sugerencia de puntos.
type OddsConfig struct {
	BasePoints           int     `yaml:"base_points"`            // K
	FallbackPoints       int     `yaml:"fallback_points"`        // sin votos o sin ganador
	ZeroWinnerMultiplier float64 `yaml:"zero_winner_multiplier"` // ganador sin votos
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// DiscordConfig contiene credenciales y endpoints de Discord.
type DiscordConfig struct {
	Token      string `yaml:"token"`
	APIBase    string `yaml:"api_base"`
	GatewayURL string `yaml:"gateway_url"`
	WebhookURL string `yaml:"webhook_url"` // canal de resultados, opcional
	Timezone   string `yaml:"timezone"`    // zona de "HH:MM" en !bet, p.ej. Europe/Amsterdam
}

// AuthConfig es la allowlist de operadores.
type AuthConfig struct {
	Users []string `yaml:"users"`
	Roles []string `yaml:"roles"`
}

// RedisConfig habilita el lease distribuido del scheduler. Vacío = lease local.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// SweepInterval devuelve el intervalo del scheduler como time.Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// WagerTimeout devuelve el tope por apuesta como time.Duration.
func (c *Config) WagerTimeout() time.Duration {
	return time.Duration(c.Scheduler.WagerTimeoutSeconds) * time.Second
}

// LeaseTTL devuelve la vida del lease del scheduler.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Scheduler.LeaseTTLSeconds) * time.Second
}

// Location resuelve discord.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Discord.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Discord.Timezone, err)
	}
	return loc, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Discord.WebhookURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WAGERBOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("WAGERBOT_ADMINS"); v != "" {
		cfg.Auth.Users = append(cfg.Auth.Users, strings.Split(v, ",")...)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 5
	}
	if cfg.Scheduler.WagerTimeoutSeconds <= 0 {
		cfg.Scheduler.WagerTimeoutSeconds = 10
	}
	if cfg.Scheduler.LeaseTTLSeconds <= 0 {
		cfg.Scheduler.LeaseTTLSeconds = 30
	}
	if cfg.Odds.BasePoints <= 0 {
		cfg.Odds.BasePoints = 6
	}
	if cfg.Odds.FallbackPoints <= 0 {
		cfg.Odds.FallbackPoints = 3
	}
	if cfg.Odds.ZeroWinnerMultiplier <= 0 {
		cfg.Odds.ZeroWinnerMultiplier = 3
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "wagerbot.db"
	}
	if cfg.Discord.Timezone == "" {
		cfg.Discord.Timezone = "UTC"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
