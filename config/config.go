package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/oraculo/internal/application"
	"github.com/alejandrodnm/oraculo/internal/application/consensus"
	"github.com/alejandrodnm/oraculo/internal/application/engine"
	"github.com/alejandrodnm/oraculo/internal/application/learner"
	"github.com/alejandrodnm/oraculo/internal/application/scanner"
	"github.com/alejandrodnm/oraculo/internal/application/scorer"
	"github.com/alejandrodnm/oraculo/internal/application/watcher"
	"github.com/alejandrodnm/oraculo/internal/domain"
)

// Config es la configuración completa del sistema.
type Config struct {
	Scanner  ScannerConfig  `yaml:"scanner"`
	Scorer   ScorerConfig   `yaml:"scorer"`
	Engine   EngineConfig   `yaml:"engine"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Learner  LearnerConfig  `yaml:"learner"`
	Venues   []VenueConfig  `yaml:"venues"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	BaseRate BaseRateConfig `yaml:"base_rate"`
}

// ScannerConfig controla el ciclo de escaneo autónomo.
type ScannerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	BatchSize       int `yaml:"batch_size"`
	TopN            int `yaml:"top_n"`
}

// ScorerConfig controla los umbrales del Opportunity Scorer.
type ScorerConfig struct {
	MinDivergence      float64  `yaml:"min_divergence"`
	HighVolume         float64  `yaml:"high_volume"`
	ClosingWindowHours int      `yaml:"closing_window_hours"`
	MinScore           float64  `yaml:"min_score"`
	MinVolume          float64  `yaml:"min_volume"`
	AllowedCategories  []string `yaml:"allowed_categories"`
	LookupConcurrency  int      `yaml:"lookup_concurrency"`
	LookupDelayMs      int      `yaml:"lookup_delay_ms"`
}

// EngineConfig controla las gates del Decision Engine.
type EngineConfig struct {
	MaxDaily         int     `yaml:"max_daily"`
	MaxPerCategory   int     `yaml:"max_per_category"`
	CooldownMinutes  int     `yaml:"cooldown_minutes"`
	MinScore         float64 `yaml:"min_score"`
	MinConfidence    string  `yaml:"min_confidence"` // low | medium | high
	MinEdge          float64 `yaml:"min_edge"`
	MaxDivergence    float64 `yaml:"max_divergence"`
	ScoreCeiling     float64 `yaml:"score_ceiling"`
	RepeatWindowHrs  int     `yaml:"repeat_window_hours"`
	FavorBoost       float64 `yaml:"favor_boost"`
}

// WatcherConfig controla el Resolution Watcher.
type WatcherConfig struct {
	PollIntervalMinutes int `yaml:"poll_interval_minutes"`
	HorizonDays         int `yaml:"horizon_days"`
}

// LearnerConfig controla el Performance Learner.
type LearnerConfig struct {
	WindowDays    int     `yaml:"window_days"`
	MinSamples    int     `yaml:"min_samples"`
	PoorThreshold float64 `yaml:"poor_threshold"`
	GoodThreshold float64 `yaml:"good_threshold"`
	HitScore      float64 `yaml:"hit_score"`
}

// VenueConfig define un venue de mercados de predicción.
type VenueConfig struct {
	Name        string  `yaml:"name"`
	BaseURL     string  `yaml:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
	Reliability float64 `yaml:"reliability"` // 0-1, peso en el consenso
}

// StorageConfig controla dónde se persisten las predicciones.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// NotifyConfig controla el canal de notificaciones.
type NotifyConfig struct {
	Channel   string `yaml:"channel"` // console | telegram
	Recipient string `yaml:"recipient"`
	BotToken  string `yaml:"bot_token"` // normalmente vía TELEGRAM_BOT_TOKEN
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// ClusterConfig controla el clustering de mercados equivalentes.
type ClusterConfig struct {
	Threshold float64 `yaml:"threshold"`
	ArbSpread float64 `yaml:"arb_spread"`
}

// BaseRateConfig controla el servicio de priors históricos.
type BaseRateConfig struct {
	WindowDays    int     `yaml:"window_days"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Los valores del .env sobreescriben los del YAML para las keys
// que correspondan.
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate falla rápido en configuraciones imposibles.
func (c *Config) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("config.Validate: at least one venue required")
	}
	for _, v := range c.Venues {
		if v.Name == "" || v.BaseURL == "" {
			return fmt.Errorf("config.Validate: venue needs name and base_url (got %+v)", v)
		}
		if v.Reliability < 0 || v.Reliability > 1 {
			return fmt.Errorf("config.Validate: venue %s reliability %.2f out of [0,1]", v.Name, v.Reliability)
		}
	}
	switch c.Notify.Channel {
	case "console", "telegram":
	default:
		return fmt.Errorf("config.Validate: unknown notify channel %q", c.Notify.Channel)
	}
	if c.Notify.Channel == "telegram" && (c.Notify.BotToken == "" || c.Notify.Recipient == "") {
		return fmt.Errorf("config.Validate: telegram channel needs bot_token and recipient")
	}
	return nil
}

// ToApplication traduce la configuración de fichero a la del Core.
// Los ceros se quedan como están: cada componente aplica sus defaults
// y valida lo suyo en su constructor.
func (c *Config) ToApplication() application.Config {
	eng := engine.DefaultConfig()
	if c.Engine.MaxDaily > 0 {
		eng.MaxDaily = c.Engine.MaxDaily
	}
	if c.Engine.MaxPerCategory > 0 {
		eng.MaxPerCategory = c.Engine.MaxPerCategory
	}
	if c.Engine.CooldownMinutes > 0 {
		eng.Cooldown = time.Duration(c.Engine.CooldownMinutes) * time.Minute
	}
	if c.Engine.MinScore > 0 {
		eng.MinScore = c.Engine.MinScore
	}
	if c.Engine.MinConfidence != "" {
		eng.MinConfidence = parseConfidence(c.Engine.MinConfidence)
	}
	if c.Engine.MinEdge > 0 {
		eng.MinEdge = c.Engine.MinEdge
	}
	if c.Engine.MaxDivergence > 0 {
		eng.MaxDivergence = c.Engine.MaxDivergence
	}
	if c.Engine.ScoreCeiling > 0 {
		eng.ScoreCeiling = c.Engine.ScoreCeiling
	}
	if c.Engine.RepeatWindowHrs > 0 {
		eng.RepeatWindow = time.Duration(c.Engine.RepeatWindowHrs) * time.Hour
	}
	if c.Engine.FavorBoost > 0 {
		eng.FavorBoost = c.Engine.FavorBoost
	}

	var categories []domain.Category
	for _, s := range c.Scorer.AllowedCategories {
		categories = append(categories, domain.Category(s))
	}

	reliability := make(map[string]float64, len(c.Venues))
	for _, v := range c.Venues {
		if v.Reliability > 0 {
			reliability[v.Name] = v.Reliability
		}
	}

	return application.Config{
		Scanner: scanner.Config{
			Interval:  time.Duration(c.Scanner.IntervalMinutes) * time.Minute,
			BatchSize: c.Scanner.BatchSize,
			TopN:      c.Scanner.TopN,
		},
		Scorer: scorer.Config{
			MinDivergence:     c.Scorer.MinDivergence,
			HighVolume:        c.Scorer.HighVolume,
			ClosingWindow:     time.Duration(c.Scorer.ClosingWindowHours) * time.Hour,
			MinScore:          c.Scorer.MinScore,
			MinVolume:         c.Scorer.MinVolume,
			AllowedCategories: categories,
			LookupConcurrency: c.Scorer.LookupConcurrency,
			LookupDelay:       time.Duration(c.Scorer.LookupDelayMs) * time.Millisecond,
		},
		Engine: eng,
		Watcher: watcher.Config{
			PollInterval: time.Duration(c.Watcher.PollIntervalMinutes) * time.Minute,
			Horizon:      time.Duration(c.Watcher.HorizonDays) * 24 * time.Hour,
		},
		Learner: learner.Config{
			Window:        time.Duration(c.Learner.WindowDays) * 24 * time.Hour,
			MinSamples:    c.Learner.MinSamples,
			PoorThreshold: c.Learner.PoorThreshold,
			GoodThreshold: c.Learner.GoodThreshold,
			HitScore:      c.Learner.HitScore,
		},
		Consensus: consensus.Config{
			Reliability:        reliability,
			ArbSpreadThreshold: c.Cluster.ArbSpread,
		},
		ClusterThreshold: c.Cluster.Threshold,
		ArbSpread:        c.Cluster.ArbSpread,
		NotifyRecipient:  c.Notify.Recipient,
	}
}

// BaseRateWindow devuelve la ventana del servicio de base rate.
func (c *Config) BaseRateWindow() time.Duration {
	return time.Duration(c.BaseRate.WindowDays) * 24 * time.Hour
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.Recipient = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los umbrales numéricos de scanner/scorer/engine/watcher/learner se dejan
// a cero aquí: los defaults viven en el DefaultConfig de cada componente.
func setDefaults(cfg *Config) {
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "oraculo.db"
	}
	if cfg.Notify.Channel == "" {
		cfg.Notify.Channel = "console"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Cluster.Threshold <= 0 {
		cfg.Cluster.Threshold = 0.35
	}
	if cfg.Cluster.ArbSpread <= 0 {
		cfg.Cluster.ArbSpread = 0.05
	}
	if cfg.BaseRate.MinSimilarity <= 0 {
		cfg.BaseRate.MinSimilarity = 0.35
	}
}

func parseConfidence(s string) domain.OppConfidence {
	switch s {
	case "high":
		return domain.OppConfidenceHigh
	case "low":
		return domain.OppConfidenceLow
	default:
		return domain.OppConfidenceMedium
	}
}
