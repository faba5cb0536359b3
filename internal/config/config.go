// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Amir-4m/music-crawler/internal/jobs"
	"github.com/Amir-4m/music-crawler/internal/music"
	"github.com/Amir-4m/music-crawler/internal/scheduler"
)

// EnvPrefix namespaces environment overrides, e.g. MUSICCRAWLER_DB_DSN.
const EnvPrefix = "MUSICCRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Crawler   CrawlerConfig     `mapstructure:"crawler"`
	Sites     SitesConfig       `mapstructure:"sites"`
	DB        DBConfig          `mapstructure:"db"`
	Storage   StorageConfig     `mapstructure:"storage"`
	WordPress WordPressConfig   `mapstructure:"wordpress"`
	Locks     LocksConfig       `mapstructure:"locks"`
	Queue     QueueConfig       `mapstructure:"queue"`
	Schedule  map[string]string `mapstructure:"schedule"`
	Events    EventsConfig      `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs fetching and the crawl loop.
type CrawlerConfig struct {
	UserAgent           string             `mapstructure:"user_agent"`
	TimeoutSeconds      int                `mapstructure:"timeout_seconds"`
	MediaTimeoutSeconds int                `mapstructure:"media_timeout_seconds"`
	RequestsPerSecond   float64            `mapstructure:"requests_per_second"`
	Burst               int                `mapstructure:"burst"`
	SiteRPS             map[string]float64 `mapstructure:"site_rps"`
	DuplicateThreshold  int                `mapstructure:"duplicate_threshold"`
	MaxPages            int                `mapstructure:"max_pages"`
	DownloadBatch       int                `mapstructure:"download_batch"`
}

// SiteConfig locates one source site.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SitesConfig holds the per-site settings.
type SitesConfig struct {
	NicMusic    SiteConfig `mapstructure:"nicmusic"`
	Ganja2Music SiteConfig `mapstructure:"ganja2music"`
}

// DBConfig selects and tunes the catalog store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// StorageConfig selects the media blob backend.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	MediaRoot     string `mapstructure:"media_root"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// WordPressConfig holds CMS credentials and post defaults.
type WordPressConfig struct {
	BaseURL        string           `mapstructure:"base_url"`
	Username       string           `mapstructure:"username"`
	Password       string           `mapstructure:"password"`
	TokenTTL       time.Duration    `mapstructure:"token_ttl"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	AuthorID       int64            `mapstructure:"author_id"`
	Categories     map[string]int64 `mapstructure:"categories"`
}

// LocksConfig locates the single-flight lock files.
type LocksConfig struct {
	Dir string `mapstructure:"dir"`
}

// QueueConfig sizes the in-process job queue.
type QueueConfig struct {
	Depth             int `mapstructure:"depth"`
	Workers           int `mapstructure:"workers"`
	JobTimeoutMinutes int `mapstructure:"job_timeout_minutes"`
}

// EventsConfig selects where "published" events go.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; music-crawler/1.0)")
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.media_timeout_seconds", 120)
	v.SetDefault("crawler.requests_per_second", 1.0)
	v.SetDefault("crawler.burst", 2)
	v.SetDefault("crawler.site_rps", map[string]float64{})
	v.SetDefault("crawler.duplicate_threshold", 30)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.download_batch", 50)
	v.SetDefault("sites.nicmusic.base_url", "https://nicmusic.net/")
	v.SetDefault("sites.ganja2music.base_url", "https://ganja2music.com/")
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.media_root", "./media")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("wordpress.base_url", "")
	v.SetDefault("wordpress.username", "")
	v.SetDefault("wordpress.password", "")
	v.SetDefault("wordpress.token_ttl", "168h")
	v.SetDefault("wordpress.timeout_seconds", 60)
	v.SetDefault("wordpress.author_id", 9)
	v.SetDefault("wordpress.categories", map[string]int64{})
	v.SetDefault("locks.dir", "./locks")
	v.SetDefault("queue.depth", 16)
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.job_timeout_minutes", 0)
	for name, spec := range scheduler.Defaults() {
		v.SetDefault("schedule."+string(name), spec)
	}
	v.SetDefault("events.backend", "none")
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	for site, rps := range c.Crawler.SiteRPS {
		if !knownSite(site) {
			return fmt.Errorf("crawler.site_rps: unknown site %q", site)
		}
		if rps < 0 {
			return fmt.Errorf("crawler.site_rps.%s must be >= 0", site)
		}
	}
	if c.Crawler.DuplicateThreshold <= 0 {
		return fmt.Errorf("crawler.duplicate_threshold must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	switch c.DB.Driver {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("db.driver %q must be postgres or memory", c.DB.Driver)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.MediaRoot == "" {
			return fmt.Errorf("storage.media_root must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q must be local or gcs", c.Storage.Backend)
	}
	for site := range c.WordPress.Categories {
		if !knownSite(site) {
			return fmt.Errorf("wordpress.categories: unknown site %q", site)
		}
	}
	if c.Locks.Dir == "" {
		return fmt.Errorf("locks.dir must be set")
	}
	if c.Queue.Depth <= 0 || c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.depth and queue.workers must be > 0")
	}
	for name := range c.Schedule {
		if _, err := jobs.Parse(name); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	switch c.Events.Backend {
	case "", "none", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic must be set for pubsub")
		}
	default:
		return fmt.Errorf("events.backend %q must be none, memory or pubsub", c.Events.Backend)
	}
	return nil
}

func knownSite(name string) bool {
	return name == string(music.SiteNicMusic) || name == string(music.SiteGanja2Music)
}

// SiteHostRates maps each source host to its configured request rate.
// Sites without an override are left out.
func (c Config) SiteHostRates() map[string]float64 {
	bases := map[string]string{
		string(music.SiteNicMusic):    c.Sites.NicMusic.BaseURL,
		string(music.SiteGanja2Music): c.Sites.Ganja2Music.BaseURL,
	}
	out := make(map[string]float64, len(c.Crawler.SiteRPS))
	for site, rps := range c.Crawler.SiteRPS {
		if base := bases[site]; base != "" {
			out[base] = rps
		}
	}
	return out
}

// CrawlTimeout is the per-request budget of the HTML fetcher.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// MediaTimeout is the per-download budget of the media fetcher.
func (c Config) MediaTimeout() time.Duration {
	return time.Duration(c.Crawler.MediaTimeoutSeconds) * time.Second
}

// JobTimeout bounds one queued job run; zero means unbounded.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Queue.JobTimeoutMinutes) * time.Minute
}

// SiteCategories converts the configured category ids to site keys.
func (c Config) SiteCategories() map[music.Site]int64 {
	out := make(map[music.Site]int64, len(c.WordPress.Categories))
	for site, id := range c.WordPress.Categories {
		out[music.Site(site)] = id
	}
	return out
}

// Schedules returns the cron spec per job. Empty specs disable a job.
func (c Config) Schedules() map[jobs.Name]string {
	out := make(map[jobs.Name]string, len(c.Schedule))
	for name, spec := range c.Schedule {
		out[jobs.Name(name)] = strings.TrimSpace(spec)
	}
	return out
}
