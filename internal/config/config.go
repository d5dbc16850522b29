package config

import "time"

// LivefeedConfig is the root configuration for a livefeed instance.
type LivefeedConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Page     PageConfig     `yaml:"page"`
	Feeds    []FeedConfig   `yaml:"feeds"`
	Events   EventsConfig   `yaml:"events"`
	Presence PresenceConfig `yaml:"presence"`
	Database DatabaseConfig `yaml:"database"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// PageConfig is the server-rendered page configuration the feeds and the
// analytics context are built from.
type PageConfig struct {
	UserID            string `yaml:"user_id"`
	UserName          string `yaml:"user_name"`
	LoID              string `yaml:"loid"`
	LoIDCreated       string `yaml:"loid_created"`
	Language          string `yaml:"language"`
	Referrer          string `yaml:"referrer"`
	DoNotTrack        bool   `yaml:"do_not_track"`
	CurLink           string `yaml:"cur_link"`
	CurSite           string `yaml:"cur_site"`
	PostSite          string `yaml:"post_site"`
	PageType          string `yaml:"page_type"` // "comments", "listing" or ""
	CurListing        string `yaml:"cur_listing"`
	LinkSort          string `yaml:"link_sort"` // comment sort of the current link page
	ExpandoPreference string `yaml:"expando_preference"`
	NoProfanity       bool   `yaml:"pref_no_profanity"`
	Beta              bool   `yaml:"pref_beta"`
	IsModerator       bool   `yaml:"is_posts_mod"`
	LiveOrangereds    bool   `yaml:"live_orangereds_pref"`
	EmailMessages     bool   `yaml:"pref_email_messages"`
}

// FeedConfig describes one live WebSocket stream.
type FeedConfig struct {
	Name         string        `yaml:"name"` // "comments" or "user"
	URL          string        `yaml:"url"`
	StatsURL     string        `yaml:"stats_url"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	MaxRetries   int           `yaml:"max_retries"`
	JitterAmount time.Duration `yaml:"jitter_amount"`
	PingTimeout  time.Duration `yaml:"ping_timeout"` // negative disables the liveness check
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
	PerUser      bool          `yaml:"per_user"` // hold at most one connection per user via presence
}

// EventsConfig holds analytics collector settings.
type EventsConfig struct {
	CollectorURL    string             `yaml:"collector_url"`
	CollectorKey    string             `yaml:"collector_key"`
	CollectorSecret string             `yaml:"collector_secret"`
	Source          string             `yaml:"source"`
	Timeout         time.Duration      `yaml:"timeout"`
	Sampling        map[string]float64 `yaml:"sampling"` // topic -> fraction of events kept
	KafkaBrokers    []string           `yaml:"kafka_brokers"`
	KafkaTopic      string             `yaml:"kafka_topic"`
}

// PresenceConfig holds the Redis settings used to elect one live connection per user.
type PresenceConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	WriteInterval time.Duration `yaml:"write_interval"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// DatabaseConfig holds the archive database connection.
type DatabaseConfig struct {
	Archive DBConfig `yaml:"archive"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database host is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// Liveness returns the client PingTimeout; 0 means no liveness check.
func (f FeedConfig) Liveness() time.Duration {
	if f.PingTimeout < 0 {
		return 0
	}
	return f.PingTimeout
}

// ArchiveConfig holds batch writer settings for the frame archive.
type ArchiveConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds the health and Prometheus server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
