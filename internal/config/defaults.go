package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBackoffBase       = 2 * time.Second
	DefaultMaxRetries        = 9
	DefaultJitterAmount      = 3 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultFeedBufferSize    = 1000
	DefaultEventsSource      = "livefeed"
	DefaultEventsTimeout     = 10 * time.Second
	DefaultKafkaTopic        = "analytics-events"
	DefaultWriteInterval     = 5 * time.Second
	DefaultWatchInterval     = 15 * time.Second
	DefaultStaleAfter        = 15 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultArchiveBufferSize = 10000
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *LivefeedConfig) applyDefaults() {
	for i := range c.Feeds {
		applyFeedDefaults(&c.Feeds[i])
	}

	// Events defaults
	if c.Events.Source == "" {
		c.Events.Source = DefaultEventsSource
	}
	if c.Events.Timeout == 0 {
		c.Events.Timeout = DefaultEventsTimeout
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = DefaultKafkaTopic
	}

	// Presence defaults
	if c.Presence.WriteInterval == 0 {
		c.Presence.WriteInterval = DefaultWriteInterval
	}
	if c.Presence.WatchInterval == 0 {
		c.Presence.WatchInterval = DefaultWatchInterval
	}
	if c.Presence.StaleAfter == 0 {
		c.Presence.StaleAfter = DefaultStaleAfter
	}

	// Database defaults (only when an archive database is configured)
	if c.Database.Archive.Enabled() {
		applyDBDefaults(&c.Database.Archive)
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyFeedDefaults(f *FeedConfig) {
	if f.BackoffBase == 0 {
		f.BackoffBase = DefaultBackoffBase
	}
	if f.MaxRetries == 0 {
		f.MaxRetries = DefaultMaxRetries
	}
	if f.JitterAmount == 0 {
		f.JitterAmount = DefaultJitterAmount
	}
	if f.PingTimeout == 0 {
		f.PingTimeout = DefaultPingTimeout
	}
	if f.WriteTimeout == 0 {
		f.WriteTimeout = DefaultWriteTimeout
	}
	if f.BufferSize == 0 {
		f.BufferSize = DefaultFeedBufferSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
