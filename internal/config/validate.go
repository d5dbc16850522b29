package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *LivefeedConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	seen := make(map[string]struct{}, len(c.Feeds))
	for i, f := range c.Feeds {
		prefix := fmt.Sprintf("feeds[%d]", i)
		if f.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%s.name %q is duplicated", prefix, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.MaxRetries < 0 {
			return fmt.Errorf("%s.max_retries must be >= 0", prefix)
		}
		if f.BufferSize < 1 {
			return fmt.Errorf("%s.buffer_size must be >= 1", prefix)
		}
		if f.PerUser && c.Presence.RedisAddr == "" {
			return fmt.Errorf("%s.per_user requires presence.redis_addr", prefix)
		}
	}

	if err := c.Events.validate(); err != nil {
		return err
	}

	if c.Database.Archive.Enabled() {
		if err := c.Database.Archive.validate("database.archive"); err != nil {
			return err
		}
	}

	if c.Archive.BatchSize < 1 {
		return errors.New("archive.batch_size must be >= 1")
	}
	if c.Archive.BufferSize < 1 {
		return errors.New("archive.buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

// validate requires the HTTP collector url, key and secret to be set together.
func (e *EventsConfig) validate() error {
	set := 0
	for _, v := range []string{e.CollectorURL, e.CollectorKey, e.CollectorSecret} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return errors.New("events.collector_url, collector_key and collector_secret must be set together")
	}

	for topic, rate := range e.Sampling {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("events.sampling.%s must be between 0 and 1, got %v", topic, rate)
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
