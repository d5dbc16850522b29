package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/livefeed/internal/config"
)

// ApplicationName is reported to Postgres in pg_stat_activity.
const ApplicationName = "livefeed"

// BuildConnString builds a PostgreSQL URL from config. User and password are
// escaped by net/url.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
