// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the Wikicampus server.
//
// Fields:
//   - EndpointAddr: bind address for the public HTTP endpoint.
//   - InstanceURL: base URL of the Wikibase instance (no trailing /w/api.php).
//   - SPARQLEndpoint: URL of the SPARQL query service.
//   - UserAgent: identity sent with every outbound request.
//   - MaxLag: maxlag parameter for write requests, seconds.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for the audit log; empty keeps the
//     audit log in memory.
//   - SecretKey: HMAC secret for signing session JWTs (HS256). Do not use
//     test defaults in prod.
//   - SessionTokenValidity: session token lifetime.
type Config struct {
	EndpointAddr         string
	InstanceURL          string
	SPARQLEndpoint       string
	UserAgent            string
	MaxLag               int
	DatabaseDSN          string
	SecretKey            string
	SessionTokenValidity time.Duration
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.InstanceURL = "http://localhost:8181"
	c.SPARQLEndpoint = "http://localhost:8282/proxy/wdqs/bigdata/namespace/wdq/sparql"
	c.UserAgent = "Wikicampus/1.0 (https://github.com/wikicampus/wikicampus)"
	c.MaxLag = 5
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.SessionTokenValidity = 12 * time.Hour
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
