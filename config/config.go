// Package config loads and validates gateway configuration.
//
// Configuration is a single JSON or YAML file (chosen by extension)
// describing the HTTP listener, the SPARQL endpoints the gateway
// fronts, cache TTLs and the optional NATS audit stream. Every field
// has a working default so an empty file yields a runnable Wikidata
// gateway.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/sparqlgate/errors"
)

// Endpoint describes one SPARQL endpoint class.
type Endpoint struct {
	// URL is the SPARQL query endpoint.
	URL string `json:"url" yaml:"url"`

	// TimeoutSeconds is the default per-query budget. Requests may
	// override it within the clamp enforced by the pipeline.
	TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`

	// LimitCap is the default result size ceiling.
	LimitCap int `json:"limitCap" yaml:"limitCap"`

	// RequireGrounding rejects queries whose entity or property IDs
	// were not produced by a prior grounding lookup.
	RequireGrounding bool `json:"requireGrounding" yaml:"requireGrounding"`

	// MinIntervalMillis spaces consecutive requests to this endpoint.
	MinIntervalMillis int `json:"minIntervalMillis" yaml:"minIntervalMillis"`
}

// CacheConfig holds the TTLs of the result and grounding caches.
type CacheConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	QueryTTLSeconds  int  `json:"queryTtlSeconds" yaml:"queryTtlSeconds"`
	EntityTTLSeconds int  `json:"entityTtlSeconds" yaml:"entityTtlSeconds"`
	SchemaTTLSeconds int  `json:"schemaTtlSeconds" yaml:"schemaTtlSeconds"`
}

// GroundingConfig points at the Wikidata action API used for entity
// and property search.
type GroundingConfig struct {
	APIURL    string `json:"apiUrl" yaml:"apiUrl"`
	UserAgent string `json:"userAgent" yaml:"userAgent"`
}

// AuditConfig enables best-effort audit publishing over NATS.
type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	MetricsPort int    `json:"metricsPort" yaml:"metricsPort"`
}

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig        `json:"server" yaml:"server"`
	Endpoints map[string]Endpoint `json:"endpoints" yaml:"endpoints"`
	Cache     CacheConfig         `json:"cache" yaml:"cache"`
	Grounding GroundingConfig     `json:"grounding" yaml:"grounding"`
	Audit     AuditConfig         `json:"audit" yaml:"audit"`
}

// Default returns a runnable configuration fronting the public
// Wikidata endpoint.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			MetricsPort: 9090,
		},
		Endpoints: map[string]Endpoint{
			"wikidata": {
				URL:               "https://query.wikidata.org/sparql",
				TimeoutSeconds:    30,
				LimitCap:          200,
				RequireGrounding:  true,
				MinIntervalMillis: 1000,
			},
			"rhea": {
				URL:               "https://sparql.rhea-db.org/sparql",
				TimeoutSeconds:    30,
				LimitCap:          200,
				MinIntervalMillis: 1000,
			},
			"uniprot": {
				URL:               "https://sparql.uniprot.org/sparql",
				TimeoutSeconds:    45,
				LimitCap:          200,
				MinIntervalMillis: 1000,
			},
		},
		Cache: CacheConfig{
			Enabled:          true,
			QueryTTLSeconds:  300,
			EntityTTLSeconds: 600,
			SchemaTTLSeconds: 900,
		},
		Grounding: GroundingConfig{
			APIURL:    "https://www.wikidata.org/w/api.php",
			UserAgent: "sparqlgate/1.0",
		},
		Audit: AuditConfig{
			URL:     "nats://localhost:4222",
			Subject: "sparqlgate.audit.query",
		},
	}
}

// Load reads the file at path and merges it over the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "read config file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Load",
			fmt.Sprintf("unsupported config extension %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants. It is called by Load and may
// be called again after programmatic mutation.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("server port %d out of range", c.Server.Port))
	}
	if len(c.Endpoints) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate",
			"at least one endpoint is required")
	}
	for name, ep := range c.Endpoints {
		if ep.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate",
				fmt.Sprintf("endpoint %q has no URL", name))
		}
		if ep.TimeoutSeconds < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("endpoint %q has negative timeout", name))
		}
	}
	if c.Audit.Enabled && c.Audit.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate",
			"audit is enabled but no NATS URL is set")
	}
	return nil
}

// QueryTTL returns the result cache TTL as a duration.
func (c *Config) QueryTTL() time.Duration {
	return time.Duration(c.Cache.QueryTTLSeconds) * time.Second
}

// EntityTTL returns the grounding cache TTL as a duration.
func (c *Config) EntityTTL() time.Duration {
	return time.Duration(c.Cache.EntityTTLSeconds) * time.Second
}

// SchemaTTL returns the schema cache TTL as a duration.
func (c *Config) SchemaTTL() time.Duration {
	return time.Duration(c.Cache.SchemaTTLSeconds) * time.Second
}

// Timeout returns the endpoint's default query budget.
func (e Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// MinInterval returns the endpoint's request spacing.
func (e Endpoint) MinInterval() time.Duration {
	return time.Duration(e.MinIntervalMillis) * time.Millisecond
}
