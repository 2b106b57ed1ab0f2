package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/wikicampus/wikicampus/internal/flagx"
	"github.com/wikicampus/wikicampus/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "12h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr         string         `json:"endpoint_addr"`
	InstanceURL          string         `json:"instance_url"`
	SPARQLEndpoint       string         `json:"sparql_endpoint"`
	UserAgent            string         `json:"user_agent"`
	MaxLag               int            `json:"max_lag"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	SessionTokenValidity timex.Duration `json:"session_token_validity"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.InstanceURL = c.InstanceURL
	config.SPARQLEndpoint = c.SPARQLEndpoint
	config.UserAgent = c.UserAgent
	config.MaxLag = c.MaxLag
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.SessionTokenValidity = time.Duration(c.SessionTokenValidity.Duration)
}
