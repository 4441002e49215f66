// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		// Log is the logging config
		Log Logger `yaml:"log"`

		// App is the identity and the credentials of the served app
		App AppConfig `yaml:"app"`

		// HttpServer is the config for starting http.Server
		HttpServer HttpServerConfig `yaml:"httpServer"`

		// WorkerPool is the config of the pool running async functions
		WorkerPool WorkerPoolConfig `yaml:"workerPool"`

		// StateStore optionally offloads step outputs to a SQL database
		StateStore *StateStoreConfig `yaml:"stateStore"`

		// Transport optionally serves the same protocol over a message broker
		Transport *TransportConfig `yaml:"transport"`
	}

	AppConfig struct {
		// ID is the app id, function ids are prefixed with it
		ID string `yaml:"id" validate:"required"`
		// Mode is either production or development. Development skips signature validation
		Mode Mode `yaml:"mode" default:"production" validate:"oneof=production development"`
		// Env is the orchestrator environment (branch) the app syncs to
		Env string `yaml:"env"`
		// SigningKey is required in production
		SigningKey string `yaml:"signingKey"`
		// SigningKeyFallback is tried when the primary key fails, for key rotation
		SigningKeyFallback string `yaml:"signingKeyFallback"`
		// EventKey is used to send events
		EventKey string `yaml:"eventKey"`
		// APIBaseURL is the orchestrator API, used for registration and large payloads
		APIBaseURL string `yaml:"apiBaseURL" default:"https://api.inngest.com" validate:"url"`
		// EventBaseURL is the event ingestion endpoint
		EventBaseURL string `yaml:"eventBaseURL" default:"https://inn.gs" validate:"url"`
		// ServeOrigin and ServePath form the URL the orchestrator calls back
		ServeOrigin string `yaml:"serveOrigin"`
		ServePath   string `yaml:"servePath" default:"/api/inngest"`
		// DisableInBandSync rejects sync requests asking for the in-band flow
		DisableInBandSync bool `yaml:"disableInBandSync"`
		// SignatureMaxAge is how old a signed request may be. Default is 5 minutes
		SignatureMaxAge time.Duration `yaml:"signatureMaxAge" default:"5m"`
		// RequestTimeout bounds every outbound call to the orchestrator. Default is 30 seconds
		RequestTimeout time.Duration `yaml:"requestTimeout" default:"30s"`
		// Retry is the backoff of outbound calls failing with a 5xx or 429
		Retry RetryPolicy `yaml:"retry"`
		// MaxRequestBodyBytes caps inbound request bodies. Default is 4MiB,
		// larger runs are fetched from the API instead
		MaxRequestBodyBytes int64 `yaml:"maxRequestBodyBytes" default:"4194304" validate:"min=0"`
	}

	// RetryPolicy is an exponential backoff: InitialInterval * BackoffCoefficient^(attempt-1),
	// capped by MaximumInterval
	RetryPolicy struct {
		InitialInterval    time.Duration `yaml:"initialInterval" default:"1s"`
		BackoffCoefficient float64       `yaml:"backoffCoefficient" default:"2"`
		MaximumInterval    time.Duration `yaml:"maximumInterval" default:"10s"`
		// MaximumAttempts includes the first attempt, 1 disables retries. Default is 3
		MaximumAttempts int `yaml:"maximumAttempts" default:"3" validate:"min=0"`
	}

	// HttpServerConfig is the config that will be mapped into http.Server
	HttpServerConfig struct {
		// Address optionally specifies the TCP address for the server to listen on,
		// in the form "host:port". If empty, ":8080" is used.
		// For more details, see https://blog.cloudflare.com/the-complete-guide-to-golang-net-http-timeouts/
		Address string `yaml:"address" default:":8080"`
		// ReadTimeout is the maximum duration for reading the entire
		// request, including the body.
		ReadTimeout time.Duration `yaml:"readTimeout" default:"60s"`
		// WriteTimeout is the maximum duration before timing out
		// writes of the response. Function runs happen inside this window.
		WriteTimeout time.Duration `yaml:"writeTimeout" default:"120s"`
		// TLSConfig optionally provides a TLS configuration for use
		// by ServeTLS and ListenAndServeTLS
		TLSConfig *tls.Config `yaml:"tlsConfig"`
		// the rest are less frequently used
		ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
		IdleTimeout       time.Duration `yaml:"idleTimeout"`
		MaxHeaderBytes    int           `yaml:"maxHeaderBytes"`
	}

	WorkerPoolConfig struct {
		// Concurrency is the number of goroutines running async functions.
		// If not specified then the default value of 10.
		Concurrency int `yaml:"concurrency" default:"10" validate:"min=1"`
		// BufferSize is the number of invocations waiting for a free goroutine
		// before a call blocks. If not specified then the default value of 100.
		BufferSize int `yaml:"bufferSize" default:"100" validate:"min=0"`
	}

	StateStoreConfig struct {
		// SQL is the database step outputs are offloaded to
		SQL *SQL `yaml:"sql" validate:"required"`
		// DriverID is written into placeholders. Default is "sql"
		DriverID string `yaml:"driverId" default:"sql"`
	}

	TransportConfig struct {
		Pulsar *PulsarConfig `yaml:"pulsar" validate:"required"`
	}

	PulsarConfig struct {
		// URL is the broker service url, e.g. pulsar://localhost:6650
		URL string `yaml:"url" validate:"required"`
		// RequestTopic carries call requests from the orchestrator
		RequestTopic string `yaml:"requestTopic" validate:"required"`
		// ResponseTopic carries the responses back
		ResponseTopic string `yaml:"responseTopic" validate:"required"`
		// SubscriptionName is shared by all instances of the app. Default is "durable-sdk"
		SubscriptionName string `yaml:"subscriptionName" default:"durable-sdk"`
		// OperationTimeout for producing and consuming. Default is 30 seconds
		OperationTimeout time.Duration `yaml:"operationTimeout" default:"30s"`
		// Concurrency is the number of messages handled at the same time. Default is 10
		Concurrency int `yaml:"concurrency" default:"10" validate:"min=1"`
	}

	Mode string
)

// DefaultMaxRequestBodyBytes applies when AppConfig.MaxRequestBodyBytes is not set
const DefaultMaxRequestBodyBytes int64 = 4 << 20

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

const (
	EnvSigningKey         = "INNGEST_SIGNING_KEY"
	EnvSigningKeyFallback = "INNGEST_SIGNING_KEY_FALLBACK"
	EnvEventKey           = "INNGEST_EVENT_KEY"
	EnvDev                = "INNGEST_DEV"
	EnvEnv                = "INNGEST_ENV"
	EnvServeOrigin        = "INNGEST_SERVE_ORIGIN"
)

var validate = validator.New()

// NewConfig returns a new decoded Config struct
func NewConfig(configPath string) (*Config, error) {
	log.Printf("Loading configFile=%v\n", configPath)

	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)

	if err := d.Decode(config); err != nil {
		return nil, err
	}

	config.ApplyEnv(os.LookupEnv)
	return config, nil
}

// ApplyEnv overrides keys and mode from the environment. INNGEST_DEV set to a URL
// switches to development and points both base URLs at that dev server.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSigningKey); ok && v != "" {
		c.App.SigningKey = v
	}
	if v, ok := lookup(EnvSigningKeyFallback); ok && v != "" {
		c.App.SigningKeyFallback = v
	}
	if v, ok := lookup(EnvEventKey); ok && v != "" {
		c.App.EventKey = v
	}
	if v, ok := lookup(EnvEnv); ok && v != "" {
		c.App.Env = v
	}
	if v, ok := lookup(EnvServeOrigin); ok && v != "" {
		c.App.ServeOrigin = v
	}
	if v, ok := lookup(EnvDev); ok && v != "" {
		switch {
		case strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://"):
			c.App.Mode = ModeDevelopment
			c.App.APIBaseURL = strings.TrimSuffix(v, "/")
			c.App.EventBaseURL = strings.TrimSuffix(v, "/")
		case v == "0" || strings.EqualFold(v, "false"):
			c.App.Mode = ModeProduction
		default:
			c.App.Mode = ModeDevelopment
		}
	}
}

func (c *Config) ValidateAndSetDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var msgs []string
			for _, fieldErr := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("%v failed on rule %v", fieldErr.Namespace(), fieldErr.Tag()))
			}
			return fmt.Errorf("invalid config: %v", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.StateStore != nil {
		sql := c.StateStore.SQL
		if anyAbsent(sql.DatabaseName, sql.DBExtensionName) {
			return fmt.Errorf("some required configs are missing: sql.DatabaseName, sql.DBExtensionName")
		}
		if sql.DBExtensionName == "postgres" && anyAbsent(sql.ConnectAddr, sql.User) {
			return fmt.Errorf("some required configs are missing: sql.ConnectAddr, sql.User")
		}
	}
	if c.App.ServeOrigin == "" {
		c.App.ServeOrigin = "http://localhost" + c.HttpServer.Address
		if !strings.HasPrefix(c.HttpServer.Address, ":") {
			c.App.ServeOrigin = "http://" + c.HttpServer.Address
		}
	}
	return nil
}

// IsProduction reports whether requests must be signed
func (c AppConfig) IsProduction() bool {
	return c.Mode != ModeDevelopment
}

// ServeURL is the URL the orchestrator calls back
func (c AppConfig) ServeURL() string {
	return strings.TrimSuffix(c.ServeOrigin, "/") + c.ServePath
}

func anyAbsent(strs ...string) bool {
	for _, s := range strs {
		if s == "" {
			return true
		}
	}
	return false
}

// String converts the config object into a string, with keys redacted
func (c *Config) String() string {
	redacted := *c
	redacted.App.SigningKey = redact(c.App.SigningKey)
	redacted.App.SigningKeyFallback = redact(c.App.SigningKeyFallback)
	redacted.App.EventKey = redact(c.App.EventKey)
	out, err := json.MarshalIndent(redacted, "", "    ")
	if err != nil {
		panic(err)
	}
	return string(out)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
