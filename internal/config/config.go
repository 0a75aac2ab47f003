// Package config provides the star-census configuration and its loading
// from file, environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sternrassler/repo-star-census/pkg/checkpoint"
	"github.com/Sternrassler/repo-star-census/pkg/client"
	"github.com/Sternrassler/repo-star-census/pkg/logging"
	"github.com/Sternrassler/repo-star-census/pkg/pagination"
	"github.com/Sternrassler/repo-star-census/pkg/probe"
	"github.com/Sternrassler/repo-star-census/pkg/resolve"
	"github.com/Sternrassler/repo-star-census/pkg/sampler"
	"github.com/Sternrassler/repo-star-census/pkg/sink"
)

// Checkpoint backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// ErrMissingToken is returned when no GitHub credential is configured.
var ErrMissingToken = errors.New("github token is required (set GITHUB_TOKEN or --github-token)")

// Config represents the complete star-census configuration.
type Config struct {
	GitHubToken string `yaml:"github_token" mapstructure:"github_token"`

	// Output
	Output       string `yaml:"output" mapstructure:"output" validate:"required"`
	OutputDriver string `yaml:"output_driver" mapstructure:"output_driver" validate:"oneof=csv mysql pgx"`

	// Checkpoint
	State        string `yaml:"state" mapstructure:"state" validate:"required_if=StateBackend file"`
	StateBackend string `yaml:"state_backend" mapstructure:"state_backend" validate:"oneof=file redis"`
	RedisAddr    string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"required_if=StateBackend redis,omitempty,hostname_port"`

	// Traversal
	PerPage             int           `yaml:"per_page" mapstructure:"per_page" validate:"min=1,max=100"`
	GQLBatch            int           `yaml:"gql_batch" mapstructure:"gql_batch" validate:"min=1,max=100"`
	RESTSleep           time.Duration `yaml:"rest_sleep" mapstructure:"rest_sleep" validate:"gte=0"`
	GQLSleep            time.Duration `yaml:"gql_sleep" mapstructure:"gql_sleep" validate:"gte=0"`
	SampleSize          int           `yaml:"sample_size" mapstructure:"sample_size" validate:"gte=0"`
	NumBuckets          int           `yaml:"num_buckets" mapstructure:"num_buckets" validate:"min=1"`
	ProbeHint           int64         `yaml:"probe_hint" mapstructure:"probe_hint" validate:"gte=0"`
	ProbeDelay          time.Duration `yaml:"probe_delay" mapstructure:"probe_delay" validate:"gte=0"`
	MaxRateLimitRetries int           `yaml:"max_rate_limit_retries" mapstructure:"max_rate_limit_retries" validate:"gte=0"`

	// API
	RequestTimeout   time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" validate:"gt=0"`
	EstimateCacheTTL time.Duration `yaml:"estimate_cache_ttl" mapstructure:"estimate_cache_ttl" validate:"gte=0"`
	RESTBaseURL      string        `yaml:"rest_base_url" mapstructure:"rest_base_url" validate:"required,url"`
	GraphQLURL       string        `yaml:"graphql_url" mapstructure:"graphql_url" validate:"required,url"`
	UserAgent        string        `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`

	// Operations
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	LogLevel    string `yaml:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogPretty   bool   `yaml:"log_pretty" mapstructure:"log_pretty"`
	Progress    bool   `yaml:"progress" mapstructure:"progress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Output:              "./stats/github_repo_stars.csv",
		OutputDriver:        sink.DriverCSV,
		State:               "./stats/checkpoint.yaml",
		StateBackend:        BackendFile,
		PerPage:             100,
		GQLBatch:            100,
		RESTSleep:           50 * time.Millisecond,
		NumBuckets:          100,
		ProbeDelay:          probe.DefaultDelay,
		MaxRateLimitRetries: 3,
		RequestTimeout:      30 * time.Second,
		EstimateCacheTTL:    time.Hour,
		RESTBaseURL:         client.DefaultRESTBaseURL,
		GraphQLURL:          client.DefaultGraphQLURL,
		UserAgent:           client.DefaultUserAgent,
		LogLevel:            string(logging.LevelInfo),
		Progress:            true,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every option except the credential.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// RequireToken returns ErrMissingToken when no credential is set.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.GitHubToken) == "" {
		return ErrMissingToken
	}
	return nil
}

// ClientConfig returns the GitHub client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.GitHubToken)
	cfg.UserAgent = c.UserAgent
	cfg.RESTBaseURL = c.RESTBaseURL
	cfg.GraphQLURL = c.GraphQLURL
	cfg.Timeout = c.RequestTimeout
	return cfg
}

// ResolverConfig returns the batch lookup configuration.
func (c *Config) ResolverConfig() resolve.Config {
	return resolve.Config{
		BatchSize:           c.GQLBatch,
		Delay:               c.GQLSleep,
		MaxRateLimitRetries: c.MaxRateLimitRetries,
	}
}

// SamplerConfig returns the traversal configuration.
func (c *Config) SamplerConfig(runID string) sampler.Config {
	return sampler.Config{
		SampleSize:          c.SampleSize,
		NumBuckets:          c.NumBuckets,
		MaxRateLimitRetries: c.MaxRateLimitRetries,
		Pagination: pagination.Config{
			PerPage: c.PerPage,
			Delay:   c.RESTSleep,
		},
		RunID: runID,
	}
}

// ProbeConfig returns the boundary search configuration.
func (c *Config) ProbeConfig() probe.Config {
	return probe.Config{Delay: c.ProbeDelay}
}

// ProbeHintFor returns the configured hint, or one derived from the
// checkpoint when none is configured.
func (c *Config) ProbeHintFor(state checkpoint.State) int64 {
	if c.ProbeHint > 0 {
		return c.ProbeHint
	}
	return probe.Hint(state.LastSeenID)
}

// LoggingConfig returns the logger configuration for a run.
func (c *Config) LoggingConfig(runID string) logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	cfg.RunID = runID
	return cfg
}
