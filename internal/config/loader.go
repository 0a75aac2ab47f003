package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for census settings.
const envPrefix = "CENSUS"

// Load reads configuration from defaults, the optional YAML file at
// configPath, CENSUS_* environment variables and the flags in flags, in
// increasing priority. GITHUB_TOKEN is accepted for the credential.
// flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("github_token", envPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("github_token", d.GitHubToken)
	v.SetDefault("output", d.Output)
	v.SetDefault("output_driver", d.OutputDriver)
	v.SetDefault("state", d.State)
	v.SetDefault("state_backend", d.StateBackend)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("per_page", d.PerPage)
	v.SetDefault("gql_batch", d.GQLBatch)
	v.SetDefault("rest_sleep", d.RESTSleep)
	v.SetDefault("gql_sleep", d.GQLSleep)
	v.SetDefault("sample_size", d.SampleSize)
	v.SetDefault("num_buckets", d.NumBuckets)
	v.SetDefault("probe_hint", d.ProbeHint)
	v.SetDefault("probe_delay", d.ProbeDelay)
	v.SetDefault("max_rate_limit_retries", d.MaxRateLimitRetries)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("estimate_cache_ttl", d.EstimateCacheTTL)
	v.SetDefault("rest_base_url", d.RESTBaseURL)
	v.SetDefault("graphql_url", d.GraphQLURL)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("progress", d.Progress)
}

// flagKeys maps flag names to configuration keys where they differ from
// the key with dashes replaced by underscores.
var flagKeys = map[string]string{
	"out": "output",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		if !slices.Contains(knownKeys, key) {
			return
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

var knownKeys = []string{
	"github_token", "output", "output_driver", "state", "state_backend",
	"redis_addr", "per_page", "gql_batch", "rest_sleep", "gql_sleep",
	"sample_size", "num_buckets", "probe_hint", "probe_delay",
	"max_rate_limit_retries", "request_timeout", "estimate_cache_ttl",
	"rest_base_url", "graphql_url", "user_agent", "metrics_addr",
	"log_level", "log_pretty", "progress",
}
