package config

import (
	"github.com/spf13/pflag"
)

// AddFlags registers one flag per option on flags, with the defaults of
// DefaultConfig.
func AddFlags(flags *pflag.FlagSet) {
	d := DefaultConfig()

	flags.String("github-token", "", "GitHub token (or GITHUB_TOKEN)")
	flags.String("out", d.Output, "output CSV path or database DSN")
	flags.String("output-driver", d.OutputDriver, "output driver: csv, mysql, pgx")
	flags.String("state", d.State, "checkpoint file path")
	flags.String("state-backend", d.StateBackend, "checkpoint backend: file, redis")
	flags.String("redis-addr", d.RedisAddr, "Redis address for checkpoint and estimate cache")

	flags.Int("per-page", d.PerPage, "listing page size (1-100)")
	flags.Int("gql-batch", d.GQLBatch, "lookup batch size (1-100)")
	flags.Duration("rest-sleep", d.RESTSleep, "delay between listing pages")
	flags.Duration("gql-sleep", d.GQLSleep, "delay between lookup batches")
	flags.Int("sample-size", d.SampleSize, "number of repos to sample; 0 crawls all")
	flags.Int("num-buckets", d.NumBuckets, "number of id buckets for stratified sampling")
	flags.Int64("probe-hint", d.ProbeHint, "initial max id guess; 0 derives it from the checkpoint")
	flags.Duration("probe-delay", d.ProbeDelay, "delay between boundary probes")
	flags.Int("max-rate-limit-retries", d.MaxRateLimitRetries, "consecutive throttled calls retried before giving up")

	flags.Duration("request-timeout", d.RequestTimeout, "per-request timeout")
	flags.Duration("estimate-cache-ttl", d.EstimateCacheTTL, "how long the population estimate is cached in Redis")
	flags.String("rest-base-url", d.RESTBaseURL, "GitHub REST API base URL")
	flags.String("graphql-url", d.GraphQLURL, "GitHub GraphQL endpoint")
	flags.String("user-agent", d.UserAgent, "User-Agent header")

	flags.String("metrics-addr", d.MetricsAddr, "serve Prometheus metrics on this address")
	flags.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	flags.Bool("log-pretty", d.LogPretty, "human-readable console logs")
	flags.Bool("progress", d.Progress, "show a progress bar")
}
