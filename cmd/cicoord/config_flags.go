package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cicoord/cicoord/pkg/config"
)

// envVars are the environment variables that can set a config field,
// by field name. These are the names the CI scripts already export.
var envVars = map[string]string{
	"S3Host":           "S3_HOST",
	"S3Region":         "S3_REGION",
	"S3Bucket":         "S3_BUCKET",
	"S3AccessKey":      "S3_ACCESS_KEY",
	"S3SecretKey":      "S3_SECRET_KEY",
	"RedisAddr":        "REDIS_ADDR",
	"RedisPassword":    "REDIS_PASSWORD",
	"MemcachedServers": "MEMCACHED_SERVERS",
	"GitHubToken":      "GITHUB_TOKEN",
	"GitHubAPIURL":     "GITHUB_API_URL",
}

// configKey gives the key under which viper knows a config field.
// This parallels the logic in github.com/mitchellh/mapstructure, except
// that we want to bail if a field is mentioned that is marked ignore,
// like this: `mapstructure:"-"`
func configKey(fieldName string) (string, error) {
	field, ok := reflect.TypeOf(config.Config{}).FieldByName(fieldName)
	if !ok {
		return "", fmt.Errorf("attempt to bind a flag to a field not present in config.Config, %q", fieldName)
	}
	mappedName := field.Name
	if namePart := strings.Split(field.Tag.Get("mapstructure"), ",")[0]; namePart != "" {
		if namePart == "-" {
			return "", fmt.Errorf(`attempt to bind a flag to a config field tagged as ignored, %q`, field.Name)
		}
		mappedName = namePart
	}
	return mappedName, nil
}

// configFlags defines flags that can also be set in a config file or
// the environment. These need special treatment, because some care
// must be taken to match them ("bind") with config field names.
type configFlags struct {
	fs   *pflag.FlagSet
	v    *viper.Viper
	bail func(error)
}

func (f configFlags) bind(fieldName, flagName string) {
	key, err := configKey(fieldName)
	if err == nil {
		err = f.v.BindPFlag(key, f.fs.Lookup(flagName))
	}
	if err == nil {
		if env, ok := envVars[fieldName]; ok {
			err = f.v.BindEnv(key, env)
		}
	}
	if err != nil {
		f.bail(err)
	}
}

func (f configFlags) String(fieldName, flagName, def, desc string) {
	f.fs.String(flagName, def, desc)
	f.bind(fieldName, flagName)
}

func (f configFlags) StringSlice(fieldName, flagName string, def []string, desc string) {
	f.fs.StringSlice(flagName, def, desc)
	f.bind(fieldName, flagName)
}

func (f configFlags) Bool(fieldName, flagName string, def bool, desc string) {
	f.fs.Bool(flagName, def, desc)
	f.bind(fieldName, flagName)
}

func (f configFlags) Duration(fieldName, flagName string, def time.Duration, desc string) {
	f.fs.Duration(flagName, def, desc)
	f.bind(fieldName, flagName)
}

func (f configFlags) Int(fieldName, flagName string, def int, desc string) {
	f.fs.Int(flagName, def, desc)
	f.bind(fieldName, flagName)
}

func (f configFlags) Float64(fieldName, flagName string, def float64, desc string) {
	f.fs.Float64(flagName, def, desc)
	f.bind(fieldName, flagName)
}

func defineCommonFlags(f configFlags) {
	def := config.Default()
	f.String("LogFormat", "log-format", def.LogFormat, "change the log format (fmt or json)")
	f.String("ListenMetrics", "listen-metrics", def.ListenMetrics, "listen address for a /metrics endpoint served while waiting")
}

func defineStoreFlags(f configFlags) {
	def := config.Default()
	f.String("StoreBackend", "store", def.StoreBackend, fmt.Sprintf("where the lock is kept (one of {%s})", strings.Join(config.StoreBackends, ",")))

	// S3
	f.String("S3Host", "s3-host", def.S3Host, "S3-compatible endpoint host; empty means AWS (env S3_HOST)")
	f.String("S3Region", "s3-region", def.S3Region, "S3 region (env S3_REGION)")
	f.String("S3Bucket", "s3-bucket", def.S3Bucket, "S3 bucket holding the lock file; it must already exist (env S3_BUCKET)")
	f.String("S3AccessKey", "s3-access-key", def.S3AccessKey, "S3 access key (env S3_ACCESS_KEY)")
	f.String("S3SecretKey", "s3-secret-key", def.S3SecretKey, "S3 secret key (env S3_SECRET_KEY)")
	f.Bool("S3Insecure", "s3-insecure", def.S3Insecure, "talk plain HTTP to the S3 host")

	// Redis
	f.String("RedisAddr", "redis-addr", def.RedisAddr, "Redis server address (env REDIS_ADDR)")
	f.String("RedisPassword", "redis-password", def.RedisPassword, "Redis password (env REDIS_PASSWORD)")
	f.Int("RedisDB", "redis-db", def.RedisDB, "Redis database number")
	f.String("RedisPrefix", "redis-prefix", def.RedisPrefix, "prefix for Redis keys")
	f.Duration("RedisTimeout", "redis-timeout", def.RedisTimeout, "maximum time to wait for a Redis operation")

	// memcached
	f.StringSlice("MemcachedServers", "memcached-servers", def.MemcachedServers, "fixed memcached server addresses (env MEMCACHED_SERVERS)")
	f.String("MemcachedHostname", "memcached-hostname", def.MemcachedHostname, "hostname to discover memcached servers from, via SRV records")
	f.String("MemcachedService", "memcached-service", def.MemcachedService, "SRV service used to discover memcached servers")
	f.Duration("MemcachedTimeout", "memcached-timeout", def.MemcachedTimeout, "maximum time to wait before giving up on memcached requests")

	// Kubernetes
	f.String("ConfigMapNamespace", "configmap-namespace", def.ConfigMapNamespace, "namespace of the ConfigMap holding the lock")
	f.String("ConfigMapName", "configmap-name", def.ConfigMapName, "name of the ConfigMap holding the lock")
	f.String("Kubeconfig", "kubeconfig", def.Kubeconfig, "path to a kubeconfig; empty means in-cluster configuration")
}

func defineLockFlags(f configFlags) {
	def := config.Default()
	f.String("LockFile", "lock-file", def.LockFile, "key of the lock file in the store")
	f.Bool("LockWait", "wait", def.LockWait, "keep polling until the lock is acquired")
	f.Duration("LockPollInterval", "poll-interval", def.LockPollInterval, "time between attempts to acquire the lock")
	f.Duration("LockDeadlockTimeout", "deadlock-timeout", def.LockDeadlockTimeout, "age after which a lock held by another process is taken over")
	f.Duration("LockSettleWindow", "settle-window", def.LockSettleWindow, "time between writing the lock file and reading it back")
}

func defineGateFlags(f configFlags) {
	def := config.Default()
	f.Int("MaxConcurrency", "max-concurrency", def.MaxConcurrency, "maximum number of runs of the workflow in progress at once")
	f.Bool("Cancel", "cancel", def.Cancel, "cancel older in-progress runs on the same branch")
	f.StringSlice("AllowedEvents", "allowed-events", def.AllowedEvents, "events whose runs may be gated")
	f.Int("RequestsPerHour", "requests-per-hour", def.RequestsPerHour, "GitHub API requests per hour shared by all waiting runs")
	f.Duration("NextInLinePoll", "next-in-line-poll", def.NextInLinePoll, "poll interval for the run that will be admitted next")
	f.Duration("MinPollInterval", "min-poll-interval", def.MinPollInterval, "minimum poll interval for other waiting runs")
	f.Duration("MissingRunRetry", "missing-run-retry", def.MissingRunRetry, "retry interval when the current run is not yet listed as in progress")

	f.String("GitHubToken", "github-token", def.GitHubToken, "GitHub token (env GITHUB_TOKEN)")
	f.String("GitHubAPIURL", "github-api-url", def.GitHubAPIURL, "GitHub API root; empty means api.github.com (env GITHUB_API_URL)")
	f.Float64("GitHubRPS", "github-rps", def.GitHubRPS, "maximum GitHub requests per second")
	f.Int("GitHubBurst", "github-burst", def.GitHubBurst, "maximum burst of GitHub requests")
}
