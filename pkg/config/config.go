// config is the package containing configuration for cicoord, shared
// so the defaults can be used by the command line as well as by tests
// and programs embedding the lock or the gate.
package config

import (
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
)

const (
	StoreS3        = "s3"
	StoreRedis     = "redis"
	StoreMemcached = "memcached"
	StoreConfigMap = "configmap"

	redacted = "<redacted>"
)

// StoreBackends lists the values accepted for StoreBackend.
var StoreBackends = []string{StoreS3, StoreRedis, StoreMemcached, StoreConfigMap}

type Config struct {
	LogFormat     string `mapstructure:"logFormat" yaml:"logFormat"`
	ListenMetrics string `mapstructure:"listenMetrics" yaml:"listenMetrics"`

	StoreBackend string `mapstructure:"storeBackend" yaml:"storeBackend"`

	S3Host      string `mapstructure:"s3Host" yaml:"s3Host"`
	S3Region    string `mapstructure:"s3Region" yaml:"s3Region"`
	S3Bucket    string `mapstructure:"s3Bucket" yaml:"s3Bucket"`
	S3AccessKey string `mapstructure:"s3AccessKey" yaml:"s3AccessKey"`
	S3SecretKey string `mapstructure:"s3SecretKey" yaml:"s3SecretKey"`
	S3Insecure  bool   `mapstructure:"s3Insecure" yaml:"s3Insecure"`

	RedisAddr     string        `mapstructure:"redisAddr" yaml:"redisAddr"`
	RedisPassword string        `mapstructure:"redisPassword" yaml:"redisPassword"`
	RedisDB       int           `mapstructure:"redisDb" yaml:"redisDb"`
	RedisPrefix   string        `mapstructure:"redisPrefix" yaml:"redisPrefix"`
	RedisTimeout  time.Duration `mapstructure:"redisTimeout" yaml:"redisTimeout"`

	MemcachedServers  []string      `mapstructure:"memcachedServers" yaml:"memcachedServers"`
	MemcachedHostname string        `mapstructure:"memcachedHostname" yaml:"memcachedHostname"`
	MemcachedService  string        `mapstructure:"memcachedService" yaml:"memcachedService"`
	MemcachedTimeout  time.Duration `mapstructure:"memcachedTimeout" yaml:"memcachedTimeout"`

	ConfigMapNamespace string `mapstructure:"configMapNamespace" yaml:"configMapNamespace"`
	ConfigMapName      string `mapstructure:"configMapName" yaml:"configMapName"`
	Kubeconfig         string `mapstructure:"kubeconfig" yaml:"kubeconfig"`

	LockFile            string        `mapstructure:"lockFile" yaml:"lockFile"`
	LockWait            bool          `mapstructure:"lockWait" yaml:"lockWait"`
	LockPollInterval    time.Duration `mapstructure:"lockPollInterval" yaml:"lockPollInterval"`
	LockDeadlockTimeout time.Duration `mapstructure:"lockDeadlockTimeout" yaml:"lockDeadlockTimeout"`
	LockSettleWindow    time.Duration `mapstructure:"lockSettleWindow" yaml:"lockSettleWindow"`

	MaxConcurrency  int           `mapstructure:"maxConcurrency" yaml:"maxConcurrency"`
	Cancel          bool          `mapstructure:"cancel" yaml:"cancel"`
	AllowedEvents   []string      `mapstructure:"allowedEvents" yaml:"allowedEvents"`
	RequestsPerHour int           `mapstructure:"requestsPerHour" yaml:"requestsPerHour"`
	NextInLinePoll  time.Duration `mapstructure:"nextInLinePoll" yaml:"nextInLinePoll"`
	MinPollInterval time.Duration `mapstructure:"minPollInterval" yaml:"minPollInterval"`
	MissingRunRetry time.Duration `mapstructure:"missingRunRetry" yaml:"missingRunRetry"`

	GitHubToken  string  `mapstructure:"githubToken" yaml:"githubToken"`
	GitHubAPIURL string  `mapstructure:"githubApiUrl" yaml:"githubApiUrl"`
	GitHubRPS    float64 `mapstructure:"githubRps" yaml:"githubRps"`
	GitHubBurst  int     `mapstructure:"githubBurst" yaml:"githubBurst"`
}

// Default returns the configuration used when nothing else is given.
// The lock and polling defaults are those of the scripts cicoord
// replaces, so the two can share a lock file.
func Default() Config {
	return Config{
		LogFormat: "fmt",

		StoreBackend: StoreS3,
		S3Region:     "us-east-1",

		RedisPrefix:  "cicoord:",
		RedisTimeout: 5 * time.Second,

		MemcachedService: "memcached",
		MemcachedTimeout: time.Second,

		ConfigMapNamespace: "default",
		ConfigMapName:      "cicoord-lock",

		LockFile:            ".lockfile",
		LockWait:            true,
		LockPollInterval:    300 * time.Second,
		LockDeadlockTimeout: 10800 * time.Second,
		LockSettleWindow:    2 * time.Second,

		MaxConcurrency:  1,
		Cancel:          true,
		AllowedEvents:   []string{"pull_request"},
		RequestsPerHour: 500,
		NextInLinePoll:  60 * time.Second,
		MinPollInterval: 60 * time.Second,
		MissingRunRetry: 60 * time.Second,

		GitHubRPS:   1,
		GitHubBurst: 5,
	}
}

// Load reads a YAML config file over the defaults. Fields not present
// in the file keep their default values; unknown fields are an error.
func Load(path string) (Config, error) {
	config := Default()
	bytes, err := ioutil.ReadFile(path)
	if err != nil {
		return config, errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.UnmarshalStrict(bytes, &config); err != nil {
		return config, errors.Wrapf(err, "parsing config file %s", path)
	}
	return config, nil
}

// YAML renders the configuration, with secrets redacted.
func (c Config) YAML() ([]byte, error) {
	for _, secret := range []*string{&c.S3SecretKey, &c.RedisPassword, &c.GitHubToken} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return yaml.Marshal(c)
}

// Validate checks the settings for the lock and the gate.
func (c Config) Validate() error {
	var problems []string
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %s", name, d))
		}
	}
	positive("lock poll interval", c.LockPollInterval)
	positive("lock deadlock timeout", c.LockDeadlockTimeout)
	if c.LockSettleWindow < 0 {
		problems = append(problems, fmt.Sprintf("lock settle window must not be negative, got %s", c.LockSettleWindow))
	}
	positive("next-in-line poll interval", c.NextInLinePoll)
	positive("minimum poll interval", c.MinPollInterval)
	positive("missing run retry interval", c.MissingRunRetry)
	if c.MaxConcurrency < 1 {
		problems = append(problems, fmt.Sprintf("maximum concurrency must be at least 1, got %d", c.MaxConcurrency))
	}
	if c.RequestsPerHour <= 0 {
		problems = append(problems, fmt.Sprintf("requests per hour must be positive, got %d", c.RequestsPerHour))
	}
	if c.GitHubRPS <= 0 {
		problems = append(problems, fmt.Sprintf("GitHub requests per second must be positive, got %g", c.GitHubRPS))
	}
	if c.LogFormat != "fmt" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log format must be fmt or json, got %q", c.LogFormat))
	}
	return invalid(problems)
}

// ValidateStore checks that the selected store backend has the
// settings it needs.
func (c Config) ValidateStore() error {
	var problems []string
	switch c.StoreBackend {
	case StoreS3:
		if c.S3Bucket == "" {
			problems = append(problems, "an S3 bucket is required (--s3-bucket or S3_BUCKET)")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			problems = append(problems, "an S3 access key and secret key must be given together")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			problems = append(problems, "a Redis address is required (--redis-addr or REDIS_ADDR)")
		}
	case StoreMemcached:
		if len(c.MemcachedServers) == 0 && c.MemcachedHostname == "" {
			problems = append(problems, "memcached servers or a hostname to discover them from are required")
		}
	case StoreConfigMap:
		if c.ConfigMapName == "" || c.ConfigMapNamespace == "" {
			problems = append(problems, "a ConfigMap name and namespace are required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store backend %q; expected one of %s", c.StoreBackend, strings.Join(StoreBackends, ", ")))
	}
	if c.LockFile == "" {
		problems = append(problems, "a lock file key is required")
	}
	return invalid(problems)
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &cierrors.Error{
		Type: cierrors.User,
		Err:  errors.New("invalid configuration: " + strings.Join(problems, "; ")),
		Help: "The configuration is not valid:\n\n  - " + strings.Join(problems, "\n  - ") + `

Settings come from flags, then environment variables, then the file
given with --config, then defaults. Run 'cicoord config show' to see
the configuration in effect.
`,
	}
}
