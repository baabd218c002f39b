package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	log "github.com/sirupsen/logrus"

	"github.com/passeplat/passeplat"
	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/hostmatch"
	"github.com/passeplat/passeplat/logsink"
	"github.com/passeplat/passeplat/logsink/sqlite"
	"github.com/passeplat/passeplat/metrics"
	"github.com/passeplat/passeplat/scheme/ftpscheme"
)

// SinkResilience configures the circuit breaker and the retries of the
// log sink writes.
type SinkResilience struct {
	Failures      int           `yaml:"failures"`
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retry-interval"`
}

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address         string `yaml:"address"`
	SupportListener string `yaml:"support-listener"`
	PrintVersion    bool   `yaml:"version"`
	Hostname        string `yaml:"hostname"`

	// configuration directory:
	ConfigDir      string        `yaml:"config-dir"`
	WatchConfigDir bool          `yaml:"watch-config-dir"`
	ConfigDebounce time.Duration `yaml:"config-debounce"`
	HostCacheSize  int           `yaml:"host-cache-size"`

	// transactions and destinations:
	MaxBodySize           int           `yaml:"max-body-size"`
	DestinationTimeout    time.Duration `yaml:"destination-timeout"`
	FTPTimeout            time.Duration `yaml:"ftp-timeout"`
	FTPDisableEPSV        bool          `yaml:"ftp-disable-epsv"`
	Insecure              bool          `yaml:"insecure"`
	DisableExecutionTrace bool          `yaml:"disable-execution-trace"`
	OpenAPIValidatorURL   string        `yaml:"openapi-validator-url"`

	// log sink:
	LogSink             string          `yaml:"log-sink"`
	LogIndex            string          `yaml:"log-index"`
	LogErrorsIndex      string          `yaml:"log-errors-index"`
	ElasticURLs         *listFlag       `yaml:"elastic-urls"`
	ElasticUsername     string          `yaml:"elastic-username"`
	ElasticPassword     string          `yaml:"elastic-password"`
	ElasticSniff        bool            `yaml:"elastic-sniff"`
	SQLitePath          string          `yaml:"sqlite-path"`
	SQLiteRetention     time.Duration   `yaml:"sqlite-retention"`
	SQLitePruneSchedule string          `yaml:"sqlite-prune-schedule"`
	SinkResilience      *SinkResilience `yaml:"sink-resilience"`

	// logging, metrics:
	MetricsFlavour            *listFlag `yaml:"metrics-flavour"`
	MetricsPrefix             string    `yaml:"metrics-prefix"`
	MetricsUseExpDecaySample  bool      `yaml:"metrics-exp-decay-sample"`
	RuntimeMetrics            bool      `yaml:"runtime-metrics"`
	ApplicationLog            string    `yaml:"application-log"`
	ApplicationLogLevel       log.Level `yaml:"-"`
	ApplicationLogLevelString string    `yaml:"application-log-level"`
	ApplicationLogPrefix      string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled bool      `yaml:"application-log-json-enabled"`
	AccessLog                 string    `yaml:"access-log"`
	AccessLogDisabled         bool      `yaml:"access-log-disabled"`
	AccessLogJSONEnabled      bool      `yaml:"access-log-json-enabled"`
}

const (
	defaultApplicationLogPrefix = "[APP]"
	defaultApplicationLogLevel  = "INFO"
	defaultConfigDebounce       = 500 * time.Millisecond

	// environment keys:
	elasticPasswordEnv = "PASSEPLAT_ELASTIC_PASSWORD"
)

func NewConfig() *Config {
	cfg := new(Config)
	cfg.ElasticURLs = commaListFlag()
	cfg.MetricsFlavour = commaListFlag(metrics.CodaHaleKind, metrics.PrometheusKind)

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", passeplat.DefaultAddress, "network address that the gateway should listen on")
	flag.StringVar(&cfg.SupportListener, "support-listener", passeplat.DefaultSupportListener, "network address used for exposing the /metrics and /healthz endpoints. An empty value disables the support endpoints.")
	flag.BoolVar(&cfg.PrintVersion, "version", false, "print passeplat version")
	flag.StringVar(&cfg.Hostname, "hostname", "", "name of the instance exported with the transaction records. When not set, the hostname of the system is used")

	// configuration directory:
	flag.StringVar(&cfg.ConfigDir, "config-dir", "", "directory containing the trusted hosts, the users and the web services")
	flag.BoolVar(&cfg.WatchConfigDir, "watch-config-dir", false, "reload the configuration when the files of the config directory change")
	flag.DurationVar(&cfg.ConfigDebounce, "config-debounce", defaultConfigDebounce, "quiet period after the last change of the config directory before reloading")
	flag.IntVar(&cfg.HostCacheSize, "host-cache-size", hostmatch.DefaultCacheSize, "maximum number of cached host classifications")

	// transactions and destinations:
	flag.IntVar(&cfg.MaxBodySize, "max-body-size", analyzable.DefaultMaxBodySize, "maximum number of body bytes stored for the analysis of a transaction")
	flag.DurationVar(&cfg.DestinationTimeout, "destination-timeout", passeplat.DefaultDestinationTimeout, "timeout of the exchange with the destination, a negative value disables it")
	flag.DurationVar(&cfg.FTPTimeout, "ftp-timeout", ftpscheme.DefaultTimeout, "timeout of the connections to ftp destinations")
	flag.BoolVar(&cfg.FTPDisableEPSV, "ftp-disable-epsv", false, "use PASV instead of EPSV for the ftp data connections")
	flag.BoolVar(&cfg.Insecure, "insecure", false, "flag indicating to ignore the verification of the TLS certificates of the destinations")
	flag.BoolVar(&cfg.DisableExecutionTrace, "disable-execution-trace", false, "leave the execution trace out from the transaction records")
	flag.StringVar(&cfg.OpenAPIValidatorURL, "openapi-validator-url", "", "endpoint of the validator service used by the openapi task and condition")

	// log sink:
	flag.StringVar(&cfg.LogSink, "log-sink", passeplat.MemorySink, "storage of the transaction records, possible values: memory, elastic, sqlite")
	flag.StringVar(&cfg.LogIndex, "log-index", logsink.DefaultIndex, "index of the transaction records")
	flag.StringVar(&cfg.LogErrorsIndex, "log-errors-index", logsink.DefaultErrorsIndex, "index of the error records")
	flag.Var(cfg.ElasticURLs, "elastic-urls", "comma separated URLs of the Elasticsearch nodes")
	flag.StringVar(&cfg.ElasticUsername, "elastic-username", "", "username of the Elasticsearch basic authentication")
	flag.StringVar(&cfg.ElasticPassword, "elastic-password", "", "password of the Elasticsearch basic authentication, can be set with the "+elasticPasswordEnv+" environment variable")
	flag.BoolVar(&cfg.ElasticSniff, "elastic-sniff", false, "discover the nodes of the Elasticsearch cluster")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", "", "path of the SQLite database file")
	flag.DurationVar(&cfg.SQLiteRetention, "sqlite-retention", sqlite.DefaultRetention, "age of the records deleted by the SQLite pruning")
	flag.StringVar(&cfg.SQLitePruneSchedule, "sqlite-prune-schedule", sqlite.DefaultPruneSchedule, "cron schedule of the SQLite pruning")
	flag.Var(newResilienceFlag(&cfg.SinkResilience), "sink-resilience", "circuit breaker and retries of the log sink writes, e.g. '{failures: 5, timeout: 30s, retries: 2, retry-interval: 100ms}'")

	// logging, metrics:
	flag.Var(cfg.MetricsFlavour, "metrics-flavour", "metrics flavour is used to change the exposed metrics format. Supported metric formats: 'codahale' and 'prometheus', you can select both of them")
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", "", "namespace of the Prometheus metrics and key prefix of the CodaHale metrics, defaults to passeplat for Prometheus")
	flag.BoolVar(&cfg.MetricsUseExpDecaySample, "metrics-exp-decay-sample", false, "use exponentially decaying sample in the CodaHale metrics")
	flag.BoolVar(&cfg.RuntimeMetrics, "runtime-metrics", true, "enables reporting of the Go runtime and process statistics")
	flag.StringVar(&cfg.ApplicationLog, "application-log", "", "output file for the application log. When not set, /dev/stderr is used")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", defaultApplicationLogLevel, "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", defaultApplicationLogPrefix, "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.StringVar(&cfg.AccessLog, "access-log", "", "output file for the access log, When not set, /dev/stderr is used")
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "when this flag is set, no access log is printed")
	flag.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "when this flag is set, log in JSON format is used")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	_, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}

	if c.PrintVersion {
		return nil
	}

	if c.ConfigDir == "" {
		return fmt.Errorf("missing config directory")
	}

	switch strings.ToLower(c.LogSink) {
	case "", passeplat.MemorySink:
	case passeplat.ElasticSink:
		if len(c.ElasticURLs.Get()) == 0 {
			return fmt.Errorf("missing elastic URLs for the elastic log sink")
		}
	case passeplat.SQLiteSink:
		if c.SQLitePath == "" {
			return fmt.Errorf("missing path for the sqlite log sink")
		}
	default:
		return fmt.Errorf("invalid log sink: %s", c.LogSink)
	}

	if c.MaxBodySize < 0 {
		return fmt.Errorf("invalid max body size: %d", c.MaxBodySize)
	}

	if c.HostCacheSize < 0 {
		return fmt.Errorf("invalid host cache size: %d", c.HostCacheSize)
	}

	return nil
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	c.parseEnv()
	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	return nil
}

func (c *Config) ToOptions() passeplat.Options {
	o := passeplat.Options{
		Address:               c.Address,
		SupportListener:       c.SupportListener,
		ConfigDir:             c.ConfigDir,
		WatchConfigDir:        c.WatchConfigDir,
		ConfigDebounce:        c.ConfigDebounce,
		MaxBodySize:           c.MaxBodySize,
		DestinationTimeout:    c.DestinationTimeout,
		FTPTimeout:            c.FTPTimeout,
		FTPDisableEPSV:        c.FTPDisableEPSV,
		HostCacheSize:         c.HostCacheSize,
		Insecure:              c.Insecure,
		LogSink:               c.LogSink,
		ElasticURLs:           c.ElasticURLs.Get(),
		ElasticUsername:       c.ElasticUsername,
		ElasticPassword:       c.ElasticPassword,
		ElasticSniff:          c.ElasticSniff,
		LogIndex:              c.LogIndex,
		LogErrorsIndex:        c.LogErrorsIndex,
		SQLitePath:            c.SQLitePath,
		SQLiteRetention:       c.SQLiteRetention,
		SQLitePruneSchedule:   c.SQLitePruneSchedule,
		DisableExecutionTrace: c.DisableExecutionTrace,
		OpenAPIValidatorURL:   c.OpenAPIValidatorURL,
		Hostname:              c.Hostname,
		MetricsFlavours:       c.MetricsFlavour.Get(),
		MetricsPrefix:         c.MetricsPrefix,
		EnableRuntimeMetrics:  c.RuntimeMetrics,

		MetricsUseExpDecaySample: c.MetricsUseExpDecaySample,

		ApplicationLogFile:        c.ApplicationLog,
		ApplicationLogLevel:       c.ApplicationLogLevel.String(),
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
		AccessLogFile:             c.AccessLog,
		AccessLogDisabled:         c.AccessLogDisabled,
		AccessLogJSONEnabled:      c.AccessLogJSONEnabled,
	}

	if r := c.SinkResilience; r != nil {
		o.SinkBreakerFailures = r.Failures
		o.SinkBreakerTimeout = r.Timeout
		o.SinkRetries = r.Retries
		o.SinkRetryInterval = r.RetryInterval
	}

	return o
}

func (c *Config) parseEnv() {
	// Set Elasticsearch password from environment variable if not set earlier (flag or configuration file)
	if c.ElasticPassword == "" {
		c.ElasticPassword = os.Getenv(elasticPasswordEnv)
	}
}
